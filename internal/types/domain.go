// Package types holds the domain types shared across the constancias
// engine: students, enrollments, certificate kinds and the row-set shape
// that flows between the interpreters, the action library and the store.
package types

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind identifies a certificate variant.
type Kind string

const (
	KindStudies  Kind = "estudios"
	KindGrades   Kind = "calificaciones"
	KindTransfer Kind = "traslado"
)

// ParseKind normalizes a user- or LLM-supplied kind string.
// Accepts Spanish and English spellings.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "estudios", "estudio", "studies", "study":
		return KindStudies, nil
	case "calificaciones", "calificacion", "grades", "notas":
		return KindGrades, nil
	case "traslado", "transfer", "transferencia":
		return KindTransfer, nil
	case "":
		return "", fmt.Errorf("certificate kind is empty")
	default:
		return "", fmt.Errorf("unknown certificate kind %q", s)
	}
}

// RequiresGrades reports whether the kind needs a populated grade table.
func (k Kind) RequiresGrades() bool {
	return k == KindGrades || k == KindTransfer
}

// Valid reports whether k is one of the three supported kinds.
func (k Kind) Valid() bool {
	return k == KindStudies || k == KindGrades || k == KindTransfer
}

// Shift is the school shift an enrollment belongs to.
type Shift string

const (
	ShiftMorning   Shift = "MATUTINO"
	ShiftAfternoon Shift = "VESPERTINO"
)

// ParseShift accepts common Spanish spellings.
func ParseShift(s string) (Shift, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MATUTINO", "MORNING", "MAÑANA", "MANANA":
		return ShiftMorning, nil
	case "VESPERTINO", "AFTERNOON", "TARDE":
		return ShiftAfternoon, nil
	default:
		return "", fmt.Errorf("unknown shift %q", s)
	}
}

// Student is the registry identity record.
type Student struct {
	ID                 string     `json:"id"`
	CURP               string     `json:"curp,omitempty"`
	Name               string     `json:"nombre"`
	RegistrationNumber string     `json:"matricula,omitempty"`
	BirthDate          *time.Time `json:"fecha_nacimiento,omitempty"`
	RegisteredAt       time.Time  `json:"fecha_registro"`
}

// SubjectGrade is one row of a certificate grade table.
// Subject names are opaque text; the renderer never interprets them.
type SubjectGrade struct {
	Subject string  `json:"materia"`
	P1      float64 `json:"p1"`
	P2      float64 `json:"p2"`
	P3      float64 `json:"p3"`
	Average float64 `json:"promedio"`
}

// Enrollment ties a student to a school cycle. A student may carry several
// historical rows; the one with the highest ID is the current enrollment.
type Enrollment struct {
	ID         int64          `json:"id"`
	StudentID  string         `json:"alumno_id"`
	SchoolYear string         `json:"ciclo_escolar"`
	Grade      int            `json:"grado"`
	Group      string         `json:"grupo"`
	Shift      Shift          `json:"turno"`
	SchoolName string         `json:"escuela"`
	SchoolCCT  string         `json:"cct"`
	Grades     []SubjectGrade `json:"calificaciones,omitempty"`
}

// CertificateRecord is one line of the generated-certificate log.
type CertificateRecord struct {
	ID           int64     `json:"id"`
	StudentID    string    `json:"alumno_id"`
	Kind         Kind      `json:"tipo"`
	GeneratedAt  time.Time `json:"generado_en"`
	ArtifactPath string    `json:"archivo"`
}

// StudentRow is a student joined with their latest enrollment, the unit the
// search actions and the conversation stack traffic in. Enrollment fields
// are zero-valued when the student has no enrollment yet.
type StudentRow struct {
	Student
	SchoolYear string `json:"ciclo_escolar,omitempty"`
	Grade      int    `json:"grado,omitempty"`
	Group      string `json:"grupo,omitempty"`
	Shift      Shift  `json:"turno,omitempty"`
	HasGrades  bool   `json:"tiene_calificaciones"`
}

var titleCaser = cases.Title(language.Spanish)

// Label renders the short one-line form used in chat replies and
// disambiguation lists.
func (r StudentRow) Label() string {
	b := strings.Builder{}
	b.WriteString(r.Name)
	if r.Grade > 0 {
		fmt.Fprintf(&b, ", %d°%s", r.Grade, r.Group)
	}
	if r.Shift != "" {
		fmt.Fprintf(&b, " %s", titleCaser.String(strings.ToLower(string(r.Shift))))
	}
	if r.CURP != "" {
		fmt.Fprintf(&b, " (%s)", r.CURP)
	}
	return b.String()
}

// RowSet is the uniform result shape returned by the SQL executor and
// carried on conversation frames.
type RowSet struct {
	Columns  []string        `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	RowCount int             `json:"row_count"`
}

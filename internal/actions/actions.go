// Package actions is the closed library of operations the chat engine can
// dispatch. Every user intent bottoms out in exactly one of these; nothing
// else touches the registry or the renderer on the engine's behalf.
package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/extract"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/render"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/sqlexec"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/store"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/textnorm"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var (
	// ErrUnknownStudent means no student matched the selector.
	ErrUnknownStudent = errors.New("no student matches")
	// ErrAmbiguousSelector means several students matched; the wrapped
	// AmbiguityError carries the candidates for disambiguation.
	ErrAmbiguousSelector = errors.New("selector matches several students")
	// ErrInvalidKind marks an unsupported certificate kind.
	ErrInvalidKind = errors.New("invalid certificate kind")
	// ErrMissingPrerequisite marks an operation whose inputs are not
	// available, like a grades certificate for a student without grades.
	ErrMissingPrerequisite = errors.New("missing prerequisite")
)

// AmbiguityError lists the candidate students a selector matched.
type AmbiguityError struct {
	Candidates []types.StudentRow
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("%v: %d candidates", ErrAmbiguousSelector, len(e.Candidates))
}

func (e *AmbiguityError) Unwrap() error { return ErrAmbiguousSelector }

// Library bundles the operations with their shared dependencies. The config
// provider returns the current snapshot so hot reloads apply between turns.
type Library struct {
	store     *store.Store
	exec      *sqlexec.Executor
	extractor *extract.Extractor
	cfg       func() *config.Config
	logger    *zap.Logger
}

// New builds the library over an open store.
func New(st *store.Store, cfg func() *config.Config, logger *zap.Logger) *Library {
	return &Library{
		store:     st,
		exec:      sqlexec.New(st.Handle()),
		extractor: extract.New(logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// Criteria is the value-level student predicate shared by search and count.
type Criteria struct {
	Name       string
	CURP       string
	Grade      int
	Group      string
	Shift      types.Shift
	SchoolYear string
	Limit      int
}

func (c Criteria) filter() store.Filter {
	return store.Filter{
		NameContains: c.Name,
		CURP:         c.CURP,
		Grade:        c.Grade,
		Group:        c.Group,
		Shift:        c.Shift,
		SchoolYear:   c.SchoolYear,
		Limit:        c.Limit,
	}
}

// SearchStudents lists students matching the criteria with their latest
// enrollment.
func (l *Library) SearchStudents(ctx context.Context, c Criteria) ([]types.StudentRow, error) {
	rows, err := l.store.FindStudents(ctx, c.filter())
	if err != nil {
		return nil, fmt.Errorf("failed to search students: %w", err)
	}
	return rows, nil
}

// groupByColumns maps the user-facing grouping dimensions onto columns.
// Only these identifiers ever reach the SQL text.
var groupByColumns = map[string]string{
	"grado":         "e.grade",
	"grupo":         `e."group"`,
	"turno":         "e.shift",
	"ciclo_escolar": "e.school_year",
}

// CountStudents counts students matching the criteria, optionally broken
// down by one dimension. The statement goes through the guarded executor.
func (l *Library) CountStudents(ctx context.Context, c Criteria, groupBy string) (*types.RowSet, error) {
	var conds []string
	var args []interface{}
	f := c.filter()
	if f.NameContains != "" {
		conds = append(conds, "s.name_fold LIKE ?")
		args = append(args, "%"+textnorm.Fold(f.NameContains)+"%")
	}
	if f.CURP != "" {
		conds = append(conds, "s.curp = ?")
		args = append(args, strings.ToUpper(f.CURP))
	}
	if f.Grade != 0 {
		conds = append(conds, "e.grade = ?")
		args = append(args, f.Grade)
	}
	if f.Group != "" {
		conds = append(conds, `UPPER(e."group") = ?`)
		args = append(args, strings.ToUpper(f.Group))
	}
	if f.Shift != "" {
		conds = append(conds, "e.shift = ?")
		args = append(args, string(f.Shift))
	}
	if f.SchoolYear != "" {
		conds = append(conds, "e.school_year = ?")
		args = append(args, f.SchoolYear)
	}

	base := `FROM students s LEFT JOIN enrollments e ON e.id = (SELECT MAX(id) FROM enrollments WHERE student_id = s.id)`
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var stmt string
	if groupBy != "" {
		col, ok := groupByColumns[strings.ToLower(strings.TrimSpace(groupBy))]
		if !ok {
			return nil, fmt.Errorf("unknown grouping dimension %q", groupBy)
		}
		stmt = fmt.Sprintf("SELECT %s AS dimension, COUNT(*) AS total %s%s GROUP BY %s ORDER BY %s", col, base, where, col, col)
	} else {
		stmt = "SELECT COUNT(*) AS total " + base + where
	}

	rs, err := l.exec.Run(ctx, sqlexec.Query{SQL: stmt, Args: args})
	if err != nil {
		return nil, fmt.Errorf("failed to count students: %w", err)
	}
	return rs, nil
}

// Selector identifies one student: by id, by CURP, or by a name that must
// match exactly one registry entry.
type Selector struct {
	ID   string
	CURP string
	Name string
}

// StudentDetails is the full per-student view.
type StudentDetails struct {
	Student      types.Student
	Enrollment   *types.Enrollment
	Certificates []types.CertificateRecord
}

// resolveStudent turns a selector into a single student row.
func (l *Library) resolveStudent(ctx context.Context, sel Selector) (*types.StudentRow, error) {
	var f store.Filter
	switch {
	case sel.ID != "":
		st, err := l.store.GetStudent(ctx, sel.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("id %s: %w", sel.ID, ErrUnknownStudent)
			}
			return nil, err
		}
		return &types.StudentRow{Student: *st}, nil
	case sel.CURP != "":
		f.CURP = sel.CURP
	case sel.Name != "":
		f.NameContains = sel.Name
	default:
		return nil, fmt.Errorf("%w: empty selector", ErrUnknownStudent)
	}

	rows, err := l.store.FindStudents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve student: %w", err)
	}
	switch len(rows) {
	case 0:
		return nil, ErrUnknownStudent
	case 1:
		return &rows[0], nil
	default:
		return nil, &AmbiguityError{Candidates: rows}
	}
}

// GetStudentDetails returns the full view for a uniquely selected student.
func (l *Library) GetStudentDetails(ctx context.Context, sel Selector) (*StudentDetails, error) {
	row, err := l.resolveStudent(ctx, sel)
	if err != nil {
		return nil, err
	}

	details := &StudentDetails{Student: row.Student}
	enr, err := l.store.LatestEnrollment(ctx, row.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	details.Enrollment = enr

	certs, err := l.store.Certificates(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	details.Certificates = certs
	return details, nil
}

// PhotoMode is the photo inclusion policy for one generation.
type PhotoMode string

const (
	PhotoAuto PhotoMode = "auto"
	PhotoYes  PhotoMode = "si"
	PhotoNo   PhotoMode = "no"
)

// GenerateRequest asks for one certificate.
type GenerateRequest struct {
	Selector Selector
	Kind     types.Kind
	Photo    PhotoMode
	// SkipLog suppresses the registry log entry, used for previews.
	SkipLog bool
}

// GenerateResult is a finished certificate.
type GenerateResult struct {
	Student  types.Student
	Kind     types.Kind
	Artifact *render.Artifact
	Warnings []string
}

// GenerateCertificate resolves the student, renders the certificate and
// logs it. A failed log entry downgrades to a warning: the PDF already
// exists and the user should get it.
func (l *Library) GenerateCertificate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}

	row, err := l.resolveStudent(ctx, req.Selector)
	if err != nil {
		return nil, err
	}

	cfg := l.cfg()
	enr, err := l.store.LatestEnrollment(ctx, row.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		enr = &types.Enrollment{StudentID: row.ID, SchoolYear: cfg.AcademicInfo.CurrentYear}
	}

	result := &GenerateResult{Student: row.Student, Kind: req.Kind}
	photo := l.photoFor(cfg, row.Student, req.Photo)
	if req.Photo == PhotoYes && photo == "" {
		result.Warnings = append(result.Warnings, "no se encontró fotografía del alumno; se genera sin foto")
	}

	art, err := render.New(cfg, l.logger).Render(ctx, render.Request{
		Kind:       req.Kind,
		Student:    row.Student,
		Enrollment: *enr,
		PhotoPath:  photo,
	})
	if err != nil {
		if errors.Is(err, render.ErrMissingGrades) {
			return nil, fmt.Errorf("%w: %s requires grades and %s has none", ErrMissingPrerequisite, req.Kind, row.Name)
		}
		return nil, err
	}
	result.Artifact = art
	result.Warnings = append(result.Warnings, art.Warnings...)

	if !req.SkipLog {
		if err := l.store.LogCertificate(ctx, row.ID, req.Kind, art.Path); err != nil {
			l.logger.Warn("certificate generated but log entry failed",
				zap.String("student", row.ID), zap.Error(err))
			result.Warnings = append(result.Warnings, "la constancia se generó pero no se pudo registrar en el historial")
		}
	}
	return result, nil
}

// photoFor resolves the photo path for a student under the requested mode.
// The photos directory is scanned for <CURP>.<ext> then <ID>.<ext>.
func (l *Library) photoFor(cfg *config.Config, st types.Student, mode PhotoMode) string {
	if mode == PhotoNo {
		return ""
	}
	if mode == "" {
		mode = PhotoAuto
	}
	if mode == PhotoAuto && !cfg.Features.IncludePhotoDefault {
		return ""
	}

	dir := cfg.Paths.PhotosDir
	if dir == "" {
		return ""
	}
	var stems []string
	if st.CURP != "" {
		stems = append(stems, st.CURP)
	}
	stems = append(stems, st.ID)
	for _, stem := range stems {
		for _, ext := range []string{".jpg", ".jpeg", ".png"} {
			p := filepath.Join(dir, stem+ext)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// TransformRequest asks for a certificate re-rendered from an existing PDF.
// The source student never touches the registry.
type TransformRequest struct {
	SourcePDF string
	Kind      types.Kind
	Photo     PhotoMode
}

// TransformResult is a finished transformation.
type TransformResult struct {
	Data     *extract.Data
	Kind     types.Kind
	Artifact *render.Artifact
	Warnings []string
}

// TransformPDF extracts a source certificate and renders it as the target
// kind.
func (l *Library) TransformPDF(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}

	data, err := l.extractor.Extract(ctx, req.SourcePDF, req.Kind)
	if err != nil {
		if errors.Is(err, extract.ErrExtractionFailed) {
			return nil, fmt.Errorf("%w: %v", ErrMissingPrerequisite, err)
		}
		return nil, err
	}

	cfg := l.cfg()
	// The extractor hands over every embedded image; the largest one is the
	// student photo on these certificates.
	photo := ""
	if req.Photo != PhotoNo && len(data.PhotoCandidates) > 0 {
		p, werr := writePhotoTemp(data.PhotoCandidates[0])
		if werr != nil {
			l.logger.Warn("extracted photo could not be staged", zap.Error(werr))
			data.Warnings = append(data.Warnings, "no se pudo preparar la fotografía extraída; se genera sin foto")
		} else {
			photo = p
			defer os.Remove(p)
		}
	}

	result := &TransformResult{Data: data, Kind: req.Kind, Warnings: data.Warnings}
	art, err := render.New(cfg, l.logger).Render(ctx, render.Request{
		Kind:       req.Kind,
		Student:    data.Student,
		Enrollment: data.Enrollment,
		PhotoPath:  photo,
	})
	if err != nil {
		if errors.Is(err, render.ErrMissingGrades) {
			return nil, fmt.Errorf("%w: the source PDF has no grades and %s requires them", ErrMissingPrerequisite, req.Kind)
		}
		return nil, err
	}
	result.Artifact = art
	result.Warnings = append(result.Warnings, art.Warnings...)
	return result, nil
}

// writePhotoTemp materializes extracted photo bytes so the renderer can
// reference them by path. The caller removes the file after rendering.
func writePhotoTemp(b []byte) (string, error) {
	ext := ".jpg"
	if bytes.HasPrefix(b, []byte("\x89PNG")) {
		ext = ".png"
	}
	f, err := os.CreateTemp("", "escolar-foto-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Help returns the capability summary shown for the ayuda intent.
func (l *Library) Help() string {
	return strings.TrimSpace(`
Puedo ayudarte con el registro escolar:

• Buscar alumnos: "busca a Juan Pérez", "alumnos de 3° A", "los del turno matutino"
• Contar: "cuántos alumnos hay", "cuántos por grado"
• Ver detalles: "muéstrame la información de Ana Ruiz"
• Generar constancias: de estudios, de calificaciones o de traslado
• Transformar un PDF: carga una constancia existente y pídela en otro formato

También entiendo referencias como "el tercero de la lista" o "genérale una constancia".
`)
}

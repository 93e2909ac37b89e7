package engine

import (
	"fmt"
	"strings"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/actions"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

// describeCriteria renders the predicate for frame queries and replies.
func describeCriteria(c actions.Criteria) string {
	var parts []string
	if c.Name != "" {
		parts = append(parts, fmt.Sprintf("nombre %q", c.Name))
	}
	if c.CURP != "" {
		parts = append(parts, "CURP "+c.CURP)
	}
	if c.Grade != 0 {
		parts = append(parts, fmt.Sprintf("%d° grado", c.Grade))
	}
	if c.Group != "" {
		parts = append(parts, "grupo "+strings.ToUpper(c.Group))
	}
	if c.Shift != "" {
		parts = append(parts, "turno "+strings.ToLower(string(c.Shift)))
	}
	if c.SchoolYear != "" {
		parts = append(parts, "ciclo "+c.SchoolYear)
	}
	if len(parts) == 0 {
		return "todos los alumnos"
	}
	return strings.Join(parts, ", ")
}

func formatRows(rows []types.StudentRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontré %d alumno(s):\n", len(rows))
	for i, r := range rows {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Label())
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatCount phrases a count row set. A plain count is one row with one
// value; a grouped count is dimension/total pairs.
func formatCount(rs *types.RowSet, groupBy string) string {
	if groupBy == "" {
		if rs.RowCount == 0 || len(rs.Rows[0]) == 0 {
			return "Hay 0 alumnos."
		}
		return fmt.Sprintf("Hay %v alumno(s).", rs.Rows[0][0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Alumnos por %s:\n", strings.ReplaceAll(groupBy, "_", " "))
	for _, row := range rs.Rows {
		if len(row) < 2 {
			continue
		}
		dim := row[0]
		if dim == nil || dim == "" {
			dim = "sin dato"
		}
		fmt.Fprintf(&b, "• %v: %v\n", dim, row[1])
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDetails(det *actions.StudentDetails) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", det.Student.Name)
	if det.Student.CURP != "" {
		fmt.Fprintf(&b, "CURP: %s\n", det.Student.CURP)
	}
	if det.Student.RegistrationNumber != "" {
		fmt.Fprintf(&b, "Matrícula: %s\n", det.Student.RegistrationNumber)
	}
	if det.Student.BirthDate != nil {
		fmt.Fprintf(&b, "Fecha de nacimiento: %s\n", det.Student.BirthDate.Format("02/01/2006"))
	}

	if e := det.Enrollment; e != nil {
		fmt.Fprintf(&b, "Inscripción: %d°%s, turno %s, ciclo %s\n",
			e.Grade, e.Group, strings.ToLower(string(e.Shift)), e.SchoolYear)
		if len(e.Grades) > 0 {
			fmt.Fprintf(&b, "Calificaciones registradas: %d materia(s)\n", len(e.Grades))
		} else {
			b.WriteString("Sin calificaciones registradas\n")
		}
	} else {
		b.WriteString("Sin inscripción registrada\n")
	}

	if n := len(det.Certificates); n > 0 {
		fmt.Fprintf(&b, "Constancias generadas: %d (última: %s)\n",
			n, det.Certificates[0].Kind)
	}
	return strings.TrimRight(b.String(), "\n")
}

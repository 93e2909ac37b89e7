package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var (
	curpPattern = regexp.MustCompile(`\b[A-ZÑ]{4}\d{6}[HM][A-ZÑ]{5}[A-Z0-9]\d\b`)
	namePattern = regexp.MustCompile(`(?i)alumn[oa]\s*(?:\(a\))?\s*:?\s+([A-ZÁÉÍÓÚÑÜ][A-ZÁÉÍÓÚÑÜ .]{4,80}?)(?:\s*,|\s+con\s+CURP|\s+se\s+encuentra|\s+estuvo|$)`)
	gradePattern = regexp.MustCompile(`(?i)\b([1-6])\s*[°ºª]?\s*(?:grado)?\s*,?\s*grupo\s*"?([A-Fa-f])"?`)
	gradeOnly    = regexp.MustCompile(`(?i)\b([1-6])\s*[°ºª]\s*grado\b`)
	groupOnly    = regexp.MustCompile(`(?i)\bgrupo\s*"?([A-Fa-f])"?`)
	yearPattern  = regexp.MustCompile(`\b(\d{4}\s*[-–]\s*\d{4})\b`)
	cctPattern   = regexp.MustCompile(`\b\d{2}[A-Z]{3}\d{4}[A-Z]\b`)
	// A grade table row: subject name followed by three partials and an
	// average. Dashes appear when the row came from the fallback catalog.
	gradeRowPattern = regexp.MustCompile(`^([A-ZÁÉÍÓÚÑÜ][A-ZÁÉÍÓÚÑÜ .,]{3,60}?)\s+(\d+(?:\.\d+)?|-)\s+(\d+(?:\.\d+)?|-)\s+(\d+(?:\.\d+)?|-)\s+(\d+(?:\.\d+)?|-)\s*$`)
)

// parseText scans the concatenated text layer for the certificate fields.
// Every field is optional; misses become warnings.
func parseText(text string) *Data {
	data := &Data{}
	upper := strings.ToUpper(text)

	if m := curpPattern.FindString(upper); m != "" {
		data.Student.CURP = m
	} else {
		data.Warnings = append(data.Warnings, "CURP no encontrada en el PDF")
	}

	if m := namePattern.FindStringSubmatch(text); m != nil {
		data.Student.Name = strings.ToUpper(strings.TrimSpace(m[1]))
	} else {
		data.Warnings = append(data.Warnings, "nombre del alumno no encontrado en el PDF")
	}

	if m := gradePattern.FindStringSubmatch(text); m != nil {
		data.Enrollment.Grade, _ = strconv.Atoi(m[1])
		data.Enrollment.Group = strings.ToUpper(m[2])
	} else {
		if m := gradeOnly.FindStringSubmatch(text); m != nil {
			data.Enrollment.Grade, _ = strconv.Atoi(m[1])
		}
		if m := groupOnly.FindStringSubmatch(text); m != nil {
			data.Enrollment.Group = strings.ToUpper(m[1])
		}
	}
	if data.Enrollment.Grade == 0 {
		data.Warnings = append(data.Warnings, "grado no encontrado en el PDF")
	}

	switch {
	case strings.Contains(upper, string(types.ShiftMorning)):
		data.Enrollment.Shift = types.ShiftMorning
	case strings.Contains(upper, string(types.ShiftAfternoon)):
		data.Enrollment.Shift = types.ShiftAfternoon
	default:
		data.Warnings = append(data.Warnings, "turno no encontrado en el PDF")
	}

	if m := yearPattern.FindString(text); m != "" {
		data.Enrollment.SchoolYear = compactYear(m)
	}
	if m := cctPattern.FindString(upper); m != "" {
		data.Enrollment.SchoolCCT = m
	}
	data.Enrollment.SchoolName = findSchoolName(text)
	data.Enrollment.Grades = parseGradeRows(text)

	return data
}

func compactYear(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "–", "-")
}

// findSchoolName returns the first line that looks like a school header.
func findSchoolName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		if strings.Contains(upper, "ESCUELA PRIMARIA") || strings.Contains(upper, "COLEGIO ") {
			return upper
		}
	}
	return ""
}

// parseGradeRows collects table rows. Rows whose numbers are all dashes
// came from a fallback rendering and are skipped: they carry no grades.
func parseGradeRows(text string) []types.SubjectGrade {
	var out []types.SubjectGrade
	for _, line := range strings.Split(text, "\n") {
		m := gradeRowPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		subject := strings.TrimSpace(m[1])
		if strings.EqualFold(subject, "ASIGNATURA") {
			continue
		}
		p1, ok1 := parseGradeValue(m[2])
		p2, ok2 := parseGradeValue(m[3])
		p3, ok3 := parseGradeValue(m[4])
		avg, ok4 := parseGradeValue(m[5])
		if !ok1 && !ok2 && !ok3 && !ok4 {
			continue
		}
		out = append(out, types.SubjectGrade{
			Subject: strings.ToUpper(subject),
			P1:      p1,
			P2:      p2,
			P3:      p3,
			Average: avg,
		})
	}
	return out
}

func parseGradeValue(s string) (float64, bool) {
	if s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 10 {
		return 0, false
	}
	return v, true
}

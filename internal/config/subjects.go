package config

// fallbackSubjects is the fixed primary-school catalog used when a grade
// has no entry in subjects_by_grade. Mirrors the SEP plan for 1º-6º.
var fallbackSubjects = []string{
	"LENGUA MATERNA. ESPAÑOL",
	"MATEMÁTICAS",
	"CONOCIMIENTO DEL MEDIO",
	"FORMACIÓN CÍVICA Y ÉTICA",
	"ARTES",
	"EDUCACIÓN SOCIOEMOCIONAL",
	"EDUCACIÓN FÍSICA",
}

var upperGradeSubjects = []string{
	"LENGUA MATERNA. ESPAÑOL",
	"MATEMÁTICAS",
	"CIENCIAS NATURALES",
	"HISTORIA",
	"GEOGRAFÍA",
	"FORMACIÓN CÍVICA Y ÉTICA",
	"ARTES",
	"EDUCACIÓN SOCIOEMOCIONAL",
	"EDUCACIÓN FÍSICA",
}

// SubjectsForGrade returns the subject list for a grade, preferring the
// configured catalog and falling back to the fixed plan. The returned slice
// is a copy.
func (c *Config) SubjectsForGrade(grade int) []string {
	if list, ok := c.AcademicInfo.SubjectsByGrade[grade]; ok && len(list) > 0 {
		out := make([]string, len(list))
		copy(out, list)
		return out
	}
	src := fallbackSubjects
	if grade >= 4 {
		src = upperGradeSubjects
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

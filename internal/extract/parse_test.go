package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

const sampleCertificateText = `
ESCUELA PRIMARIA BENITO JUÁREZ
C.C.T. 10DPR0001X — Ciclo escolar 2025-2026
Durango, Durango

CONSTANCIA DE ESTUDIOS CON CALIFICACIONES

El que suscribe, Director de la institución, hace constar que el alumno
JUAN PÉREZ GARCÍA, con CURP PEGJ150101HDGRRN01, se encuentra inscrito en
el 3° grado, grupo A, turno MATUTINO, ciclo escolar 2025-2026, con las
siguientes calificaciones:

Asignatura P1 P2 P3 Promedio
MATEMÁTICAS 9 8.5 10 9.2
LENGUA MATERNA. ESPAÑOL 8 8 9 8.3

Se extiende la presente constancia a petición del interesado.
`

func TestParseTextFullCertificate(t *testing.T) {
	data := parseText(sampleCertificateText)

	assert.Equal(t, "JUAN PÉREZ GARCÍA", data.Student.Name)
	assert.Equal(t, "PEGJ150101HDGRRN01", data.Student.CURP)
	assert.Equal(t, 3, data.Enrollment.Grade)
	assert.Equal(t, "A", data.Enrollment.Group)
	assert.Equal(t, types.ShiftMorning, data.Enrollment.Shift)
	assert.Equal(t, "2025-2026", data.Enrollment.SchoolYear)
	assert.Equal(t, "10DPR0001X", data.Enrollment.SchoolCCT)
	assert.Contains(t, data.Enrollment.SchoolName, "BENITO JUÁREZ")
	assert.Empty(t, data.Warnings)

	want := []types.SubjectGrade{
		{Subject: "MATEMÁTICAS", P1: 9, P2: 8.5, P3: 10, Average: 9.2},
		{Subject: "LENGUA MATERNA. ESPAÑOL", P1: 8, P2: 8, P3: 9, Average: 8.3},
	}
	if diff := cmp.Diff(want, data.Enrollment.Grades); diff != "" {
		t.Errorf("grades mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTextPartialFieldsWarn(t *testing.T) {
	data := parseText("hace constar que la alumna ANA SOFÍA RUIZ, grupo B, turno VESPERTINO")

	assert.Equal(t, "ANA SOFÍA RUIZ", data.Student.Name)
	assert.Equal(t, "B", data.Enrollment.Group)
	assert.Equal(t, types.ShiftAfternoon, data.Enrollment.Shift)
	assert.Empty(t, data.Student.CURP)
	assert.Contains(t, data.Warnings, "CURP no encontrada en el PDF")
	assert.Contains(t, data.Warnings, "grado no encontrado en el PDF")
}

func TestParseTextSkipsFallbackDashRows(t *testing.T) {
	data := parseText(`
alumno PEDRO LUNA, 4° grado, grupo C, turno MATUTINO
Asignatura P1 P2 P3 Promedio
HISTORIA - - - -
GEOGRAFÍA 9 9 9 9
`)
	require.Len(t, data.Enrollment.Grades, 1)
	assert.Equal(t, "GEOGRAFÍA", data.Enrollment.Grades[0].Subject)
}

func TestParseTextRejectsOutOfRangeGrades(t *testing.T) {
	data := parseText(`
alumno PEDRO LUNA, 4° grado, grupo C, turno MATUTINO
MATEMÁTICAS 99 88 77 88
`)
	assert.Empty(t, data.Enrollment.Grades)
}

func TestAssembleReportsContentAndStripsForStudies(t *testing.T) {
	photos := [][]byte{[]byte("big-image-bytes"), []byte("small")}
	data, err := assemble(sampleCertificateText, photos, types.KindStudies)
	require.NoError(t, err)

	// The flags describe the source PDF even when the target drops grades.
	assert.True(t, data.HasGrades)
	assert.Empty(t, data.Enrollment.Grades)
	assert.True(t, data.HasPhoto)
	assert.Equal(t, photos, data.PhotoCandidates)
}

func TestAssembleKeepsGradesForOtherKinds(t *testing.T) {
	data, err := assemble(sampleCertificateText, nil, types.KindTransfer)
	require.NoError(t, err)
	assert.True(t, data.HasGrades)
	assert.Len(t, data.Enrollment.Grades, 2)
	assert.False(t, data.HasPhoto)
	assert.Empty(t, data.PhotoCandidates)
}

func TestAssembleRequiresIdentity(t *testing.T) {
	_, err := assemble("constancia sin nombre ni clave", nil, types.KindStudies)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractMissingFile(t *testing.T) {
	e := New(zap.NewNop())
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), types.KindStudies)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractNotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0644))

	e := New(zap.NewNop())
	_, err := e.Extract(context.Background(), path, types.KindGrades)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestParseGradeValue(t *testing.T) {
	v, ok := parseGradeValue("8.5")
	assert.True(t, ok)
	assert.InDelta(t, 8.5, v, 0.001)

	_, ok = parseGradeValue("-")
	assert.False(t, ok)

	_, ok = parseGradeValue("42")
	assert.False(t, ok)
}

package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/store"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

func testLibrary(t *testing.T) (*Library, *store.Store, *config.Config) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "alumnos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.SchoolInfo = config.SchoolInfo{Name: "ESCUELA PRIMARIA TEST", CCT: "10DPR0001X", Director: "DIR"}
	cfg.Paths.Output = t.TempDir()
	cfg.Paths.PhotosDir = t.TempDir()
	cfg.Paths.Templates = ""

	lib := New(st, func() *config.Config { return cfg }, zap.NewNop())
	return lib, st, cfg
}

func seed(t *testing.T, st *store.Store, name, curp string, grade int, group string, grades []types.SubjectGrade) string {
	t.Helper()
	ctx := context.Background()
	stu := &types.Student{Name: name, CURP: curp}
	require.NoError(t, st.InsertStudent(ctx, stu))
	require.NoError(t, st.UpsertEnrollment(ctx, &types.Enrollment{
		StudentID:  stu.ID,
		SchoolYear: "2025-2026",
		Grade:      grade,
		Group:      group,
		Shift:      types.ShiftMorning,
		Grades:     grades,
	}))
	return stu.ID
}

func TestSearchStudentsByNameAndGrade(t *testing.T) {
	lib, st, _ := testLibrary(t)
	seed(t, st, "JUAN PÉREZ GARCÍA", "PEGJ150101HDGRRN01", 3, "A", nil)
	seed(t, st, "ANA SOFÍA RUIZ", "", 3, "B", nil)
	seed(t, st, "PEDRO LUNA", "", 5, "A", nil)

	rows, err := lib.SearchStudents(context.Background(), Criteria{Name: "perez"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "JUAN PÉREZ GARCÍA", rows[0].Name)

	rows, err = lib.SearchStudents(context.Background(), Criteria{Grade: 3})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCountStudentsTotal(t *testing.T) {
	lib, st, _ := testLibrary(t)
	seed(t, st, "JUAN PÉREZ", "", 3, "A", nil)
	seed(t, st, "ANA RUIZ", "", 3, "B", nil)

	rs, err := lib.CountStudents(context.Background(), Criteria{}, "")
	require.NoError(t, err)
	require.Equal(t, 1, rs.RowCount)
	assert.EqualValues(t, 2, rs.Rows[0][0])
}

func TestCountStudentsGroupedByGrade(t *testing.T) {
	lib, st, _ := testLibrary(t)
	seed(t, st, "JUAN PÉREZ", "", 3, "A", nil)
	seed(t, st, "ANA RUIZ", "", 3, "B", nil)
	seed(t, st, "PEDRO LUNA", "", 5, "A", nil)

	rs, err := lib.CountStudents(context.Background(), Criteria{}, "grado")
	require.NoError(t, err)
	require.Equal(t, 2, rs.RowCount)
	assert.Equal(t, []string{"dimension", "total"}, rs.Columns)

	_, err = lib.CountStudents(context.Background(), Criteria{}, "promedio")
	require.Error(t, err)
}

func TestGetStudentDetailsBySelector(t *testing.T) {
	lib, st, _ := testLibrary(t)
	id := seed(t, st, "JUAN PÉREZ", "PEGJ150101HDGRRN01", 3, "A",
		[]types.SubjectGrade{{Subject: "MATEMÁTICAS", Average: 9}})

	det, err := lib.GetStudentDetails(context.Background(), Selector{CURP: "pegj150101hdgrrn01"})
	require.NoError(t, err)
	assert.Equal(t, id, det.Student.ID)
	require.NotNil(t, det.Enrollment)
	assert.Len(t, det.Enrollment.Grades, 1)
}

func TestResolveStudentAmbiguous(t *testing.T) {
	lib, st, _ := testLibrary(t)
	seed(t, st, "JUAN PÉREZ", "", 3, "A", nil)
	seed(t, st, "JUAN PABLO PÉREZ", "", 4, "B", nil)

	_, err := lib.GetStudentDetails(context.Background(), Selector{Name: "juan"})
	require.ErrorIs(t, err, ErrAmbiguousSelector)

	var amb *AmbiguityError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Candidates, 2)
}

func TestResolveStudentUnknown(t *testing.T) {
	lib, _, _ := testLibrary(t)
	_, err := lib.GetStudentDetails(context.Background(), Selector{Name: "nadie"})
	require.ErrorIs(t, err, ErrUnknownStudent)
}

func TestGenerateCertificateStudies(t *testing.T) {
	lib, st, _ := testLibrary(t)
	id := seed(t, st, "JUAN PÉREZ", "PEGJ150101HDGRRN01", 3, "A", nil)

	res, err := lib.GenerateCertificate(context.Background(), GenerateRequest{
		Selector: Selector{ID: id},
		Kind:     types.KindStudies,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)
	_, statErr := os.Stat(res.Artifact.Path)
	assert.NoError(t, statErr)

	certs, err := st.Certificates(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, types.KindStudies, certs[0].Kind)
}

func TestGenerateCertificateSkipLog(t *testing.T) {
	lib, st, _ := testLibrary(t)
	id := seed(t, st, "JUAN PÉREZ", "", 3, "A", nil)

	_, err := lib.GenerateCertificate(context.Background(), GenerateRequest{
		Selector: Selector{ID: id},
		Kind:     types.KindStudies,
		SkipLog:  true,
	})
	require.NoError(t, err)

	certs, err := st.Certificates(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestGenerateCertificateMissingGrades(t *testing.T) {
	lib, st, cfg := testLibrary(t)
	cfg.Features.UseFallbackSubjects = false
	id := seed(t, st, "JUAN PÉREZ", "", 3, "A", nil)

	_, err := lib.GenerateCertificate(context.Background(), GenerateRequest{
		Selector: Selector{ID: id},
		Kind:     types.KindGrades,
	})
	require.ErrorIs(t, err, ErrMissingPrerequisite)
}

func TestGenerateCertificateInvalidKind(t *testing.T) {
	lib, _, _ := testLibrary(t)
	_, err := lib.GenerateCertificate(context.Background(), GenerateRequest{Kind: types.Kind("diploma")})
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestGenerateCertificatePhotoWarning(t *testing.T) {
	lib, st, _ := testLibrary(t)
	id := seed(t, st, "JUAN PÉREZ", "", 3, "A", nil)

	res, err := lib.GenerateCertificate(context.Background(), GenerateRequest{
		Selector: Selector{ID: id},
		Kind:     types.KindStudies,
		Photo:    PhotoYes,
	})
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, "no se encontró fotografía del alumno; se genera sin foto")
}

func TestPhotoForResolvesByCURP(t *testing.T) {
	lib, _, cfg := testLibrary(t)
	photo := filepath.Join(cfg.Paths.PhotosDir, "PEGJ150101HDGRRN01.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpg"), 0644))

	st := types.Student{ID: "x", CURP: "PEGJ150101HDGRRN01"}
	assert.Equal(t, photo, lib.photoFor(cfg, st, PhotoAuto))
	assert.Empty(t, lib.photoFor(cfg, st, PhotoNo))

	cfg.Features.IncludePhotoDefault = false
	assert.Empty(t, lib.photoFor(cfg, st, PhotoAuto))
	assert.Equal(t, photo, lib.photoFor(cfg, st, PhotoYes))
}

func TestTransformPDFMissingSource(t *testing.T) {
	lib, _, _ := testLibrary(t)
	_, err := lib.TransformPDF(context.Background(), TransformRequest{
		SourcePDF: filepath.Join(t.TempDir(), "nope.pdf"),
		Kind:      types.KindStudies,
	})
	require.ErrorIs(t, err, ErrMissingPrerequisite)
}

func TestWritePhotoTemp(t *testing.T) {
	path, err := writePhotoTemp([]byte("\x89PNG\r\n\x1a\nrest"))
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })
	assert.Equal(t, ".png", filepath.Ext(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nrest"), b)

	path, err = writePhotoTemp([]byte("\xff\xd8\xffjpegdata"))
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })
	assert.Equal(t, ".jpg", filepath.Ext(path))
}

func TestHelpMentionsCapabilities(t *testing.T) {
	lib, _, _ := testLibrary(t)
	help := lib.Help()
	assert.Contains(t, help, "Buscar alumnos")
	assert.Contains(t, help, "constancias")
}

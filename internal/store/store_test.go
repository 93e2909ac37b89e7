package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "alumnos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStudent(t *testing.T, s *Store, name, curp string, grade int, group string, grades []types.SubjectGrade) *types.Student {
	t.Helper()
	ctx := context.Background()
	st := &types.Student{Name: name, CURP: curp}
	require.NoError(t, s.InsertStudent(ctx, st))
	require.NoError(t, s.UpsertEnrollment(ctx, &types.Enrollment{
		StudentID:  st.ID,
		SchoolYear: "2024-2025",
		Grade:      grade,
		Group:      group,
		Shift:      types.ShiftMorning,
		SchoolName: "PRIM. BENITO JUÁREZ",
		SchoolCCT:  "10DPR0123X",
		Grades:     grades,
	}))
	return st
}

func TestInsertAndGetStudent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	birth := time.Date(2017, 5, 12, 0, 0, 0, 0, time.UTC)
	st := &types.Student{Name: "garcía lópez ana", CURP: "gala170512mdfrpn01", BirthDate: &birth}
	require.NoError(t, s.InsertStudent(ctx, st))
	require.NotEmpty(t, st.ID)

	got, err := s.GetStudent(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "GARCÍA LÓPEZ ANA", got.Name)
	assert.Equal(t, "GALA170512MDFRPN01", got.CURP)
	require.NotNil(t, got.BirthDate)
	assert.Equal(t, "2017-05-12", got.BirthDate.Format("2006-01-02"))
}

func TestGetStudentNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetStudent(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateCURP(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertStudent(ctx, &types.Student{Name: "UNO", CURP: "AAAA111111HDFRRR01"}))
	err := s.InsertStudent(ctx, &types.Student{Name: "DOS", CURP: "AAAA111111HDFRRR01"})
	require.ErrorIs(t, err, ErrDuplicateCURP)

	// Blank CURP is not subject to uniqueness.
	require.NoError(t, s.InsertStudent(ctx, &types.Student{Name: "TRES"}))
	require.NoError(t, s.InsertStudent(ctx, &types.Student{Name: "CUATRO"}))
}

func TestEnrollmentInvariant(t *testing.T) {
	s := openTestStore(t)
	err := s.UpsertEnrollment(context.Background(), &types.Enrollment{StudentID: "ghost", SchoolYear: "2024-2025", Grade: 1})
	require.ErrorIs(t, err, ErrInvariant)
}

func TestFindStudentsAccentInsensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, s, "MARTÍNEZ GÓMEZ JUAN", "", 3, "A", nil)
	seedStudent(t, s, "MARTINEZ RUIZ SOFÍA", "", 3, "B", nil)
	seedStudent(t, s, "HERNÁNDEZ PÉREZ LUIS", "", 4, "A", nil)

	rows, err := s.FindStudents(ctx, Filter{NameContains: "martinez"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.FindStudents(ctx, Filter{NameContains: "MARTÍNEZ", Group: "a"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MARTÍNEZ GÓMEZ JUAN", rows[0].Name)
}

func TestFindStudentsEmptyResult(t *testing.T) {
	s := openTestStore(t)
	rows, err := s.FindStudents(context.Background(), Filter{NameContains: "zzz"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLatestEnrollmentPicksNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := seedStudent(t, s, "LUNA MAR CARLOS", "", 2, "A", nil)
	require.NoError(t, s.UpsertEnrollment(ctx, &types.Enrollment{
		StudentID: st.ID, SchoolYear: "2025-2026", Grade: 3, Group: "B", Shift: types.ShiftAfternoon,
	}))

	e, err := s.LatestEnrollment(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Grade)
	assert.Equal(t, "2025-2026", e.SchoolYear)
	assert.Equal(t, types.ShiftAfternoon, e.Shift)
}

func TestGradesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	grades := []types.SubjectGrade{
		{Subject: "MATEMÁTICAS", P1: 8, P2: 9, P3: 10, Average: 9},
		{Subject: "ESPAÑOL", P1: 7, P2: 8, P3: 9, Average: 8},
	}
	st := seedStudent(t, s, "ROJAS NIETO EMMA", "RONE170101MDFJTM08", 5, "A", grades)

	e, err := s.LatestEnrollment(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, grades, e.Grades)

	rows, err := s.FindStudents(ctx, Filter{NameContains: "rojas"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].HasGrades)
}

func TestLogCertificateAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := seedStudent(t, s, "VEGA SOL IAN", "", 1, "A", nil)
	require.NoError(t, s.LogCertificate(ctx, st.ID, types.KindStudies, "out/c1.pdf"))
	require.NoError(t, s.LogCertificate(ctx, st.ID, types.KindGrades, "out/c2.pdf"))
	require.ErrorIs(t, s.LogCertificate(ctx, "ghost", types.KindStudies, "x.pdf"), ErrInvariant)

	certs, err := s.Certificates(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, types.KindGrades, certs[0].Kind)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["students"])
	assert.Equal(t, int64(2), stats["certificates"])
	assert.Equal(t, int64(1), stats["certificates_estudios"])
}

func TestSchemaVersionGuard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alumnos.db")
	s, err := Open(path)
	require.NoError(t, err)

	_, err = s.Handle().Exec("UPDATE school_meta SET value = '99' WHERE key = 'schema_version'")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, ErrSchemaVersion)
}

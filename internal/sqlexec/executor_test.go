package sqlexec_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/sqlexec"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/store"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

func testExecutor(t *testing.T) (*sqlexec.Executor, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "alumnos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return sqlexec.New(s.Handle()), s
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"simple select", "SELECT name FROM students WHERE name_fold LIKE ?", false},
		{"join", `SELECT s.name, e.grade FROM students s JOIN enrollments e ON e.student_id = s.id`, false},
		{"lowercase", "select count(*) from students", false},
		{"certificates table", "SELECT kind FROM certificates", false},
		{"quoted group column", `SELECT e."group" FROM enrollments e`, false},
		{"empty", "", true},
		{"insert", "INSERT INTO students (name) VALUES ('x')", true},
		{"delete hidden in select", "SELECT 1 FROM students; DELETE FROM students", true},
		{"pragma", "SELECT pragma FROM students", true},
		{"unknown table", "SELECT * FROM school_meta", true},
		{"no table", "SELECT 1", true},
		{"update", "UPDATE students SET name = 'x'", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sqlexec.Validate(sqlexec.Query{SQL: tt.sql})
			if tt.wantErr {
				assert.ErrorIs(t, err, sqlexec.ErrQueryRejected)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunReturnsRowSet(t *testing.T) {
	exec, s := testExecutor(t)
	ctx := context.Background()

	st := &types.Student{Name: "MORALES DÍAZ EVA"}
	require.NoError(t, s.InsertStudent(ctx, st))

	rs, err := exec.Run(ctx, sqlexec.Query{
		SQL:  "SELECT id, name FROM students WHERE name_fold LIKE ?",
		Args: []interface{}{"%morales%"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	require.Equal(t, 1, rs.RowCount)
	assert.Equal(t, "MORALES DÍAZ EVA", rs.Rows[0][1])
}

func TestRunRejectedQueryDoesNotExecute(t *testing.T) {
	exec, _ := testExecutor(t)
	_, err := exec.Run(context.Background(), sqlexec.Query{SQL: "DELETE FROM students"})
	require.ErrorIs(t, err, sqlexec.ErrQueryRejected)
}

func TestInsertCertificateLog(t *testing.T) {
	exec, s := testExecutor(t)
	ctx := context.Background()

	st := &types.Student{Name: "CANO RÍOS HUGO"}
	require.NoError(t, s.InsertStudent(ctx, st))
	require.NoError(t, exec.InsertCertificateLog(ctx, st.ID, types.KindStudies, "out/x.pdf"))

	rs, err := exec.Run(ctx, sqlexec.Query{SQL: "SELECT student_id, kind FROM certificates"})
	require.NoError(t, err)
	require.Equal(t, 1, rs.RowCount)
	assert.Equal(t, string(types.KindStudies), rs.Rows[0][1])
}

func TestInsertCertificateLogRejectsUnknownStudent(t *testing.T) {
	exec, _ := testExecutor(t)
	err := exec.InsertCertificateLog(context.Background(), "ghost", types.KindStudies, "out/x.pdf")
	require.ErrorIs(t, err, sqlexec.ErrQueryRejected)

	rs, err := exec.Run(context.Background(), sqlexec.Query{SQL: "SELECT id FROM certificates"})
	require.NoError(t, err)
	assert.Equal(t, 0, rs.RowCount)
}

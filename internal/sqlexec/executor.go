// Package sqlexec is the thin, guarded query layer between the student
// interpreter and the registry. It refuses anything that is not a single
// SELECT over the known tables; the one permitted write is the fixed
// certificate-log insert. User-derived values never reach the SQL text,
// only the bound parameters.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var (
	// ErrQueryRejected marks a statement outside the permitted shape.
	ErrQueryRejected = errors.New("query rejected")
	// ErrExecutionFailed wraps database errors during a permitted query.
	ErrExecutionFailed = errors.New("query execution failed")
)

var allowedTables = map[string]bool{
	"students":     true,
	"enrollments":  true,
	"certificates": true,
}

// Query is a parameterized statement produced by the interpreter layer.
type Query struct {
	SQL  string
	Args []interface{}
}

// Executor runs validated queries against the registry handle.
type Executor struct {
	db *sql.DB
}

// New wraps a registry handle.
func New(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// tableRefs pulls the identifiers following FROM and JOIN keywords.
// Quoted column identifiers like e."group" never match because the pattern
// anchors on the keyword.
var tableRefs = regexp.MustCompile(`(?i)\b(?:from|join)\s+"?([a-z_]+)"?`)

var forbiddenKeyword = regexp.MustCompile(`\b(PRAGMA|ATTACH|INSERT|UPDATE|DELETE|DROP|ALTER|CREATE)\b`)

// Validate checks the statement shape without running it.
func Validate(q Query) error {
	stmt := strings.TrimSpace(q.SQL)
	if stmt == "" {
		return fmt.Errorf("%w: empty statement", ErrQueryRejected)
	}
	if strings.Contains(stmt, ";") {
		return fmt.Errorf("%w: multiple statements", ErrQueryRejected)
	}

	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "SELECT") {
		return fmt.Errorf("%w: only SELECT is permitted", ErrQueryRejected)
	}
	if kw := forbiddenKeyword.FindString(upper); kw != "" {
		return fmt.Errorf("%w: %s not permitted", ErrQueryRejected, kw)
	}

	matches := tableRefs.FindAllStringSubmatch(stmt, -1)
	if len(matches) == 0 {
		return fmt.Errorf("%w: no table reference", ErrQueryRejected)
	}
	for _, m := range matches {
		table := strings.ToLower(m[1])
		if !allowedTables[table] {
			return fmt.Errorf("%w: table %q not whitelisted", ErrQueryRejected, table)
		}
	}
	return nil
}

// Run validates and executes the query, returning the full row set.
func (e *Executor) Run(ctx context.Context, q Query) (*types.RowSet, error) {
	if err := Validate(q); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	rs := &types.RowSet{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	rs.RowCount = len(rs.Rows)
	return rs, nil
}

// insertCertificateSQL is the single write statement this layer permits.
const insertCertificateSQL = "INSERT INTO certificates (student_id, kind, artifact_path) VALUES (?, ?, ?)"

// InsertCertificateLog runs the one permitted write. The referenced student
// must exist; the log never invents registry rows.
func (e *Executor) InsertCertificateLog(ctx context.Context, studentID string, kind types.Kind, path string) error {
	var one int
	err := e.db.QueryRowContext(ctx, "SELECT 1 FROM students WHERE id = ?", studentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: unknown student %q", ErrQueryRejected, studentID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	if _, err := e.db.ExecContext(ctx, insertCertificateSQL, studentID, string(kind), path); err != nil {
		return fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	return nil
}

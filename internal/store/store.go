// Package store owns the SQLite registry: students, enrollments and the
// generated-certificate log. All mutations in the system pass through this
// package; the interpreters only read. The certificate-log insert delegates
// to the executor's single permitted write.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/sqlexec"
)

var (
	// ErrNotFound is returned when an id resolves to no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateCURP is returned on an insert that would repeat a CURP.
	ErrDuplicateCURP = errors.New("duplicate CURP")
	// ErrInvariant is returned when an enrollment or certificate-log row
	// references a missing student.
	ErrInvariant = errors.New("record references missing student")
	// ErrSchemaVersion is returned when the database belongs to a
	// different build generation.
	ErrSchemaVersion = errors.New("incompatible database schema version")
)

// Store is the repository over a single SQLite file. The underlying driver
// handle is safe for one goroutine at a time; the mutex serializes writers
// the same way the rest of the system serializes turns.
type Store struct {
	db     *sql.DB
	exec   *sqlexec.Executor
	mu     sync.RWMutex
	dbPath string
}

// Open opens (creating if needed) the registry at path and verifies the
// schema version.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, exec: sqlexec.New(db), dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	studentsTable := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		curp TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		name_fold TEXT NOT NULL,
		registration_number TEXT NOT NULL DEFAULT '',
		birth_date TEXT,
		registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_students_curp ON students(curp) WHERE curp <> '';
	CREATE INDEX IF NOT EXISTS idx_students_name_fold ON students(name_fold);
	`

	enrollmentsTable := `
	CREATE TABLE IF NOT EXISTS enrollments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id TEXT NOT NULL REFERENCES students(id),
		school_year TEXT NOT NULL,
		grade INTEGER NOT NULL,
		"group" TEXT NOT NULL DEFAULT '',
		shift TEXT NOT NULL DEFAULT '',
		school_name TEXT NOT NULL DEFAULT '',
		school_cct TEXT NOT NULL DEFAULT '',
		grades TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id);
	`

	certificatesTable := `
	CREATE TABLE IF NOT EXISTS certificates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id TEXT NOT NULL REFERENCES students(id),
		kind TEXT NOT NULL,
		generated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		artifact_path TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_certificates_student ON certificates(student_id);
	`

	metaTable := `
	CREATE TABLE IF NOT EXISTS school_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	for _, table := range []string{studentsTable, enrollmentsTable, certificatesTable, metaTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return s.checkSchemaVersion()
}

func (s *Store) checkSchemaVersion() error {
	var value string
	err := s.db.QueryRow("SELECT value FROM school_meta WHERE key = 'schema_version'").Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(
			"INSERT INTO school_meta (key, value) VALUES ('schema_version', ?)",
			strconv.Itoa(config.SchemaVersion),
		)
		return err
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	got, err := strconv.Atoi(value)
	if err != nil || got != config.SchemaVersion {
		return fmt.Errorf("%w: store has %q, build expects %d", ErrSchemaVersion, value, config.SchemaVersion)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Handle exposes the raw database handle to the SQL executor, which adds
// its own statement whitelisting on top. Other callers use the typed
// repository methods.
func (s *Store) Handle() *sql.DB {
	return s.db
}

// SchemaVersion reads the stored schema generation.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	if err := s.db.QueryRowContext(ctx, "SELECT value FROM school_meta WHERE key = 'schema_version'").Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return strconv.Atoi(value)
}

// Stats returns row counts per table plus certificate counts by kind.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"students", "enrollments", "certificates"} {
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}

	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM certificates GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count certificates by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			continue
		}
		stats["certificates_"+kind] = count
	}
	return stats, rows.Err()
}

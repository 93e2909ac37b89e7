package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/sqlexec"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/textnorm"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

// Filter is the value-level predicate FindStudents accepts. Zero fields are
// ignored. Name matching is fold-insensitive (see textnorm).
type Filter struct {
	NameContains string
	CURP         string
	Grade        int
	Group        string
	Shift        types.Shift
	SchoolYear   string
	Limit        int
}

// latestEnrollmentJoin joins each student with their newest enrollment row.
const latestEnrollmentJoin = `
SELECT s.id, s.curp, s.name, s.registration_number, s.birth_date, s.registered_at,
       COALESCE(e.school_year, ''), COALESCE(e.grade, 0), COALESCE(e."group", ''),
       COALESCE(e.shift, ''), COALESCE(e.grades, '[]')
FROM students s
LEFT JOIN enrollments e
  ON e.id = (SELECT MAX(id) FROM enrollments WHERE student_id = s.id)
`

// GetStudent returns the identity record for an id.
func (s *Store) GetStudent(ctx context.Context, id string) (*types.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, curp, name, registration_number, birth_date, registered_at FROM students WHERE id = ?", id)

	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", id, ErrNotFound)
	}
	return st, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStudent(r rowScanner) (*types.Student, error) {
	var st types.Student
	var birth sql.NullString
	if err := r.Scan(&st.ID, &st.CURP, &st.Name, &st.RegistrationNumber, &birth, &st.RegisteredAt); err != nil {
		return nil, err
	}
	if birth.Valid && birth.String != "" {
		if t, err := time.Parse("2006-01-02", birth.String); err == nil {
			st.BirthDate = &t
		}
	}
	return &st, nil
}

// FindStudents returns students matching the filter, joined with their
// latest enrollment, ordered by name.
func (s *Store) FindStudents(ctx context.Context, f Filter) ([]types.StudentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []interface{}

	if f.NameContains != "" {
		conds = append(conds, "s.name_fold LIKE ?")
		args = append(args, "%"+textnorm.Fold(f.NameContains)+"%")
	}
	if f.CURP != "" {
		conds = append(conds, "s.curp = ?")
		args = append(args, strings.ToUpper(strings.TrimSpace(f.CURP)))
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

	query := latestEnrollmentJoin
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY s.name"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var out []types.StudentRow
	for rows.Next() {
		var r types.StudentRow
		var birth sql.NullString
		var gradesJSON string
		if err := rows.Scan(&r.ID, &r.CURP, &r.Name, &r.RegistrationNumber, &birth, &r.RegisteredAt,
			&r.SchoolYear, &r.Grade, &r.Group, &r.Shift, &gradesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan student row: %w", err)
		}
		if birth.Valid && birth.String != "" {
			if t, err := time.Parse("2006-01-02", birth.String); err == nil {
				r.BirthDate = &t
			}
		}
		r.HasGrades = gradesJSON != "" && gradesJSON != "[]" && gradesJSON != "null"
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestEnrollment returns the newest enrollment for a student, or
// ErrNotFound when the student has none.
func (s *Store) LatestEnrollment(ctx context.Context, studentID string) (*types.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, school_year, grade, "group", shift, school_name, school_cct, grades
		FROM enrollments WHERE student_id = ? ORDER BY id DESC LIMIT 1`, studentID)

	var e types.Enrollment
	var gradesJSON string
	err := row.Scan(&e.ID, &e.StudentID, &e.SchoolYear, &e.Grade, &e.Group, &e.Shift,
		&e.SchoolName, &e.SchoolCCT, &gradesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("enrollment for student %s: %w", studentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read enrollment: %w", err)
	}
	if gradesJSON != "" && gradesJSON != "null" {
		if err := json.Unmarshal([]byte(gradesJSON), &e.Grades); err != nil {
			return nil, fmt.Errorf("failed to decode grades: %w", err)
		}
	}
	return &e, nil
}

// InsertStudent inserts a new identity record. A blank ID is assigned a
// fresh UUID. The uppercase convention is applied to name and CURP.
func (s *Store) InsertStudent(ctx context.Context, st *types.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.Name = strings.ToUpper(strings.TrimSpace(st.Name))
	st.CURP = strings.ToUpper(strings.TrimSpace(st.CURP))
	if st.RegisteredAt.IsZero() {
		st.RegisteredAt = time.Now()
	}

	var birth interface{}
	if st.BirthDate != nil {
		birth = st.BirthDate.Format("2006-01-02")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, curp, name, name_fold, registration_number, birth_date, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.CURP, st.Name, textnorm.Fold(st.Name), st.RegistrationNumber, birth, st.RegisteredAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: students.curp") {
			return fmt.Errorf("curp %s: %w", st.CURP, ErrDuplicateCURP)
		}
		return fmt.Errorf("failed to insert student: %w", err)
	}
	return nil
}

// UpsertEnrollment inserts a new enrollment row, or updates the row when
// ID is set. The referenced student must exist.
func (s *Store) UpsertEnrollment(ctx context.Context, e *types.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM students WHERE id = ?", e.StudentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("student %s: %w", e.StudentID, ErrInvariant)
	}
	if err != nil {
		return fmt.Errorf("failed to check student: %w", err)
	}

	grades := e.Grades
	if grades == nil {
		grades = []types.SubjectGrade{}
	}
	gradesJSON, err := json.Marshal(grades)
	if err != nil {
		return fmt.Errorf("failed to encode grades: %w", err)
	}
	group := strings.ToUpper(strings.TrimSpace(e.Group))

	if e.ID > 0 {
		_, err = s.db.ExecContext(ctx, `
			UPDATE enrollments
			SET school_year = ?, grade = ?, "group" = ?, shift = ?, school_name = ?, school_cct = ?, grades = ?
			WHERE id = ?`,
			e.SchoolYear, e.Grade, group, string(e.Shift), e.SchoolName, e.SchoolCCT, string(gradesJSON), e.ID)
		if err != nil {
			return fmt.Errorf("failed to update enrollment: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (student_id, school_year, grade, "group", shift, school_name, school_cct, grades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.StudentID, e.SchoolYear, e.Grade, group, string(e.Shift), e.SchoolName, e.SchoolCCT, string(gradesJSON))
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// LogCertificate appends a row to the generated-certificate log. The write
// itself is the executor's single permitted insert.
func (s *Store) LogCertificate(ctx context.Context, studentID string, kind types.Kind, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.exec.InsertCertificateLog(ctx, studentID, kind, path); err != nil {
		if errors.Is(err, sqlexec.ErrQueryRejected) {
			return fmt.Errorf("student %s: %w", studentID, ErrInvariant)
		}
		return fmt.Errorf("failed to log certificate: %w", err)
	}
	return nil
}

// Certificates lists the log for a student, newest first.
func (s *Store) Certificates(ctx context.Context, studentID string) ([]types.CertificateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, kind, generated_at, artifact_path
		FROM certificates WHERE student_id = ? ORDER BY id DESC`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query certificates: %w", err)
	}
	defer rows.Close()

	var out []types.CertificateRecord
	for rows.Next() {
		var c types.CertificateRecord
		var kind string
		if err := rows.Scan(&c.ID, &c.StudentID, &kind, &c.GeneratedAt, &c.ArtifactPath); err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		c.Kind = types.Kind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

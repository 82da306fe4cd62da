package schoolstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"rollcall/internal/attendance"
)

//go:embed schema.sql
var schema string

var (
	// ErrNotFound is returned when a teacher or class does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownReference is returned when a batch names a teacher, student or
	// class that does not exist.
	ErrUnknownReference = errors.New("attendance references an unknown teacher, student or class")
)

// pgForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pgForeignKeyViolation = "23503"

// Repository persists the reference school data in Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps a pgx-backed *sql.DB.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: sqlx.NewDb(db, "pgx")}
}

// Migrate applies the schema. It is safe to run repeatedly.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TeacherByUsername returns the teacher profile for a login name.
func (r *Repository) TeacherByUsername(ctx context.Context, username string) (attendance.Teacher, error) {
	var t attendance.Teacher
	err := r.db.GetContext(ctx, &t, `
		SELECT id, username, name, email
		FROM teachers WHERE username = $1
	`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Teacher{}, ErrNotFound
	}
	return t, err
}

// StudentsByClass returns the enrolled students of a class ordered by name.
// An existing class without students yields an empty slice.
func (r *Repository) StudentsByClass(ctx context.Context, classID int64) ([]attendance.Student, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM school_classes WHERE id = $1)`, classID); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	students := []attendance.Student{}
	err := r.db.SelectContext(ctx, &students, `
		SELECT s.id, s.name, s.email
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.school_class_id = $1
		ORDER BY s.name, s.id
	`, classID)
	return students, err
}

type recordRow struct {
	TeacherID     int64  `db:"teacher_id"`
	StudentID     int64  `db:"student_id"`
	SchoolClassID int64  `db:"school_class_id"`
	Date          string `db:"date"`
	Present       bool   `db:"present"`
}

// AllAttendance returns every attendance record. No filtering is applied.
func (r *Repository) AllAttendance(ctx context.Context) ([]attendance.Record, error) {
	var rows []recordRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT teacher_id, student_id, school_class_id, to_char(date, 'YYYY-MM-DD') AS date, present
		FROM attendances
		ORDER BY date, school_class_id, student_id
	`)
	if err != nil {
		return nil, err
	}
	out := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, attendance.Record(row))
	}
	return out, nil
}

// UpsertAttendance writes a batch in one transaction. Records are keyed on
// (teacher, student, class, date) and the last value for a key wins.
func (r *Repository) UpsertAttendance(ctx context.Context, records []attendance.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO attendances (teacher_id, student_id, school_class_id, date, present)
		VALUES ($1, $2, $3, $4::date, $5)
		ON CONFLICT (teacher_id, student_id, school_class_id, date) DO UPDATE SET
			present = EXCLUDED.present,
			updated_at = NOW()
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.TeacherID, rec.StudentID, rec.SchoolClassID, rec.Date, rec.Present); err != nil {
			return 0, translate(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// SeedDemo inserts a small demo school. Existing rows are left alone.
func (r *Repository) SeedDemo(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var teacherID int64
	if err := tx.GetContext(ctx, &teacherID, `
		INSERT INTO teachers (username, name, email) VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, demo.teacher.Username, demo.teacher.Name, demo.teacher.Email); err != nil {
		return fmt.Errorf("seed teacher: %w", err)
	}

	for _, class := range demo.classes {
		var classID int64
		if err := tx.GetContext(ctx, &classID, `
			INSERT INTO school_classes (name, teacher_id) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET teacher_id = EXCLUDED.teacher_id
			RETURNING id
		`, class.name, teacherID); err != nil {
			return fmt.Errorf("seed class %s: %w", class.name, err)
		}
		for _, st := range class.students {
			var studentID int64
			if err := tx.GetContext(ctx, &studentID, `
				INSERT INTO students (name, email) VALUES ($1, $2)
				ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
				RETURNING id
			`, st.Name, st.Email); err != nil {
				return fmt.Errorf("seed student %s: %w", st.Email, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO enrollments (school_class_id, student_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, classID, studentID); err != nil {
				return fmt.Errorf("seed enrollment: %w", err)
			}
		}
	}
	return tx.Commit()
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", ErrUnknownReference, pgErr.ConstraintName)
	}
	return err
}

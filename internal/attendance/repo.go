package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"faceattend/internal/model"
)

const (
	uniqueViolation = "23505"
	// an id that is not a uuid cannot name any row
	invalidTextRepresentation = "22P02"
)

// Repository persists students, courses, enrollments and attendance in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the schema if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id               UUID PRIMARY KEY,
	name             TEXT NOT NULL,
	admission_number TEXT NOT NULL UNIQUE,
	school           TEXT NOT NULL,
	reference_image  TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS courses (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	code       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS student_courses (
	id         UUID PRIMARY KEY,
	student_id UUID NOT NULL REFERENCES students(id),
	course_id  UUID NOT NULL REFERENCES courses(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (student_id, course_id)
);

CREATE TABLE IF NOT EXISTS attendance (
	id         UUID PRIMARY KEY,
	student_id UUID NOT NULL REFERENCES students(id),
	course_id  UUID NOT NULL REFERENCES courses(id),
	marked_at  TIMESTAMPTZ NOT NULL,
	marked_on  DATE NOT NULL,
	status     TEXT NOT NULL DEFAULT 'present',
	UNIQUE (student_id, course_id, marked_on)
);

CREATE INDEX IF NOT EXISTS idx_attendance_marked_at ON attendance(marked_at);
`

// ListCourses returns all courses ordered by name.
func (r *Repository) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, code, created_at FROM courses ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// GetCourse returns a course by id.
func (r *Repository) GetCourse(ctx context.Context, id string) (model.Course, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, code, created_at FROM courses WHERE id = $1`, id)
	return scanCourse(row)
}

// GetCourseByCode returns a course by its unique code.
func (r *Repository) GetCourseByCode(ctx context.Context, code string) (model.Course, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, code, created_at FROM courses WHERE code = $1`, code)
	return scanCourse(row)
}

// CreateCourse inserts a course, or returns the existing row when the code
// is already taken.
func (r *Repository) CreateCourse(ctx context.Context, name, code string) (model.Course, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (id, name, code)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
		RETURNING id, name, code, created_at
	`, uuid.NewString(), name, code)
	return scanCourse(row)
}

// CreateStudent inserts a student carrying the reference image.
func (r *Repository) CreateStudent(ctx context.Context, s model.NewStudent) (model.Student, error) {
	st := model.Student{
		ID:              uuid.NewString(),
		Name:            s.Name,
		AdmissionNumber: s.AdmissionNumber,
		School:          s.School,
		ReferenceImage:  s.ReferenceImage,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, name, admission_number, school, reference_image)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, st.ID, st.Name, st.AdmissionNumber, st.School, st.ReferenceImage)
	if err := row.Scan(&st.CreatedAt); err != nil {
		return model.Student{}, mapError(err)
	}
	return st, nil
}

// GetStudent returns a student by id.
func (r *Repository) GetStudent(ctx context.Context, id string) (model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, admission_number, school, reference_image, created_at
		FROM students WHERE id = $1
	`, id)
	var st model.Student
	if err := row.Scan(&st.ID, &st.Name, &st.AdmissionNumber, &st.School, &st.ReferenceImage, &st.CreatedAt); err != nil {
		return model.Student{}, mapError(err)
	}
	return st, nil
}

// ListStudents returns every student with a reference image, oldest first.
func (r *Repository) ListStudents(ctx context.Context) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, admission_number, school, reference_image, created_at
		FROM students WHERE reference_image <> '' ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.AdmissionNumber, &st.School, &st.ReferenceImage, &st.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// CreateEnrollment links a student to a course; repeated calls are no-ops.
func (r *Repository) CreateEnrollment(ctx context.Context, studentID, courseID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO student_courses (id, student_id, course_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, course_id) DO NOTHING
	`, uuid.NewString(), studentID, courseID)
	return mapError(err)
}

// GetEnrollment returns the enrollment for a student and course.
func (r *Repository) GetEnrollment(ctx context.Context, studentID, courseID string) (model.Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, course_id, created_at
		FROM student_courses WHERE student_id = $1 AND course_id = $2
	`, studentID, courseID)
	var e model.Enrollment
	if err := row.Scan(&e.ID, &e.StudentID, &e.CourseID, &e.CreatedAt); err != nil {
		return model.Enrollment{}, mapError(err)
	}
	return e, nil
}

// GetAttendanceRecord returns the latest record marked at or after since.
func (r *Repository) GetAttendanceRecord(ctx context.Context, studentID, courseID string, since time.Time) (model.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, course_id, marked_at, marked_on, status
		FROM attendance
		WHERE student_id = $1 AND course_id = $2 AND marked_at >= $3
		ORDER BY marked_at DESC
		LIMIT 1
	`, studentID, courseID, since)
	var rec model.AttendanceRecord
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.CourseID, &rec.MarkedAt, &rec.MarkedOn, &rec.Status); err != nil {
		return model.AttendanceRecord{}, mapError(err)
	}
	return rec, nil
}

// CreateAttendanceRecord inserts a record. A second record for the same
// student, course and day fails with ErrConstraintViolation.
func (r *Repository) CreateAttendanceRecord(ctx context.Context, in model.NewAttendance) (model.AttendanceRecord, error) {
	rec := model.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: in.StudentID,
		CourseID:  in.CourseID,
		MarkedAt:  in.MarkedAt,
		MarkedOn:  in.MarkedOn,
		Status:    in.Status,
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = model.StatusPresent
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, course_id, marked_at, marked_on, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.StudentID, rec.CourseID, rec.MarkedAt, rec.MarkedOn.Format(time.DateOnly), rec.Status)
	if err != nil {
		return model.AttendanceRecord{}, mapError(err)
	}
	return rec, nil
}

func scanCourse(row *sql.Row) (model.Course, error) {
	var c model.Course
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt); err != nil {
		return model.Course{}, mapError(err)
	}
	return c, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", ErrConstraintViolation, pgErr.ConstraintName)
		case invalidTextRepresentation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.Message)
		}
	}
	return err
}

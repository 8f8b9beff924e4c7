package attendance

import (
	"context"
	"errors"
	"time"

	"faceattend/internal/model"
)

var (
	// ErrNotFound is returned by Store lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrConstraintViolation is returned when a write breaks a uniqueness rule.
	ErrConstraintViolation = errors.New("constraint violation")
)

// Store is the remote data store contract consumed by the pipeline.
// Any error other than ErrNotFound or ErrConstraintViolation is treated as
// a transient network failure.
type Store interface {
	ListCourses(ctx context.Context) ([]model.Course, error)
	GetCourse(ctx context.Context, id string) (model.Course, error)
	GetCourseByCode(ctx context.Context, code string) (model.Course, error)
	CreateCourse(ctx context.Context, name, code string) (model.Course, error)

	CreateStudent(ctx context.Context, s model.NewStudent) (model.Student, error)
	GetStudent(ctx context.Context, id string) (model.Student, error)

	CreateEnrollment(ctx context.Context, studentID, courseID string) error
	GetEnrollment(ctx context.Context, studentID, courseID string) (model.Enrollment, error)

	GetAttendanceRecord(ctx context.Context, studentID, courseID string, since time.Time) (model.AttendanceRecord, error)
	CreateAttendanceRecord(ctx context.Context, rec model.NewAttendance) (model.AttendanceRecord, error)
}

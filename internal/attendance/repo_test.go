package attendance

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/model"
)

func newRepoMock(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewRepository(db), mock, func() { db.Close() }
}

func TestRepositoryListCourses(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "code", "created_at"}).
		AddRow("c-1", "Algorithms", "CS201", time.Now()).
		AddRow("c-2", "Data Structures", "CS101", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, code, created_at FROM courses ORDER BY name")).
		WillReturnRows(rows)

	courses, err := repo.ListCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "CS201", courses[0].Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetCourseNotFound(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE code = $1")).
		WithArgs("CS999").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetCourseByCode(context.Background(), "CS999")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMalformedIDIsNotFound(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	badUUID := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "CS201"`}
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
		WithArgs("CS201").
		WillReturnError(badUUID)
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("face-42").
		WillReturnError(badUUID)

	_, err := repo.GetCourse(context.Background(), "CS201")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetStudent(context.Background(), "face-42")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateCourseUpsertsByCode(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO courses .* ON CONFLICT \(code\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "Data Structures", "CS101").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "created_at"}).
			AddRow("c-1", "Data Structures", "CS101", time.Now()))

	c, err := repo.CreateCourse(context.Background(), "Data Structures", "CS101")
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateStudent(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO students`).
		WithArgs(sqlmock.AnyArg(), "Jane Doe", "ADM-001", model.SchoolComputing, "data:image/jpeg;base64,AA").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	st, err := repo.CreateStudent(context.Background(), model.NewStudent{
		Name: "Jane Doe", AdmissionNumber: "ADM-001", School: model.SchoolComputing, ReferenceImage: "data:image/jpeg;base64,AA",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, created, st.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetEnrollment(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM student_courses WHERE student_id = $1 AND course_id = $2")).
		WithArgs("s-1", "c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "created_at"}).
			AddRow("e-1", "s-1", "c-1", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM student_courses WHERE student_id = $1 AND course_id = $2")).
		WithArgs("s-1", "c-2").
		WillReturnError(sql.ErrNoRows)

	e, err := repo.GetEnrollment(context.Background(), "s-1", "c-1")
	require.NoError(t, err)
	assert.Equal(t, "e-1", e.ID)

	_, err = repo.GetEnrollment(context.Background(), "s-1", "c-2")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetAttendanceRecordSince(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	since := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	marked := since.Add(9 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND course_id = $2 AND marked_at >= $3")).
		WithArgs("s-1", "c-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "course_id", "marked_at", "marked_on", "status"}).
			AddRow("a-1", "s-1", "c-1", marked, since, model.StatusPresent))

	rec, err := repo.GetAttendanceRecord(context.Background(), "s-1", "c-1", since)
	require.NoError(t, err)
	assert.Equal(t, marked, rec.MarkedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateAttendanceRecordUniqueViolation(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO attendance`).
		WithArgs(sqlmock.AnyArg(), "s-1", "c-1", sqlmock.AnyArg(), "2026-05-04", model.StatusPresent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO attendance`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "attendance_student_id_course_id_marked_on_key"})

	in := model.NewAttendance{StudentID: "s-1", CourseID: "c-1", MarkedOn: day}
	rec, err := repo.CreateAttendanceRecord(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPresent, rec.Status)
	assert.False(t, rec.MarkedAt.IsZero())

	_, err = repo.CreateAttendanceRecord(context.Background(), in)
	assert.ErrorIs(t, err, ErrConstraintViolation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateEnrollmentIgnoresDuplicates(t *testing.T) {
	repo, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO student_courses .* ON CONFLICT \(student_id, course_id\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "s-1", "c-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.CreateEnrollment(context.Background(), "s-1", "c-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

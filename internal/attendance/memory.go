package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"faceattend/internal/model"
)

// MemoryStore is an in-process Store enforcing the same uniqueness rules as
// the Postgres schema. Used for dev runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	courses     map[string]model.Course
	students    map[string]model.Student
	enrollments map[[2]string]model.Enrollment
	records     []model.AttendanceRecord
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:     make(map[string]model.Course),
		students:    make(map[string]model.Student),
		enrollments: make(map[[2]string]model.Enrollment),
		now:         time.Now,
	}
}

// ListCourses returns all courses ordered by name.
func (m *MemoryStore) ListCourses(ctx context.Context) ([]model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetCourse returns a course by id.
func (m *MemoryStore) GetCourse(ctx context.Context, id string) (model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return model.Course{}, ErrNotFound
	}
	return c, nil
}

// GetCourseByCode returns a course by code.
func (m *MemoryStore) GetCourseByCode(ctx context.Context, code string) (model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.courseByCode(code); ok {
		return c, nil
	}
	return model.Course{}, ErrNotFound
}

// CreateCourse inserts a course or returns the one already holding code.
func (m *MemoryStore) CreateCourse(ctx context.Context, name, code string) (model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.courseByCode(code); ok {
		return c, nil
	}
	c := model.Course{ID: uuid.NewString(), Name: name, Code: code, CreatedAt: m.now().UTC()}
	m.courses[c.ID] = c
	return c, nil
}

func (m *MemoryStore) courseByCode(code string) (model.Course, bool) {
	for _, c := range m.courses {
		if c.Code == code {
			return c, true
		}
	}
	return model.Course{}, false
}

// CreateStudent inserts a student; admission numbers are unique.
func (m *MemoryStore) CreateStudent(ctx context.Context, s model.NewStudent) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.students {
		if st.AdmissionNumber == s.AdmissionNumber {
			return model.Student{}, ErrConstraintViolation
		}
	}
	st := model.Student{
		ID:              uuid.NewString(),
		Name:            s.Name,
		AdmissionNumber: s.AdmissionNumber,
		School:          s.School,
		ReferenceImage:  s.ReferenceImage,
		CreatedAt:       m.now().UTC(),
	}
	m.students[st.ID] = st
	return st, nil
}

// GetStudent returns a student by id.
func (m *MemoryStore) GetStudent(ctx context.Context, id string) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok {
		return model.Student{}, ErrNotFound
	}
	return st, nil
}

// ListStudents returns every student, oldest first.
func (m *MemoryStore) ListStudents(ctx context.Context) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Student, 0, len(m.students))
	for _, st := range m.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CreateEnrollment links a student to a course; repeated calls are no-ops.
func (m *MemoryStore) CreateEnrollment(ctx context.Context, studentID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{studentID, courseID}
	if _, ok := m.enrollments[key]; ok {
		return nil
	}
	m.enrollments[key] = model.Enrollment{
		ID:        uuid.NewString(),
		StudentID: studentID,
		CourseID:  courseID,
		CreatedAt: m.now().UTC(),
	}
	return nil
}

// GetEnrollment returns the enrollment for a student and course.
func (m *MemoryStore) GetEnrollment(ctx context.Context, studentID, courseID string) (model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[[2]string{studentID, courseID}]
	if !ok {
		return model.Enrollment{}, ErrNotFound
	}
	return e, nil
}

// GetAttendanceRecord returns the latest record marked at or after since.
func (m *MemoryStore) GetAttendanceRecord(ctx context.Context, studentID, courseID string, since time.Time) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		found  model.AttendanceRecord
		exists bool
	)
	for _, rec := range m.records {
		if rec.StudentID != studentID || rec.CourseID != courseID || rec.MarkedAt.Before(since) {
			continue
		}
		if !exists || rec.MarkedAt.After(found.MarkedAt) {
			found, exists = rec, true
		}
	}
	if !exists {
		return model.AttendanceRecord{}, ErrNotFound
	}
	return found, nil
}

// CreateAttendanceRecord inserts a record, rejecting a second one for the
// same student, course and day.
func (m *MemoryStore) CreateAttendanceRecord(ctx context.Context, in model.NewAttendance) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := in.MarkedOn.Format(time.DateOnly)
	for _, rec := range m.records {
		if rec.StudentID == in.StudentID && rec.CourseID == in.CourseID && rec.MarkedOn.Format(time.DateOnly) == day {
			return model.AttendanceRecord{}, ErrConstraintViolation
		}
	}
	rec := model.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: in.StudentID,
		CourseID:  in.CourseID,
		MarkedAt:  in.MarkedAt,
		MarkedOn:  in.MarkedOn,
		Status:    in.Status,
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = m.now().UTC()
	}
	if rec.Status == "" {
		rec.Status = model.StatusPresent
	}
	m.records = append(m.records, rec)
	return rec, nil
}

// Records returns a copy of every attendance record.
func (m *MemoryStore) Records() []model.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AttendanceRecord(nil), m.records...)
}

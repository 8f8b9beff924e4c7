package model

import (
	"strings"
	"time"
)

// StatusPresent is the status of every recorded attendance.
const StatusPresent = "present"

// Schools a student can register under.
const (
	SchoolComputing  = "School of Computing Sciences"
	SchoolBusiness   = "Business"
	SchoolMultimedia = "Multimedia and Journalism"
	SchoolLaw        = "Law"
)

// Student represents a registered student.
type Student struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	AdmissionNumber string    `json:"admission_number"`
	School          string    `json:"school"`
	ReferenceImage  string    `json:"-"` // encoded capture frame
	CreatedAt       time.Time `json:"created_at"`
}

// Course is created on first reference during registration and never changes.
type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrollment permits a student to mark attendance for a course.
type Enrollment struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AttendanceRecord is a single attendance mark. At most one exists per
// student, course and calendar day.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	MarkedAt  time.Time `json:"marked_at"`
	MarkedOn  time.Time `json:"-"` // calendar day, midnight in the configured zone
	Status    string    `json:"status"`
}

// NewStudent holds the fields needed to create a student row.
type NewStudent struct {
	Name            string
	AdmissionNumber string
	School          string
	ReferenceImage  string
}

// NewAttendance holds the fields needed to create an attendance record.
type NewAttendance struct {
	StudentID string
	CourseID  string
	Status    string
	MarkedAt  time.Time
	MarkedOn  time.Time
}

// Registration is the payload collected by the registration form.
// Courses are "CODE - Name" strings.
type Registration struct {
	Name            string   `json:"name" validate:"required,max=200"`
	AdmissionNumber string   `json:"admission_number" validate:"required,max=64"`
	School          string   `json:"school" validate:"required,oneof='School of Computing Sciences' Business 'Multimedia and Journalism' Law"`
	Courses         []string `json:"courses" validate:"required,min=1,dive,required"`
}

// CourseRef is a parsed registration course reference.
type CourseRef struct {
	Code string
	Name string
}

// ParseCourseRef splits "CODE - Name". Only the first separator splits; the
// remainder is the name. The code is upper-cased.
func ParseCourseRef(s string) (CourseRef, bool) {
	code, name, found := strings.Cut(s, " - ")
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if !found || code == "" || name == "" {
		return CourseRef{}, false
	}
	return CourseRef{Code: code, Name: name}, true
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

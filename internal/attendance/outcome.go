package attendance

import "faceattend/internal/model"

// Mode selects which workflow a pipeline run executes.
type Mode string

const (
	ModeAttendance   Mode = "attendance"
	ModeRegistration Mode = "registration"
)

// Context is the target of a pipeline run.
type Context struct {
	Mode         Mode
	CourseID     string              // attendance
	Registration *model.Registration // registration
}

// Kind classifies a terminal outcome.
type Kind string

const (
	KindSuccess        Kind = "success"
	KindNoMatch        Kind = "no_match"
	KindNotEnrolled    Kind = "not_enrolled"
	KindAlreadyMarked  Kind = "already_marked"
	KindTransientError Kind = "transient_error"
	KindDeviceError    Kind = "device_error"
	KindPipelineError  Kind = "pipeline_error"
)

// Steps reported on failed outcomes.
const (
	StepCapture    = "capture"
	StepDevice     = "device"
	StepCourse     = "course"
	StepMatch      = "match"
	StepStudent    = "student"
	StepEnrollment = "enrollment"
	StepDuplicate  = "duplicate_check"
	StepRecord     = "record"
	StepValidate   = "validate"
)

// Outcome ends a verification attempt.
type Outcome struct {
	Kind    Kind
	Mode    Mode
	Step    string
	Student *model.Student
	Course  *model.Course
	Record  *model.AttendanceRecord
	Err     error
}

// Succeeded reports a Success outcome.
func (o Outcome) Succeeded() bool { return o.Kind == KindSuccess }

// Rejected reports an expected business outcome that allows a re-scan.
func (o Outcome) Rejected() bool {
	switch o.Kind {
	case KindNoMatch, KindNotEnrolled, KindAlreadyMarked:
		return true
	}
	return false
}

// Retryable reports whether the same frame may be verified again.
func (o Outcome) Retryable() bool { return o.Kind == KindTransientError }

// Message is a short human readable description of the outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindSuccess:
		if o.Mode == ModeRegistration {
			return "registration complete"
		}
		return "attendance marked"
	case KindNoMatch:
		return "face not recognized, please register first"
	case KindNotEnrolled:
		return "you are not enrolled in this course"
	case KindAlreadyMarked:
		return "attendance already marked for this course today"
	case KindTransientError:
		return "temporary failure, please try again"
	case KindDeviceError:
		return "camera unavailable, check camera permissions"
	default:
		return "could not complete the request"
	}
}

func failed(mode Mode, kind Kind, step string, err error) Outcome {
	return Outcome{Kind: kind, Mode: mode, Step: step, Err: err}
}

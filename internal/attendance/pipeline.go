package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"faceattend/internal/model"
)

// Pipeline runs a captured frame through the attendance or registration
// workflow against the remote store and yields exactly one Outcome.
type Pipeline struct {
	store    Store
	matcher  Matcher
	enroller Enroller
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
	timeout  time.Duration
	observe  func(Outcome, time.Duration)
	log      *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEnroller registers new students' frames with a matcher backend.
func WithEnroller(e Enroller) Option { return func(p *Pipeline) { p.enroller = e } }

// WithLocation sets the zone defining calendar days.
func WithLocation(loc *time.Location) Option { return func(p *Pipeline) { p.loc = loc } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithTimeout bounds a single run.
func WithTimeout(d time.Duration) Option { return func(p *Pipeline) { p.timeout = d } }

// WithObserver is called after every run with its outcome and duration.
func WithObserver(fn func(Outcome, time.Duration)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.log = l } }

// NewPipeline creates a pipeline backed by a store and matcher.
func NewPipeline(store Store, matcher Matcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		matcher:  matcher,
		validate: validator.New(),
		loc:      time.Local,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("pipeline")
	return p
}

// Courses lists the courses attendance can be marked for.
func (p *Pipeline) Courses(ctx context.Context) ([]model.Course, error) {
	return p.store.ListCourses(ctx)
}

// Course returns a single course.
func (p *Pipeline) Course(ctx context.Context, id string) (model.Course, error) {
	return p.store.GetCourse(ctx, id)
}

// Run verifies or records one frame. It never returns an error; failures are
// folded into the outcome.
func (p *Pipeline) Run(ctx context.Context, frame model.Frame, target Context) Outcome {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	start := time.Now()

	var out Outcome
	switch target.Mode {
	case ModeAttendance:
		out = p.attend(ctx, frame, target.CourseID)
	case ModeRegistration:
		out = p.register(ctx, frame, target.Registration)
	default:
		out = failed(target.Mode, KindPipelineError, StepValidate, fmt.Errorf("unknown mode %q", target.Mode))
	}

	elapsed := time.Since(start)
	fields := []zap.Field{
		zap.String("mode", string(out.Mode)),
		zap.String("outcome", string(out.Kind)),
		zap.Duration("elapsed", elapsed),
	}
	if out.Step != "" {
		fields = append(fields, zap.String("step", out.Step))
	}
	if out.Err != nil {
		fields = append(fields, zap.Error(out.Err))
	}
	if out.Student != nil {
		fields = append(fields, zap.String("student_id", out.Student.ID))
	}
	switch out.Kind {
	case KindTransientError, KindPipelineError:
		p.log.Warn("verification failed", fields...)
	default:
		p.log.Info("verification finished", fields...)
	}
	if p.observe != nil {
		p.observe(out, elapsed)
	}
	return out
}

func (p *Pipeline) attend(ctx context.Context, frame model.Frame, courseID string) Outcome {
	const mode = ModeAttendance
	if frame.Empty() {
		return failed(mode, KindPipelineError, StepCapture, model.ErrEmptyFrame)
	}

	course, err := p.store.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return failed(mode, KindPipelineError, StepCourse, fmt.Errorf("course %s: %w", courseID, err))
		}
		return failed(mode, KindTransientError, StepCourse, err)
	}

	studentID, err := p.matcher.Match(ctx, frame)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			return Outcome{Kind: KindNoMatch, Mode: mode, Step: StepMatch, Course: &course}
		}
		return failed(mode, KindTransientError, StepMatch, err)
	}

	student, err := p.store.GetStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// matcher returned an identity the store no longer knows
			return Outcome{Kind: KindNoMatch, Mode: mode, Step: StepStudent, Course: &course}
		}
		return failed(mode, KindTransientError, StepStudent, err)
	}

	if _, err := p.store.GetEnrollment(ctx, student.ID, course.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Outcome{Kind: KindNotEnrolled, Mode: mode, Step: StepEnrollment, Student: &student, Course: &course}
		}
		return failed(mode, KindTransientError, StepEnrollment, err)
	}

	now := p.now()
	day := model.StartOfDay(now, p.loc)

	existing, err := p.store.GetAttendanceRecord(ctx, student.ID, course.ID, day)
	switch {
	case err == nil:
		return Outcome{Kind: KindAlreadyMarked, Mode: mode, Step: StepDuplicate, Student: &student, Course: &course, Record: &existing}
	case !errors.Is(err, ErrNotFound):
		return failed(mode, KindTransientError, StepDuplicate, err)
	}

	rec, err := p.store.CreateAttendanceRecord(ctx, model.NewAttendance{
		StudentID: student.ID,
		CourseID:  course.ID,
		Status:    model.StatusPresent,
		MarkedAt:  now.UTC(),
		MarkedOn:  day,
	})
	if err != nil {
		if errors.Is(err, ErrConstraintViolation) {
			// a concurrent scan won the insert
			return Outcome{Kind: KindAlreadyMarked, Mode: mode, Step: StepRecord, Student: &student, Course: &course}
		}
		return failed(mode, KindTransientError, StepRecord, err)
	}
	return Outcome{Kind: KindSuccess, Mode: mode, Student: &student, Course: &course, Record: &rec}
}

func (p *Pipeline) register(ctx context.Context, frame model.Frame, reg *model.Registration) Outcome {
	const mode = ModeRegistration
	if reg == nil {
		return failed(mode, KindPipelineError, StepValidate, errors.New("registration payload required"))
	}
	if err := p.validate.Struct(reg); err != nil {
		return failed(mode, KindPipelineError, StepValidate, err)
	}
	refs, err := courseRefs(reg.Courses)
	if err != nil {
		return failed(mode, KindPipelineError, StepValidate, err)
	}
	if frame.Empty() {
		return failed(mode, KindPipelineError, StepCapture, model.ErrEmptyFrame)
	}

	student, err := p.store.CreateStudent(ctx, model.NewStudent{
		Name:            reg.Name,
		AdmissionNumber: reg.AdmissionNumber,
		School:          reg.School,
		ReferenceImage:  frame.Data,
	})
	if err != nil {
		return failed(mode, KindPipelineError, StepStudent, fmt.Errorf("create student: %w", err))
	}

	for _, ref := range refs {
		course, err := p.store.GetCourseByCode(ctx, ref.Code)
		if errors.Is(err, ErrNotFound) {
			course, err = p.store.CreateCourse(ctx, ref.Name, ref.Code)
		}
		if err != nil {
			return failed(mode, KindPipelineError, StepCourse, fmt.Errorf("course %s: %w", ref.Code, err))
		}
		if err := p.store.CreateEnrollment(ctx, student.ID, course.ID); err != nil {
			return failed(mode, KindPipelineError, StepEnrollment, fmt.Errorf("enroll %s: %w", ref.Code, err))
		}
	}

	if p.enroller != nil {
		if err := p.enroller.Enroll(ctx, student, frame); err != nil {
			// the student row is the source of truth; the gallery can be rebuilt
			p.log.Warn("face enrollment failed", zap.String("student_id", student.ID), zap.Error(err))
		}
	}
	return Outcome{Kind: KindSuccess, Mode: mode, Student: &student}
}

func courseRefs(courses []string) ([]model.CourseRef, error) {
	seen := make(map[string]bool, len(courses))
	refs := make([]model.CourseRef, 0, len(courses))
	for _, c := range courses {
		ref, ok := model.ParseCourseRef(c)
		if !ok {
			return nil, fmt.Errorf("invalid course %q, want \"CODE - Name\"", c)
		}
		if seen[ref.Code] {
			continue
		}
		seen[ref.Code] = true
		refs = append(refs, ref)
	}
	return refs, nil
}

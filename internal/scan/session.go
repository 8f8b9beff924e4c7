package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"faceattend/internal/attendance"
	"faceattend/internal/device"
	"faceattend/internal/model"
)

// State is a session lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateReady     State = "ready"
	StateScanning  State = "scanning"
	StateCaptured  State = "captured"
	StateVerifying State = "verifying"
	StateSucceeded State = "succeeded"
	StateRejected  State = "rejected"
	StateFailed    State = "failed"
	StateClosed    State = "closed"
)

var (
	ErrClosed       = errors.New("session closed")
	ErrStarted      = errors.New("session already started")
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrBusy is returned for triggers that arrive while a verification is in
	// flight. They are ignored.
	ErrBusy = errors.New("verification in progress")
)

// Verifier runs a captured frame to an outcome. *attendance.Pipeline
// implements it.
type Verifier interface {
	Run(ctx context.Context, frame model.Frame, target attendance.Context) attendance.Outcome
}

// Config tunes a session.
type Config struct {
	Constraints device.Constraints
	Step        int
	Interval    time.Duration
	Quality     int
}

// Snapshot is the observable view of a session.
type Snapshot struct {
	ID       string
	Mode     attendance.Mode
	State    State
	Progress int
	HasFrame bool
	Outcome  *attendance.Outcome
}

// Session drives one device through acquire, scan, capture and
// verification. All lifecycle state is owned by a single loop goroutine;
// the exported methods post commands to it.
type Session struct {
	id       string
	owner    string
	target   attendance.Context
	dev      device.Device
	verifier Verifier
	cfg      Config
	log      *zap.Logger

	cmds chan command
	done chan struct{}

	mu         sync.Mutex
	started    bool
	snap       Snapshot
	frame      model.Frame
	subs       map[int]func(Snapshot)
	outcomeFns []func(attendance.Outcome)
	nextSub    int
	silenced   bool

	// loop owned
	state    State
	stream   device.Stream
	timer    *Timer
	capture  *FrameCapture
	hasFrame bool
	captured model.Frame
	outcome  *attendance.Outcome
	attempt  int
	stopVer  context.CancelFunc
	released bool
}

type cmdKind int

const (
	cmdBegin cmdKind = iota
	cmdRetry
	cmdReset
	cmdCancel
)

type command struct {
	kind  cmdKind
	reply chan error
}

type acquireResult struct {
	stream device.Stream
	err    error
}

type verifyResult struct {
	attempt int
	outcome attendance.Outcome
}

// NewSession creates an idle session. Start begins acquiring the device.
func NewSession(dev device.Device, verifier Verifier, target attendance.Context, cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Constraints == (device.Constraints{}) {
		cfg.Constraints = device.DefaultConstraints()
	}
	id := uuid.NewString()
	s := &Session{
		id:       id,
		target:   target,
		dev:      dev,
		verifier: verifier,
		cfg:      cfg,
		log:      log.Named("session").With(zap.String("session_id", id), zap.String("mode", string(target.Mode))),
		cmds:     make(chan command),
		done:     make(chan struct{}),
		subs:     make(map[int]func(Snapshot)),
		state:    StateIdle,
		timer:    NewTimer(cfg.Step, cfg.Interval),
		capture:  NewFrameCapture(cfg.Quality),
	}
	s.snap = Snapshot{ID: id, Mode: target.Mode, State: StateIdle}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Owner identifies who opened the session, if set.
func (s *Session) Owner() string { return s.owner }

// Target returns what the session verifies against.
func (s *Session) Target() attendance.Context { return s.target }

// Done is closed once the session has released its device for good.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the most recently published view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Frame returns the captured frame of the current cycle, if any.
func (s *Session) Frame() (model.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, !s.frame.Empty()
}

// Subscribe registers fn for every state or progress change. Callbacks run on
// the session goroutine and must not call back into the session's blocking
// methods. The returned func unsubscribes.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// OnOutcome registers fn for every outcome the session produces.
func (s *Session) OnOutcome(fn func(attendance.Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomeFns = append(s.outcomeFns, fn)
}

// Start acquires the device and runs the session until it is cancelled,
// succeeds, loses its device or ctx ends.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	s.started = true
	go s.run(ctx)
	return nil
}

// BeginScan starts the progress timer. From Rejected or Failed it first
// clears the previous attempt.
func (s *Session) BeginScan() error { return s.send(cmdBegin) }

// RetryVerification re-runs verification on the retained frame after a
// transient failure.
func (s *Session) RetryVerification() error { return s.send(cmdRetry) }

// Reset abandons a scan or a finished attempt and returns to Ready.
func (s *Session) Reset() error { return s.send(cmdReset) }

// Cancel tears the session down. No further notifications are delivered.
// Cancelling a finished session is a no-op. A session cancelled before Start
// is closed and can no longer be started.
func (s *Session) Cancel() error {
	if s.closeUnstarted() {
		return nil
	}
	err := s.send(cmdCancel)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// closeUnstarted closes a session whose loop never ran and reports whether
// the session had not been started.
func (s *Session) closeUnstarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	select {
	case <-s.done:
	default:
		s.silenced = true
		s.snap.State = StateClosed
		close(s.done)
	}
	return true
}

func (s *Session) send(kind cmdKind) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		select {
		case <-s.done:
			return ErrClosed
		default:
			return fmt.Errorf("%w: session not started", ErrInvalidState)
		}
	}

	c := command{kind: kind, reply: make(chan error, 1)}
	select {
	case s.cmds <- c:
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-c.reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	s.setState(StateAcquiring)
	acquired := make(chan acquireResult, 1)
	acqCtx, stopAcquire := context.WithCancel(ctx)
	defer stopAcquire()
	go func() {
		st, err := s.dev.Acquire(acqCtx, s.cfg.Constraints)
		acquired <- acquireResult{stream: st, err: err}
	}()
	acquiring := true
	defer func() {
		if acquiring {
			// a stream that arrives after teardown is closed by whoever
			// receives it
			go func() {
				if r := <-acquired; r.stream != nil {
					r.stream.Close()
				}
			}()
		}
	}()

	verified := make(chan verifyResult, 1)

	for {
		var ready, dropped <-chan struct{}
		if s.stream != nil {
			if s.state == StateAcquiring {
				ready = s.stream.Ready()
			}
			dropped = s.stream.Dropped()
		}

		select {
		case <-ctx.Done():
			s.teardown()
			return

		case r := <-acquired:
			acquiring = false
			if r.err != nil {
				s.deviceFailure(fmt.Errorf("acquire: %w", r.err))
				return
			}
			s.stream = r.stream
			s.log.Debug("device acquired")

		case <-ready:
			s.setState(StateReady)

		case <-dropped:
			s.deviceFailure(device.ErrStreamDropped)
			return

		case <-s.timer.C():
			_, complete := s.timer.Advance()
			s.publish()
			if complete {
				s.takeFrame(ctx, verified)
			}

		case r := <-verified:
			if r.attempt != s.attempt {
				continue
			}
			if s.finish(r.outcome) {
				return
			}

		case c := <-s.cmds:
			if c.kind == cmdCancel {
				s.teardown()
				c.reply <- nil
				return
			}
			c.reply <- s.handle(ctx, c.kind, verified)
		}
	}
}

func (s *Session) handle(ctx context.Context, kind cmdKind, verified chan verifyResult) error {
	switch kind {
	case cmdBegin:
		switch s.state {
		case StateVerifying, StateCaptured:
			return ErrBusy
		case StateScanning:
			return nil
		case StateRejected, StateFailed:
			s.clearAttempt()
			s.setState(StateReady)
		case StateReady:
		default:
			return fmt.Errorf("%w: begin scan in %s", ErrInvalidState, s.state)
		}
		s.capture.Arm()
		s.timer.Start()
		s.setState(StateScanning)
		return nil

	case cmdRetry:
		if s.state == StateVerifying {
			return ErrBusy
		}
		if s.state != StateFailed || !s.hasFrame || s.outcome == nil || !s.outcome.Retryable() {
			return fmt.Errorf("%w: retry in %s", ErrInvalidState, s.state)
		}
		s.verify(ctx, verified)
		return nil

	case cmdReset:
		switch s.state {
		case StateReady:
			return nil
		case StateScanning, StateRejected, StateFailed:
			s.clearAttempt()
			s.setState(StateReady)
			return nil
		}
		return fmt.Errorf("%w: reset in %s", ErrInvalidState, s.state)
	}
	return fmt.Errorf("unknown command %d", kind)
}

func (s *Session) takeFrame(ctx context.Context, verified chan verifyResult) {
	frame, err := s.capture.Take(s.stream)
	switch {
	case errors.Is(err, ErrAlreadyCaptured):
		return
	case err != nil:
		s.log.Warn("capture failed", zap.Error(err))
		out := attendance.Outcome{
			Kind: attendance.KindTransientError,
			Mode: s.target.Mode,
			Step: attendance.StepCapture,
			Err:  err,
		}
		s.outcome = &out
		s.setState(StateFailed)
		s.emit(out)
		return
	}
	s.captured = frame
	s.hasFrame = true
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
	s.setState(StateCaptured)
	s.verify(ctx, verified)
}

func (s *Session) verify(ctx context.Context, verified chan verifyResult) {
	s.attempt++
	attempt := s.attempt
	vctx, cancel := context.WithCancel(ctx)
	s.stopVer = cancel
	s.outcome = nil
	s.setState(StateVerifying)

	frame, target := s.captured, s.target
	go func() {
		out := s.verifier.Run(vctx, frame, target)
		verified <- verifyResult{attempt: attempt, outcome: out}
	}()
}

// finish applies a verification outcome and reports whether the session is
// over.
func (s *Session) finish(out attendance.Outcome) bool {
	if s.stopVer != nil {
		s.stopVer()
		s.stopVer = nil
	}
	s.outcome = &out
	switch {
	case out.Succeeded():
		s.release()
		s.setState(StateSucceeded)
		s.emit(out)
		return true
	case out.Rejected():
		s.setState(StateRejected)
	default:
		s.setState(StateFailed)
	}
	s.emit(out)
	return false
}

func (s *Session) deviceFailure(err error) {
	s.log.Warn("device failure", zap.Error(err))
	s.stopWork()
	out := attendance.Outcome{
		Kind: attendance.KindDeviceError,
		Mode: s.target.Mode,
		Step: attendance.StepDevice,
		Err:  err,
	}
	s.outcome = &out
	s.release()
	s.setState(StateIdle)
	s.emit(out)
}

// teardown handles cancellation: everything stops and nobody is told.
func (s *Session) teardown() {
	s.mu.Lock()
	s.silenced = true
	s.mu.Unlock()
	s.stopWork()
	s.release()
	s.state = StateClosed
	s.mu.Lock()
	s.snap.State = StateClosed
	s.mu.Unlock()
	s.log.Debug("session cancelled")
}

func (s *Session) stopWork() {
	s.timer.Reset()
	s.attempt++
	if s.stopVer != nil {
		s.stopVer()
		s.stopVer = nil
	}
}

func (s *Session) release() {
	if s.released || s.stream == nil {
		return
	}
	s.released = true
	if err := s.stream.Close(); err != nil {
		s.log.Warn("release device", zap.Error(err))
	}
	s.log.Debug("device released")
}

func (s *Session) clearAttempt() {
	s.timer.Reset()
	s.hasFrame = false
	s.captured = model.Frame{}
	s.outcome = nil
	s.mu.Lock()
	s.frame = model.Frame{}
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	if s.state != st {
		s.log.Debug("state", zap.String("from", string(s.state)), zap.String("to", string(st)))
	}
	s.state = st
	s.publish()
}

func (s *Session) publish() {
	snap := Snapshot{
		ID:       s.id,
		Mode:     s.target.Mode,
		State:    s.state,
		Progress: s.timer.Progress(),
		HasFrame: s.hasFrame,
	}
	if s.outcome != nil {
		out := *s.outcome
		snap.Outcome = &out
	}

	s.mu.Lock()
	s.snap = snap
	if s.silenced {
		s.mu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) emit(out attendance.Outcome) {
	s.mu.Lock()
	if s.silenced {
		s.mu.Unlock()
		return
	}
	fns := append([]func(attendance.Outcome){}, s.outcomeFns...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(out)
	}
}

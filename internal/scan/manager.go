package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/attendance"
	"faceattend/internal/device"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDeviceBusy      = errors.New("device in use by another session")
)

// DefaultRetention keeps finished sessions readable for a while.
const DefaultRetention = 2 * time.Minute

// OutcomeHook observes outcomes of managed sessions. It runs on the session
// goroutine.
type OutcomeHook func(s *Session, out attendance.Outcome)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRetention sets how long finished sessions stay addressable.
func WithRetention(d time.Duration) ManagerOption {
	return func(m *Manager) { m.retain = d }
}

// WithOutcomeHook adds a hook called for every session outcome.
func WithOutcomeHook(h OutcomeHook) ManagerOption {
	return func(m *Manager) { m.hooks = append(m.hooks, h) }
}

// WithActiveObserver is told the number of live sessions when it changes.
func WithActiveObserver(fn func(int)) ManagerOption {
	return func(m *Manager) { m.onActive = fn }
}

// Manager owns the sessions of one capture device. At most one session holds
// the device at a time.
type Manager struct {
	dev      device.Device
	verifier Verifier
	cfg      Config
	log      *zap.Logger
	retain   time.Duration
	hooks    []OutcomeHook
	onActive func(int)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
	live     *Session
}

// NewManager creates a manager for dev.
func NewManager(dev device.Device, verifier Verifier, cfg Config, log *zap.Logger, opts ...ManagerOption) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dev:      dev,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
		retain:   DefaultRetention,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts a session for target on behalf of owner.
func (m *Manager) Open(owner string, target attendance.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if m.live != nil {
		return nil, ErrDeviceBusy
	}

	s := NewSession(m.dev, m.verifier, target, m.cfg, m.log)
	s.owner = owner
	for _, h := range m.hooks {
		h := h
		s.OnOutcome(func(out attendance.Outcome) { h(s, out) })
	}
	if err := s.Start(m.ctx); err != nil {
		return nil, err
	}
	m.sessions[s.ID()] = s
	m.live = s
	m.observe(1)

	m.wg.Add(1)
	go m.watch(s)
	return s, nil
}

// Get returns a live or recently finished session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Cancel tears down a session.
func (m *Manager) Cancel(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Cancel()
}

// Active reports whether a session currently holds the device.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live != nil
}

// Shutdown cancels every session and waits for their devices to be
// released.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) watch(s *Session) {
	defer m.wg.Done()
	<-s.Done()

	m.mu.Lock()
	if m.live == s {
		m.live = nil
		m.observe(0)
	}
	m.mu.Unlock()
	m.log.Debug("session finished", zap.String("session_id", s.ID()), zap.String("state", string(s.Snapshot().State)))

	time.AfterFunc(m.retain, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, s.ID())
	})
}

func (m *Manager) observe(n int) {
	if m.onActive != nil {
		m.onActive(n)
	}
}

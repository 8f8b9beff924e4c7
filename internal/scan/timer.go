package scan

import "time"

// Timer defaults.
const (
	DefaultStep     = 2
	DefaultInterval = 50 * time.Millisecond
	maxProgress     = 100
)

// Timer is the scan progress counter. It advances by Step on every tick of
// its interval and reports completion exactly once per Start.
//
// A Timer is owned by a single goroutine (the session loop) and is not safe
// for concurrent use. Stopped timers return a nil channel from C, so a
// pending tick can never be observed after Cancel or Reset.
type Timer struct {
	step     int
	interval time.Duration

	ticker    *time.Ticker
	progress  int
	running   bool
	completed bool
}

// NewTimer creates a stopped timer. Non-positive values select the defaults.
func NewTimer(step int, interval time.Duration) *Timer {
	if step <= 0 {
		step = DefaultStep
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Timer{step: step, interval: interval}
}

// Start resets progress to zero and starts ticking.
func (t *Timer) Start() {
	t.Reset()
	t.ticker = time.NewTicker(t.interval)
	t.running = true
}

// C delivers ticks while running, nil otherwise.
func (t *Timer) C() <-chan time.Time {
	if !t.running {
		return nil
	}
	return t.ticker.C
}

// Advance applies one tick. complete is true only on the first tick that
// reaches 100; the timer stops itself at that point.
func (t *Timer) Advance() (progress int, complete bool) {
	if !t.running {
		return t.progress, false
	}
	t.progress += t.step
	if t.progress >= maxProgress {
		t.progress = maxProgress
		t.stop()
		if !t.completed {
			t.completed = true
			return t.progress, true
		}
	}
	return t.progress, false
}

// Cancel stops the timer without completing. Progress is kept.
func (t *Timer) Cancel() {
	t.stop()
}

// Reset stops the timer and sets progress back to zero.
func (t *Timer) Reset() {
	t.stop()
	t.progress = 0
	t.completed = false
}

// Progress returns the current value in [0, 100].
func (t *Timer) Progress() int { return t.progress }

// Running reports whether ticks are being delivered.
func (t *Timer) Running() bool { return t.running }

func (t *Timer) stop() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	t.running = false
}

package device

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"
)

// Synthetic is a virtual camera producing a test pattern. It stands in for a
// real camera in development and tests.
type Synthetic struct {
	// WarmUp delays readiness after Acquire, like a camera loading metadata
	// and starting playback.
	WarmUp time.Duration
	// Err, when set, is returned from Acquire.
	Err error

	mu       sync.Mutex
	held     *syntheticStream
	acquired atomic.Int32
	released atomic.Int32
}

// NewSynthetic creates a virtual camera.
func NewSynthetic(warmUp time.Duration) *Synthetic {
	return &Synthetic{WarmUp: warmUp}
}

// Acquire starts a synthetic stream.
func (d *Synthetic) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	if d.held != nil {
		return nil, ErrDeviceUnavailable
	}
	if c.IdealWidth <= 0 || c.IdealHeight <= 0 {
		def := DefaultConstraints()
		c.IdealWidth, c.IdealHeight = def.IdealWidth, def.IdealHeight
	}

	s := &syntheticStream{
		owner:   d,
		width:   c.IdealWidth,
		height:  c.IdealHeight,
		ready:   make(chan struct{}),
		dropped: make(chan struct{}),
	}
	s.timer = time.AfterFunc(d.WarmUp, func() { close(s.ready) })
	d.held = s
	d.acquired.Add(1)
	return s, nil
}

// Acquired counts successful Acquire calls.
func (d *Synthetic) Acquired() int { return int(d.acquired.Load()) }

// Released counts streams closed.
func (d *Synthetic) Released() int { return int(d.released.Load()) }

// Held reports whether a stream is currently open.
func (d *Synthetic) Held() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held != nil
}

// Drop simulates the held stream dying.
func (d *Synthetic) Drop() {
	d.mu.Lock()
	s := d.held
	d.mu.Unlock()
	if s != nil {
		s.dropOnce.Do(func() { close(s.dropped) })
	}
}

func (d *Synthetic) release(s *syntheticStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held == s {
		d.held = nil
	}
	d.released.Add(1)
}

type syntheticStream struct {
	owner    *Synthetic
	width    int
	height   int
	ready    chan struct{}
	dropped  chan struct{}
	timer    *time.Timer
	seq      atomic.Uint32
	dropOnce sync.Once
	once     sync.Once
	closed   atomic.Bool
}

func (s *syntheticStream) Ready() <-chan struct{}   { return s.ready }
func (s *syntheticStream) Dropped() <-chan struct{} { return s.dropped }

func (s *syntheticStream) Frame() (image.Image, error) {
	if s.closed.Load() {
		return nil, ErrStreamDropped
	}
	if !IsReady(s) {
		return nil, ErrNotReady
	}
	return testPattern(s.width, s.height, s.seq.Add(1)), nil
}

func (s *syntheticStream) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		s.timer.Stop()
		s.owner.release(s)
	})
	return nil
}

// testPattern draws a small asymmetric pattern (dark left, bright right,
// moving bar) and scales it to the requested size.
func testPattern(w, h int, seq uint32) image.Image {
	const bw, bh = 64, 36
	base := image.NewRGBA(image.Rect(0, 0, bw, bh))
	bar := int(seq) % bw
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			v := uint8(40 + x*200/bw)
			c := color.RGBA{R: v, G: v, B: uint8(255 - int(v)/2), A: 255}
			if x == bar {
				c = color.RGBA{R: 0, G: 220, B: 240, A: 255}
			}
			base.SetRGBA(x, y, c)
		}
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), base, base.Bounds(), draw.Src, nil)
	return out
}

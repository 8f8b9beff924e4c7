//go:build linux

package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"sync"

	"github.com/blackjack/webcam"
)

// V4L2_PIX_FMT_MJPEG
const pixFmtMJPEG webcam.PixelFormat = 0x47504A4D

// Webcam is a V4L2 camera delivering MJPEG frames.
type Webcam struct {
	Path string

	mu   sync.Mutex
	held bool
}

// NewWebcam returns a camera bound to a device node such as /dev/video0.
func NewWebcam(path string) *Webcam {
	return &Webcam{Path: path}
}

// Acquire opens the device, negotiates MJPEG at the ideal size and starts
// streaming.
func (w *Webcam) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held {
		return nil, ErrDeviceUnavailable
	}

	cam, err := webcam.Open(w.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if _, ok := cam.GetSupportedFormats()[pixFmtMJPEG]; !ok {
		cam.Close()
		return nil, fmt.Errorf("%w: %s does not support MJPEG", ErrDeviceUnavailable, w.Path)
	}
	if c.IdealWidth <= 0 || c.IdealHeight <= 0 {
		def := DefaultConstraints()
		c.IdealWidth, c.IdealHeight = def.IdealWidth, def.IdealHeight
	}
	if _, _, _, err := cam.SetImageFormat(pixFmtMJPEG, uint32(c.IdealWidth), uint32(c.IdealHeight)); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: set format: %v", ErrDeviceUnavailable, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: start streaming: %v", ErrDeviceUnavailable, err)
	}

	s := &webcamStream{
		owner:   w,
		cam:     cam,
		ready:   make(chan struct{}),
		dropped: make(chan struct{}),
		stop:    make(chan struct{}),
	}
	w.held = true
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

type webcamStream struct {
	owner   *Webcam
	cam     *webcam.Webcam
	ready   chan struct{}
	dropped chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu     sync.RWMutex
	latest image.Image
}

func (s *webcamStream) Ready() <-chan struct{}   { return s.ready }
func (s *webcamStream) Dropped() <-chan struct{} { return s.dropped }

func (s *webcamStream) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, ErrNotReady
	}
	return s.latest, nil
}

func (s *webcamStream) loop() {
	defer s.wg.Done()
	var readyOnce sync.Once
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		err := s.cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			close(s.dropped)
			return
		}

		raw, err := s.cam.ReadFrame()
		if err != nil {
			close(s.dropped)
			return
		}
		if len(raw) == 0 {
			continue
		}
		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.latest = img
		s.mu.Unlock()
		readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *webcamStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		if stopErr := s.cam.StopStreaming(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.cam.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		s.owner.mu.Lock()
		s.owner.held = false
		s.owner.mu.Unlock()
	})
	return err
}

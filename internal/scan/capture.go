package scan

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"faceattend/internal/device"
	"faceattend/internal/model"
)

// DefaultQuality matches a 0.8 quality factor.
const DefaultQuality = 80

// ErrAlreadyCaptured is returned by Take when the current cycle already
// produced a frame.
var ErrAlreadyCaptured = errors.New("frame already captured for this scan")

// FrameCapture takes the single snapshot of a scanning cycle. Frames are
// mirrored horizontally so the stored image matches the mirrored preview;
// the same convention applies to registration and attendance captures.
type FrameCapture struct {
	quality int
	mirror  bool
	now     func() time.Time
	armed   bool
}

// NewFrameCapture creates a mirroring capture at the given JPEG quality.
func NewFrameCapture(quality int) *FrameCapture {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &FrameCapture{quality: quality, mirror: true, now: time.Now}
}

// Arm allows one Take for a new scanning cycle.
func (c *FrameCapture) Arm() { c.armed = true }

// Take snapshots the stream's current frame. It fails with
// ErrAlreadyCaptured on a repeated trigger and with device.ErrNotReady when
// the stream has not started delivering frames; neither produces a frame.
func (c *FrameCapture) Take(s device.Stream) (model.Frame, error) {
	if !c.armed {
		return model.Frame{}, ErrAlreadyCaptured
	}
	if !device.IsReady(s) {
		return model.Frame{}, device.ErrNotReady
	}
	img, err := s.Frame()
	if err != nil {
		return model.Frame{}, err
	}
	frame, err := Encode(img, c.quality, c.mirror, c.now())
	if err != nil {
		return model.Frame{}, err
	}
	c.armed = false
	return frame, nil
}

// Encode JPEG-encodes img as a data URL frame.
func Encode(img image.Image, quality int, mirror bool, at time.Time) (model.Frame, error) {
	b := img.Bounds()
	if b.Empty() {
		return model.Frame{}, model.ErrEmptyFrame
	}
	if mirror {
		img = Mirror(img)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return model.Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	return model.Frame{
		Data:       model.FramePrefix + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: at.UTC(),
	}, nil
}

// Mirror flips img horizontally into a new zero-origin image.
func Mirror(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	// x' = maxX - x, y' = y - minY
	m := f64.Aff3{
		-1, 0, float64(b.Max.X),
		0, 1, float64(-b.Min.Y),
	}
	draw.NearestNeighbor.Transform(dst, m, img, b, draw.Src, nil)
	return dst
}

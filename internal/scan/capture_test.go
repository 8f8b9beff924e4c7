package scan

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/device"
	"faceattend/internal/model"
)

func TestMirrorFlipsHorizontally(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 5, 13, 6))
	src.SetRGBA(10, 5, color.RGBA{R: 255, A: 255})
	src.SetRGBA(11, 5, color.RGBA{G: 255, A: 255})
	src.SetRGBA(12, 5, color.RGBA{B: 255, A: 255})

	out := Mirror(src)

	require.Equal(t, image.Rect(0, 0, 3, 1), out.Bounds())
	assert.Equal(t, color.RGBA{B: 255, A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, out.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(2, 0))
}

func TestEncodeProducesDataURL(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	frame, err := Encode(img, DefaultQuality, true, at)
	require.NoError(t, err)
	assert.Contains(t, frame.Data, model.FramePrefix)
	assert.Equal(t, 16, frame.Width)
	assert.Equal(t, 8, frame.Height)
	assert.Equal(t, at, frame.CapturedAt)

	decoded, err := frame.Image()
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())
}

func TestFrameCaptureOncePerArm(t *testing.T) {
	dev := device.NewSynthetic(0)
	s, err := dev.Acquire(context.Background(), device.Constraints{IdealWidth: 32, IdealHeight: 18})
	require.NoError(t, err)
	defer s.Close()
	<-s.Ready()

	c := NewFrameCapture(0)
	_, err = c.Take(s)
	assert.ErrorIs(t, err, ErrAlreadyCaptured, "unarmed capture is refused")

	c.Arm()
	frame, err := c.Take(s)
	require.NoError(t, err)
	assert.False(t, frame.Empty())

	_, err = c.Take(s)
	assert.ErrorIs(t, err, ErrAlreadyCaptured)
}

func TestFrameCaptureNotReady(t *testing.T) {
	dev := device.NewSynthetic(time.Hour)
	s, err := dev.Acquire(context.Background(), device.DefaultConstraints())
	require.NoError(t, err)
	defer s.Close()

	c := NewFrameCapture(DefaultQuality)
	c.Arm()
	frame, err := c.Take(s)
	assert.ErrorIs(t, err, device.ErrNotReady)
	assert.True(t, frame.Empty())
}

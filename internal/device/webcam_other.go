//go:build !linux

package device

import (
	"context"
	"fmt"
)

// Webcam is only supported on linux.
type Webcam struct {
	Path string
}

// NewWebcam returns a camera bound to a device node.
func NewWebcam(path string) *Webcam {
	return &Webcam{Path: path}
}

// Acquire always fails off linux.
func (w *Webcam) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	return nil, fmt.Errorf("%w: V4L2 capture requires linux", ErrDeviceUnavailable)
}

// Package device acquires and releases live camera streams.
package device

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPermissionDenied means the OS refused access to the camera.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable means no camera could be opened, including one
	// already held by another stream.
	ErrDeviceUnavailable = errors.New("camera unavailable")
	// ErrStreamDropped means a live stream stopped delivering frames.
	ErrStreamDropped = errors.New("camera stream dropped")
	// ErrNotReady is returned by Frame before the first frame is available.
	ErrNotReady = errors.New("camera stream not ready")
)

// Constraints describe the requested stream.
type Constraints struct {
	FacingMode  string
	IdealWidth  int
	IdealHeight int
}

// DefaultConstraints asks for the front camera at 1280x720.
func DefaultConstraints() Constraints {
	return Constraints{FacingMode: "user", IdealWidth: 1280, IdealHeight: 720}
}

// Device turns a physical or virtual camera on.
type Device interface {
	// Acquire starts the camera. A second Acquire before the stream is
	// closed fails with ErrDeviceUnavailable.
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live camera feed.
type Stream interface {
	// Ready is closed once frames are actually flowing.
	Ready() <-chan struct{}
	// Dropped is closed if the stream dies after being acquired.
	Dropped() <-chan struct{}
	// Frame returns the current frame, or ErrNotReady.
	Frame() (image.Image, error)
	// Close stops all tracks. Safe to call more than once.
	Close() error
}

// IsReady reports whether s has delivered its first frame.
func IsReady(s Stream) bool {
	if s == nil {
		return false
	}
	select {
	case <-s.Ready():
		return true
	default:
		return false
	}
}

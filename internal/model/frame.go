package model

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"time"
)

// FramePrefix marks the transport encoding of a captured frame.
const FramePrefix = "data:image/jpeg;base64,"

// ErrEmptyFrame is returned when decoding a frame with no payload.
var ErrEmptyFrame = errors.New("empty frame")

// Frame is a single captured snapshot: a JPEG encoded as a data URL.
// It is stored verbatim as a student's reference image and is the only
// payload handed to identity matching.
type Frame struct {
	Data       string    `json:"data"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// Empty reports whether the frame carries no image.
func (f Frame) Empty() bool {
	return f.Data == ""
}

// Bytes returns the raw JPEG payload.
func (f Frame) Bytes() ([]byte, error) {
	if f.Empty() {
		return nil, ErrEmptyFrame
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(f.Data, FramePrefix))
}

// Image decodes the JPEG payload.
func (f Frame) Image() (image.Image, error) {
	raw, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	return jpeg.Decode(bytes.NewReader(raw))
}

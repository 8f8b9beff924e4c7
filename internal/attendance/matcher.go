package attendance

import (
	"context"
	"errors"

	"faceattend/internal/model"
)

// ErrNoMatch is returned by a Matcher that cannot resolve the frame to a
// registered student.
var ErrNoMatch = errors.New("no matching identity")

// Matcher resolves a captured frame to a student id. Implementations are
// best effort; any error other than ErrNoMatch is treated as transient.
type Matcher interface {
	Match(ctx context.Context, frame model.Frame) (studentID string, err error)
}

// Enroller registers a student's reference frame with a matcher backend.
type Enroller interface {
	Enroll(ctx context.Context, student model.Student, frame model.Frame) error
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, frame model.Frame) (string, error)

// Match calls f.
func (f MatcherFunc) Match(ctx context.Context, frame model.Frame) (string, error) {
	return f(ctx, frame)
}

// Package archive consumes scan audit messages and stores their frames.
package archive

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"faceattend/internal/cloudinary"
	"faceattend/internal/model"
	"faceattend/internal/queue"
)

// Uploader stores a data URL image under a stable id.
type Uploader interface {
	UploadBase64(ctx context.Context, data, publicID string) (*cloudinary.UploadResult, error)
}

// Worker archives frames of scan audits. Audits without a frame, and all
// audits when no uploader is configured, are only logged. Frames that do not
// decode as JPEG are never uploaded.
type Worker struct {
	q        queue.Queue
	uploader Uploader
	log      *zap.Logger
}

// New creates a worker. uploader may be nil.
func New(q queue.Queue, uploader Uploader, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{q: q, uploader: uploader, log: log.Named("worker")}
}

// Run consumes until ctx ends or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	w.log.Info("worker started, waiting for messages")
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			w.log.Warn("archive failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	w.log.Info("worker stopped")
	return nil
}

// Handle processes one message.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeScanAudit {
		w.log.Debug("skip message", zap.String("type", msg.Type))
		return nil
	}
	a, err := queue.DecodeAudit(msg)
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("session_id", a.SessionID),
		zap.String("mode", a.Mode),
		zap.String("outcome", a.Outcome),
	}
	if a.StudentID != "" {
		fields = append(fields, zap.String("student_id", a.StudentID))
	}
	if a.Frame == "" || w.uploader == nil {
		w.log.Info("scan audited", fields...)
		return nil
	}

	img, err := model.Frame{Data: a.Frame}.Image()
	if err != nil {
		return fmt.Errorf("frame of %s: %w", a.SessionID, err)
	}
	size := img.Bounds().Size()
	fields = append(fields, zap.Int("width", size.X), zap.Int("height", size.Y))

	res, err := w.uploader.UploadBase64(ctx, a.Frame, PublicID(a))
	if err != nil {
		return fmt.Errorf("upload %s: %w", a.SessionID, err)
	}
	w.log.Info("scan archived", append(fields, zap.String("url", res.SecureURL))...)
	return nil
}

// PublicID names an archived frame by outcome and session.
func PublicID(a queue.ScanAudit) string {
	return strings.Join([]string{a.Mode, a.Outcome, a.SessionID}, "_")
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrAuditDropped is reported when the publisher backlog is full.
var ErrAuditDropped = errors.New("audit backlog full, dropped")

// TypeScanAudit tags scan audit messages.
const TypeScanAudit = "scan.audit"

// ScanAudit records one session outcome for later archiving.
type ScanAudit struct {
	SessionID string    `json:"session_id"`
	KioskID   string    `json:"kiosk_id,omitempty"`
	Mode      string    `json:"mode"`
	Outcome   string    `json:"outcome"`
	Step      string    `json:"step,omitempty"`
	Error     string    `json:"error,omitempty"`
	StudentID string    `json:"student_id,omitempty"`
	CourseID  string    `json:"course_id,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	Frame     string    `json:"frame,omitempty"`
	At        time.Time `json:"at"`
}

// PublishAudit wraps a into a message and publishes it.
func PublishAudit(ctx context.Context, q Queue, a ScanAudit) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode audit: %w", err)
	}
	return q.Publish(ctx, Message{Type: TypeScanAudit, Body: body})
}

// DecodeAudit extracts a scan audit from msg.
func DecodeAudit(msg Message) (ScanAudit, error) {
	if msg.Type != TypeScanAudit {
		return ScanAudit{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var a ScanAudit
	if err := json.Unmarshal(msg.Body, &a); err != nil {
		return ScanAudit{}, fmt.Errorf("decode audit: %w", err)
	}
	return a, nil
}

// AuditPublisher publishes audits off the caller's goroutine. Send never
// blocks: when the backlog is full the audit is dropped.
type AuditPublisher struct {
	q        Queue
	backlog  chan ScanAudit
	timeout  time.Duration
	onResult func(ScanAudit, error)
}

// NewAuditPublisher creates a publisher with room for size pending audits.
// onResult, if set, sees every publish result including drops.
func NewAuditPublisher(q Queue, size int, timeout time.Duration, onResult func(ScanAudit, error)) *AuditPublisher {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if onResult == nil {
		onResult = func(ScanAudit, error) {}
	}
	return &AuditPublisher{q: q, backlog: make(chan ScanAudit, size), timeout: timeout, onResult: onResult}
}

// Send queues a for publishing and reports whether it was accepted.
func (p *AuditPublisher) Send(a ScanAudit) bool {
	select {
	case p.backlog <- a:
		return true
	default:
		p.onResult(a, ErrAuditDropped)
		return false
	}
}

// Run publishes queued audits until ctx ends.
func (p *AuditPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-p.backlog:
			pctx, cancel := context.WithTimeout(ctx, p.timeout)
			err := PublishAudit(pctx, p.q, a)
			cancel()
			p.onResult(a, err)
		}
	}
}

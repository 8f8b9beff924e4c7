package archive

import (
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/queue"
	"faceattend/internal/scan"
)

// Audit describes one session outcome, with the captured frame when there
// is one.
func Audit(s *scan.Session, out attendance.Outcome) queue.ScanAudit {
	a := queue.ScanAudit{
		SessionID: s.ID(),
		KioskID:   s.Owner(),
		Mode:      string(out.Mode),
		Outcome:   string(out.Kind),
		Step:      out.Step,
		CourseID:  s.Target().CourseID,
		At:        time.Now().UTC(),
	}
	if out.Err != nil {
		a.Error = out.Err.Error()
	}
	if out.Student != nil {
		a.StudentID = out.Student.ID
	}
	if out.Record != nil {
		a.RecordID = out.Record.ID
	}
	if frame, ok := s.Frame(); ok {
		a.Frame = frame.Data
	}
	return a
}

// Hook hands every session outcome to p. It runs on the session goroutine
// and never waits on the queue.
func Hook(p *queue.AuditPublisher) scan.OutcomeHook {
	return func(s *scan.Session, out attendance.Outcome) {
		p.Send(Audit(s, out))
	}
}

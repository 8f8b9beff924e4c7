package httpapi

import (
	"faceattend/internal/attendance"
	"faceattend/internal/model"
	"faceattend/internal/scan"
)

type outcomeView struct {
	Kind      attendance.Kind         `json:"kind"`
	Step      string                  `json:"step,omitempty"`
	Message   string                  `json:"message"`
	Error     string                  `json:"error,omitempty"`
	Retryable bool                    `json:"retryable"`
	Student   *model.Student          `json:"student,omitempty"`
	Course    *model.Course           `json:"course,omitempty"`
	Record    *model.AttendanceRecord `json:"record,omitempty"`
}

type sessionView struct {
	ID       string          `json:"id"`
	Mode     attendance.Mode `json:"mode"`
	State    scan.State      `json:"state"`
	Progress int             `json:"progress"`
	HasFrame bool            `json:"has_frame"`
	Outcome  *outcomeView    `json:"outcome,omitempty"`
}

func newSessionView(s scan.Snapshot) sessionView {
	v := sessionView{
		ID:       s.ID,
		Mode:     s.Mode,
		State:    s.State,
		Progress: s.Progress,
		HasFrame: s.HasFrame,
	}
	if o := s.Outcome; o != nil {
		v.Outcome = &outcomeView{
			Kind:      o.Kind,
			Step:      o.Step,
			Message:   o.Message(),
			Retryable: o.Retryable(),
			Student:   o.Student,
			Course:    o.Course,
			Record:    o.Record,
		}
		if o.Err != nil {
			v.Outcome.Error = o.Err.Error()
		}
	}
	return v
}

package model

import (
	"encoding/json"
	"time"
)

// ProctorEvent is one recorded focus-guard incident during a timed
// attempt (tab switch, fullscreen exit). Events are queued best-effort
// and batch-persisted by the proctor worker; they inform review, they
// never gate grading.
type ProctorEvent struct {
	QuizID     string          `json:"quiz_id"`
	StudentID  int             `json:"student_id"`
	Kind       string          `json:"kind"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

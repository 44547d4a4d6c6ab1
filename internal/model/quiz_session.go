package model

import (
	"time"

	"github.com/google/uuid"
)

// QuizSession is the persisted ephemeral state of a timed attempt,
// one per (quiz, student) pair. Remaining time is never stored: it is
// always derived from StartedAt and the quiz time limit so that reloads
// and clock drift cannot extend an attempt.
type QuizSession struct {
	ID           uuid.UUID         `json:"id"`
	QuizID       uuid.UUID         `json:"quiz_id"`
	StudentID    int               `json:"student_id"`
	StartedAt    time.Time         `json:"started_at"`
	Order        []uuid.UUID       `json:"order"`
	Answers      map[string]Answer `json:"answers"`
	CurrentIndex int               `json:"current_index"`
	LastSavedAt  time.Time         `json:"last_saved_at"`
	SubmittedAt  *time.Time        `json:"submitted_at,omitempty"`
}

// Terminal reports whether the attempt has been finalized. A terminal
// session is immutable; starting again overwrites the slot with a fresh
// attempt.
func (s *QuizSession) Terminal() bool {
	return s.SubmittedAt != nil
}

// SessionState is the reload-time view of an attempt: everything the
// client needs to resume where it left off. RemainingSeconds is derived
// at read time, never stored.
type SessionState struct {
	QuizID           uuid.UUID         `json:"quiz_id"`
	StudentID        int               `json:"student_id"`
	StartedAt        time.Time         `json:"started_at"`
	Answers          map[string]Answer `json:"answers"`
	CurrentIndex     int               `json:"current_index"`
	RemainingSeconds int               `json:"remaining_seconds"`
}

// SessionSnapshot is the autosave payload: the mergeable subset of a
// session (answers, position, save time). It never carries StartedAt,
// Order or SubmittedAt — those are owned by attempt start and finalize.
type SessionSnapshot struct {
	QuizID       string            `json:"quiz_id"`
	StudentID    int               `json:"student_id"`
	Answers      map[string]Answer `json:"answers"`
	CurrentIndex int               `json:"current_index"`
	SavedAt      time.Time         `json:"saved_at"`
}

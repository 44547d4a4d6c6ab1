package websocket

import "github.com/quizdesk/quizdesk-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionFocus    Action = "focus"
	ActionExit     Action = "exit"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records or clears a single answer. An empty answer
// clears the stored value for the question.
type AnswerRequest struct {
	Action     Action       `json:"action"`
	QuestionID string       `json:"question_id"`
	Answer     model.Answer `json:"answer"`
}

// NavigateRequest moves the student's current question position.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// FocusRequest reports a focus-integrity event observed by the client:
// visibility_hidden, window_blur, fullscreen_exit or fullscreen_enter.
type FocusRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind"`
}

// ExitRequest announces an intentional exit, suppressing the focus
// guard so teardown blur events don't count as violations.
type ExitRequest struct {
	Action Action `json:"action"`
}

// SubmitRequest finishes and grades the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSaved    Event = "saved"
	EventLocked   Event = "locked"
	EventUnlocked Event = "unlocked"
	EventGraded   Event = "graded"
	EventPong     Event = "pong"
)

// SavedResponse acknowledges an autosave flush.
type SavedResponse struct {
	Event   Event  `json:"event"`
	SavedAt string `json:"saved_at"`
}

// LockedResponse tells the client to show the lock overlay.
// RemainingMS is 0 for an indefinite lock.
type LockedResponse struct {
	Event       Event  `json:"event"`
	State       string `json:"state"`
	RemainingMS int64  `json:"remaining_ms"`
}

// UnlockedResponse clears the lock overlay.
type UnlockedResponse struct {
	Event Event `json:"event"`
}

// GradedResponse carries the final score after submit.
type GradedResponse struct {
	Event Event `json:"event"`
	Score int   `json:"score"`
	Total int   `json:"total"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// PongResponse answers a ping and refreshes the remaining time, so the
// client's countdown can resynchronize against the server clock.
type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

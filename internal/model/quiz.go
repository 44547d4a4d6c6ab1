package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QuizStatus enumerates the possible states of a quiz.
type QuizStatus string

const (
	QuizStatusDraft     QuizStatus = "DRAFT"
	QuizStatusPublished QuizStatus = "PUBLISHED"
	QuizStatusArchived  QuizStatus = "ARCHIVED"
)

// Quiz represents a quiz entity. TimeLimitSeconds of zero means the quiz
// is untimed: untimed quizzes never create persisted sessions.
type Quiz struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	AuthorID         int        `json:"author_id"`
	TimeLimitSeconds int        `json:"time_limit_seconds"`
	ShuffleQuestions bool       `json:"shuffle_questions"`
	QuestionCount    int        `json:"question_count"`
	Status           QuizStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Timed reports whether the quiz uses the session/resume protocol.
func (q *Quiz) Timed() bool {
	return q.TimeLimitSeconds > 0
}

// CreateQuizRequest is the payload for creating a new quiz.
type CreateQuizRequest struct {
	Title            string `json:"title" binding:"required,min=3,max=255"`
	TimeLimitSeconds int    `json:"time_limit_seconds" binding:"min=0,max=28800"`
	ShuffleQuestions bool   `json:"shuffle_questions"`
}

// UpdateQuizRequest is the payload for updating an existing draft quiz.
type UpdateQuizRequest struct {
	Title            string `json:"title" binding:"omitempty,min=3,max=255"`
	TimeLimitSeconds *int   `json:"time_limit_seconds" binding:"omitempty,min=0,max=28800"`
	ShuffleQuestions *bool  `json:"shuffle_questions" binding:"omitempty"`
}

// QuizPayload is the Redis-cached payload sent to students (no correct answers).
type QuizPayload struct {
	QuizID           uuid.UUID            `json:"quiz_id"`
	Title            string               `json:"title"`
	TimeLimitSeconds int                  `json:"time_limit_seconds"`
	ShuffleQuestions bool                 `json:"shuffle_questions"`
	Questions        []QuestionForStudent `json:"questions"`
}

// QuestionIDs returns the payload's question identifiers in authored order.
func (p *QuizPayload) QuestionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(p.Questions))
	for i, q := range p.Questions {
		ids[i] = q.ID
	}
	return ids
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID       uuid.UUID       `json:"id"`
	Text     string          `json:"text"`
	Kind     QuestionKind    `json:"kind"`
	Options  json.RawMessage `json:"options"`
	OrderNum int             `json:"order_num"`
}

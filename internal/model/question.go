package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question represents a single quiz question. CorrectAnswers holds one
// option key for single-choice questions and the full correct set for
// multi-choice questions.
type Question struct {
	ID             uuid.UUID       `json:"id"`
	QuizID         uuid.UUID       `json:"quiz_id"`
	Text           string          `json:"text"`
	Kind           QuestionKind    `json:"kind"`
	Options        json.RawMessage `json:"options"`
	CorrectAnswers []string        `json:"correct_answers"`
	OrderNum       int             `json:"order_num"`
}

type QuestionKind string

const (
	QuestionKindSingle QuestionKind = "SINGLE_CHOICE"
	QuestionKindMulti  QuestionKind = "MULTI_CHOICE"
)

// QuestionKey is the grading view of a question: identity, prompt text
// and the authoritative answer, without options or ordering. Cached in
// Redis per quiz so finalize can grade without a PostgreSQL round trip.
type QuestionKey struct {
	ID             uuid.UUID    `json:"id"`
	Text           string       `json:"text"`
	Kind           QuestionKind `json:"kind"`
	CorrectAnswers []string     `json:"correct_answers"`
}

// Key returns the grading view of the question.
func (q *Question) Key() QuestionKey {
	return QuestionKey{
		ID:             q.ID,
		Text:           q.Text,
		Kind:           q.Kind,
		CorrectAnswers: q.CorrectAnswers,
	}
}

// AddQuestionRequest is the payload for adding a question to a quiz.
type AddQuestionRequest struct {
	Text           string          `json:"text" binding:"required,min=1,max=2000"`
	Kind           string          `json:"kind" binding:"required,oneof=SINGLE_CHOICE MULTI_CHOICE"`
	Options        json.RawMessage `json:"options" binding:"required"`
	CorrectAnswers []string        `json:"correct_answers" binding:"required,min=1,dive,max=10"`
	OrderNum       int             `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"dive"`
}

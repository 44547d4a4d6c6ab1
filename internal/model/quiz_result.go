package model

import (
	"time"

	"github.com/google/uuid"
)

// AnsweredQuestion records how one question was answered, for result review.
type AnsweredQuestion struct {
	QuestionID    uuid.UUID `json:"question_id"`
	QuestionText  string    `json:"question_text"`
	GivenAnswer   Answer    `json:"given_answer"`
	CorrectAnswer []string  `json:"correct_answer"`
	IsCorrect     bool      `json:"is_correct"`
}

// QuizResult is produced exactly once per finalize and is immutable
// after write. Score counts correct questions, Total is the question
// count of the attempt.
type QuizResult struct {
	ID                uuid.UUID          `json:"id"`
	QuizID            uuid.UUID          `json:"quiz_id"`
	StudentID         int                `json:"student_id"`
	TakenAt           time.Time          `json:"taken_at"`
	Score             int                `json:"score"`
	Total             int                `json:"total"`
	AnsweredQuestions []AnsweredQuestion `json:"answered_questions"`
	IsPractice        bool               `json:"is_practice"`
}

// PracticeGradeRequest is the payload for grading a practice attempt.
// Practice attempts are graded in place and never touch the session slot.
type PracticeGradeRequest struct {
	Answers map[string]Answer `json:"answers" binding:"required"`
}

// SubmitRequest is the optional payload for the HTTP submit endpoint.
// Timed attempts may omit it and are graded from the latest autosave;
// untimed attempts must carry their answers here, since nothing is
// autosaved for them.
type SubmitRequest struct {
	Answers map[string]Answer `json:"answers"`
}

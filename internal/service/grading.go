package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// Grade compares the given answers against the authoritative key and
// produces a QuizResult. Single-choice questions require an exact
// match; multi-choice questions require order-independent set equality
// ({B,A} matches {A,B}, {A} does not match {A,B}). Missing or empty
// answers count as incorrect; answers for unknown question IDs are
// ignored. Grading is pure — persistence is the caller's concern.
func Grade(quizID uuid.UUID, studentID int, key []model.QuestionKey, answers map[string]model.Answer, takenAt time.Time, isPractice bool) *model.QuizResult {
	answered := make([]model.AnsweredQuestion, len(key))
	score := 0

	for i, q := range key {
		given := answers[q.ID.String()]
		correct := answerMatches(q, given)
		if correct {
			score++
		}
		answered[i] = model.AnsweredQuestion{
			QuestionID:    q.ID,
			QuestionText:  q.Text,
			GivenAnswer:   given,
			CorrectAnswer: q.CorrectAnswers,
			IsCorrect:     correct,
		}
	}

	return &model.QuizResult{
		QuizID:            quizID,
		StudentID:         studentID,
		TakenAt:           takenAt,
		Score:             score,
		Total:             len(key),
		AnsweredQuestions: answered,
		IsPractice:        isPractice,
	}
}

func answerMatches(q model.QuestionKey, a model.Answer) bool {
	if a.IsEmpty() {
		return false
	}

	switch q.Kind {
	case model.QuestionKindSingle:
		return len(q.CorrectAnswers) == 1 && a.Kind == model.AnswerKindSingle && a.Value == q.CorrectAnswers[0]
	case model.QuestionKindMulti:
		return a.Kind == model.AnswerKindMulti && setsEqual(a.Values, q.CorrectAnswers)
	}
	return false
}

// setsEqual compares option selections as sets: order and duplicates
// are irrelevant.
func setsEqual(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, v := range b {
		other[v] = struct{}{}
	}
	if len(set) != len(other) {
		return false
	}
	for v := range set {
		if _, ok := other[v]; !ok {
			return false
		}
	}
	return true
}

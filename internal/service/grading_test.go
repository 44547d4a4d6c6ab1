package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdesk/quizdesk-backend/internal/model"
)

func singleQuestion(correct string) model.QuestionKey {
	return model.QuestionKey{
		ID:             uuid.New(),
		Text:           "capital of France?",
		Kind:           model.QuestionKindSingle,
		CorrectAnswers: []string{correct},
	}
}

func multiQuestion(correct ...string) model.QuestionKey {
	return model.QuestionKey{
		ID:             uuid.New(),
		Text:           "select the prime numbers",
		Kind:           model.QuestionKindMulti,
		CorrectAnswers: correct,
	}
}

func TestGradeSingleChoice(t *testing.T) {
	q := singleQuestion("B")
	quizID := uuid.New()

	cases := []struct {
		name    string
		given   model.Answer
		correct bool
	}{
		{"exact match", model.SingleAnswer("B"), true},
		{"wrong option", model.SingleAnswer("A"), false},
		{"empty", model.Answer{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Grade(quizID, 1, []model.QuestionKey{q},
				map[string]model.Answer{q.ID.String(): tc.given}, time.Now(), false)

			require.Len(t, res.AnsweredQuestions, 1)
			assert.Equal(t, tc.correct, res.AnsweredQuestions[0].IsCorrect)
		})
	}
}

func TestGradeMultiChoiceIsOrderIndependent(t *testing.T) {
	q := multiQuestion("A", "B")
	quizID := uuid.New()

	res := Grade(quizID, 1, []model.QuestionKey{q},
		map[string]model.Answer{q.ID.String(): model.MultiAnswer("B", "A")}, time.Now(), false)

	require.Equal(t, 1, res.Score)
	assert.True(t, res.AnsweredQuestions[0].IsCorrect)
}

func TestGradeMultiChoiceRejectsSubsets(t *testing.T) {
	q := multiQuestion("A", "B")
	quizID := uuid.New()

	for name, given := range map[string]model.Answer{
		"strict subset":   model.MultiAnswer("A"),
		"strict superset": model.MultiAnswer("A", "B", "C"),
		"disjoint":        model.MultiAnswer("C", "D"),
		"empty":           model.MultiAnswer(),
	} {
		t.Run(name, func(t *testing.T) {
			res := Grade(quizID, 1, []model.QuestionKey{q},
				map[string]model.Answer{q.ID.String(): given}, time.Now(), false)
			assert.Zero(t, res.Score)
		})
	}
}

func TestGradeDuplicatesDoNotInflateSets(t *testing.T) {
	q := multiQuestion("A", "B")

	res := Grade(uuid.New(), 1, []model.QuestionKey{q},
		map[string]model.Answer{q.ID.String(): model.MultiAnswer("A", "A", "B")}, time.Now(), false)

	assert.Equal(t, 1, res.Score, "duplicate selections collapse")
}

func TestGradeCountsAndRecordsEveryQuestion(t *testing.T) {
	q1 := singleQuestion("A")
	q2 := multiQuestion("X", "Y")
	q3 := singleQuestion("C")
	quizID := uuid.New()
	takenAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	answers := map[string]model.Answer{
		q1.ID.String(): model.SingleAnswer("A"),
		q2.ID.String(): model.MultiAnswer("Y", "X"),
		// q3 unanswered
		"not-a-question": model.SingleAnswer("Z"), // unknown IDs are ignored
	}

	res := Grade(quizID, 42, []model.QuestionKey{q1, q2, q3}, answers, takenAt, true)

	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, quizID, res.QuizID)
	assert.Equal(t, 42, res.StudentID)
	assert.Equal(t, takenAt, res.TakenAt)
	assert.True(t, res.IsPractice)

	require.Len(t, res.AnsweredQuestions, 3)
	assert.False(t, res.AnsweredQuestions[2].IsCorrect)
	assert.Equal(t, q3.CorrectAnswers, res.AnsweredQuestions[2].CorrectAnswer)
}

func TestGradeKindMismatchIsIncorrect(t *testing.T) {
	q := multiQuestion("A")

	res := Grade(uuid.New(), 1, []model.QuestionKey{q},
		map[string]model.Answer{q.ID.String(): model.SingleAnswer("A")}, time.Now(), false)

	assert.Zero(t, res.Score, "a single-shaped answer never satisfies a multi question")
}

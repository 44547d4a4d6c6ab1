package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// QuizResultRepository reads the append-only result history. Result
// rows are written by the finalize transaction (see
// QuizSessionRepository.FinalizeAttempt) and by the practice worker;
// nothing ever updates or deletes them.
type QuizResultRepository struct {
	pool *pgxpool.Pool
}

// NewQuizResultRepository creates a new QuizResultRepository.
func NewQuizResultRepository(pool *pgxpool.Pool) *QuizResultRepository {
	return &QuizResultRepository{pool: pool}
}

// AppendPractice records a practice attempt. Practice results live in
// the same append-only table, flagged, so review screens can show both.
func (r *QuizResultRepository) AppendPractice(ctx context.Context, result *model.QuizResult) error {
	answeredRaw, err := json.Marshal(result.AnsweredQuestions)
	if err != nil {
		return fmt.Errorf("encode answered questions: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_results (quiz_id, student_id, taken_at, score, total, answered_questions, is_practice)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		 RETURNING id`,
		result.QuizID, result.StudentID, result.TakenAt, result.Score, result.Total, answeredRaw,
	).Scan(&result.ID)
}

// ListByStudent retrieves a student's result history, newest first.
func (r *QuizResultRepository) ListByStudent(ctx context.Context, studentID int) ([]model.QuizResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, student_id, taken_at, score, total, answered_questions, is_practice
		 FROM quiz_results
		 WHERE student_id = $1
		 ORDER BY taken_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

// ListByQuiz retrieves graded (non-practice) results for a quiz with
// pagination, for the admin results view.
func (r *QuizResultRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID, limit, offset int) ([]model.QuizResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_results WHERE quiz_id = $1 AND is_practice = FALSE`, quizID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, quiz_id, student_id, taken_at, score, total, answered_questions, is_practice
		 FROM quiz_results
		 WHERE quiz_id = $1 AND is_practice = FALSE
		 ORDER BY taken_at DESC
		 LIMIT $2 OFFSET $3`, quizID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

type resultRows interface {
	Next() bool
	Scan(...any) error
	Err() error
}

func scanResults(rows resultRows) ([]model.QuizResult, error) {
	var results []model.QuizResult
	for rows.Next() {
		var res model.QuizResult
		var answeredRaw []byte
		if err := rows.Scan(&res.ID, &res.QuizID, &res.StudentID, &res.TakenAt,
			&res.Score, &res.Total, &answeredRaw, &res.IsPractice); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answeredRaw, &res.AnsweredQuestions); err != nil {
			return nil, fmt.Errorf("decode answered questions: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// QuizSessionRepository persists the ephemeral attempt state, one row
// per (quiz, student). It implements service.SessionStore.
type QuizSessionRepository struct {
	pool *pgxpool.Pool
}

// NewQuizSessionRepository creates a new QuizSessionRepository.
func NewQuizSessionRepository(pool *pgxpool.Pool) *QuizSessionRepository {
	return &QuizSessionRepository{pool: pool}
}

// Get retrieves the session for a (quiz, student) pair.
func (r *QuizSessionRepository) Get(ctx context.Context, quizID uuid.UUID, studentID int) (*model.QuizSession, error) {
	s := &model.QuizSession{}
	var orderRaw, answersRaw []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, quiz_id, student_id, started_at, question_order, answers,
		        current_index, last_saved_at, submitted_at
		 FROM quiz_sessions
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID,
	).Scan(&s.ID, &s.QuizID, &s.StudentID, &s.StartedAt, &orderRaw, &answersRaw,
		&s.CurrentIndex, &s.LastSavedAt, &s.SubmittedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(orderRaw, &s.Order); err != nil {
		return nil, fmt.Errorf("decode question order: %w", err)
	}
	if err := json.Unmarshal(answersRaw, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	return s, nil
}

// Put writes the full session record, overwriting the (quiz, student)
// slot. Used only at attempt start/restart — a restart after submission
// replaces the terminal session entirely.
func (r *QuizSessionRepository) Put(ctx context.Context, s *model.QuizSession) error {
	orderRaw, err := json.Marshal(s.Order)
	if err != nil {
		return fmt.Errorf("encode question order: %w", err)
	}
	answersRaw, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_sessions
		     (quiz_id, student_id, started_at, question_order, answers, current_index, last_saved_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
		 ON CONFLICT (quiz_id, student_id) DO UPDATE
		 SET started_at = EXCLUDED.started_at,
		     question_order = EXCLUDED.question_order,
		     answers = EXCLUDED.answers,
		     current_index = EXCLUDED.current_index,
		     last_saved_at = EXCLUDED.last_saved_at,
		     submitted_at = NULL
		 RETURNING id`,
		s.QuizID, s.StudentID, s.StartedAt, orderRaw, answersRaw, s.CurrentIndex, s.LastSavedAt,
	).Scan(&s.ID)
}

// SaveSnapshot merges an autosave snapshot (answers, position, save
// time) into a live session. Terminal sessions are never touched.
func (r *QuizSessionRepository) SaveSnapshot(ctx context.Context, snap *model.SessionSnapshot) error {
	quizID, err := uuid.Parse(snap.QuizID)
	if err != nil {
		return fmt.Errorf("parse quiz id: %w", err)
	}
	answersRaw, err := json.Marshal(snap.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET answers = $1, current_index = $2, last_saved_at = $3
		 WHERE quiz_id = $4 AND student_id = $5 AND submitted_at IS NULL`,
		answersRaw, snap.CurrentIndex, snap.SavedAt, quizID, snap.StudentID)
	return err
}

// SaveOrder persists a repaired question order for a live session.
func (r *QuizSessionRepository) SaveOrder(ctx context.Context, quizID uuid.UUID, studentID int, order []uuid.UUID) error {
	orderRaw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode question order: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET question_order = $1
		 WHERE quiz_id = $2 AND student_id = $3 AND submitted_at IS NULL`,
		orderRaw, quizID, studentID)
	return err
}

// FinalizeAttempt marks the session terminal and appends the result in
// one transaction. The guarded UPDATE makes finalize one-shot: if the
// session was already submitted (a duplicate timer fire, a second tab),
// zero rows match and the call reports ok=false without writing a
// duplicate result.
func (r *QuizSessionRepository) FinalizeAttempt(ctx context.Context, result *model.QuizResult) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE quiz_sessions
		 SET submitted_at = $1, last_saved_at = $1
		 WHERE quiz_id = $2 AND student_id = $3 AND submitted_at IS NULL`,
		result.TakenAt, result.QuizID, result.StudentID)
	if err != nil {
		return false, fmt.Errorf("mark terminal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	answeredRaw, err := json.Marshal(result.AnsweredQuestions)
	if err != nil {
		return false, fmt.Errorf("encode answered questions: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO quiz_results (quiz_id, student_id, taken_at, score, total, answered_questions, is_practice)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		 RETURNING id`,
		result.QuizID, result.StudentID, result.TakenAt, result.Score, result.Total, answeredRaw,
	).Scan(&result.ID); err != nil {
		return false, fmt.Errorf("append result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// AppendResult records a finalized attempt that has no session slot to
// guard. Untimed quizzes skip the resume protocol entirely, so their
// submissions go straight to the result history.
func (r *QuizSessionRepository) AppendResult(ctx context.Context, result *model.QuizResult) error {
	answeredRaw, err := json.Marshal(result.AnsweredQuestions)
	if err != nil {
		return fmt.Errorf("encode answered questions: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO quiz_results (quiz_id, student_id, taken_at, score, total, answered_questions, is_practice)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		 RETURNING id`,
		result.QuizID, result.StudentID, result.TakenAt, result.Score, result.Total, answeredRaw,
	).Scan(&result.ID)
}

// SessionOverview is the per-quiz session status shown in the lobby.
type SessionOverview struct {
	QuizID      uuid.UUID  `json:"quiz_id"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// ListByStudent retrieves all session overviews for a student.
func (r *QuizSessionRepository) ListByStudent(ctx context.Context, studentID int) ([]SessionOverview, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quiz_id, started_at, submitted_at
		 FROM quiz_sessions
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overviews []SessionOverview
	for rows.Next() {
		var o SessionOverview
		if err := rows.Scan(&o.QuizID, &o.StartedAt, &o.SubmittedAt); err != nil {
			return nil, err
		}
		overviews = append(overviews, o)
	}
	return overviews, rows.Err()
}

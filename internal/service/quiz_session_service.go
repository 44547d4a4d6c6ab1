package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// ErrAlreadySubmitted reports a finalize attempt against a session that
// was already terminal. Duplicate auto-submit triggers and racing tabs
// land here; the caller treats it as "someone else got there first".
var ErrAlreadySubmitted = errors.New("attempt already submitted")

// SessionStore is the durable side of the session protocol. The pgx
// repository implements it; tests use an in-memory fake. Get returns
// pgx.ErrNoRows when no session exists for the pair.
type SessionStore interface {
	Get(ctx context.Context, quizID uuid.UUID, studentID int) (*model.QuizSession, error)
	Put(ctx context.Context, s *model.QuizSession) error
	SaveSnapshot(ctx context.Context, snap *model.SessionSnapshot) error
	SaveOrder(ctx context.Context, quizID uuid.UUID, studentID int, order []uuid.UUID) error
	FinalizeAttempt(ctx context.Context, result *model.QuizResult) (bool, error)
	AppendResult(ctx context.Context, result *model.QuizResult) error
}

// AttemptCache is the hot-path side: start times, autosaved state and
// the sweeper's deadline set.
type AttemptCache interface {
	SetStart(ctx context.Context, quizID string, studentID int, startedAt, deadline time.Time) error
	Start(ctx context.Context, quizID string, studentID int) (time.Time, bool, error)
	SaveSnapshot(ctx context.Context, snap model.SessionSnapshot) error
	Snapshot(ctx context.Context, quizID string, studentID int) (map[string]model.Answer, int, error)
	Clear(ctx context.Context, quizID string, studentID int) error
}

// WorkQueue hands best-effort persistence work to the background
// workers.
type WorkQueue interface {
	EnqueueSnapshot(ctx context.Context, snap model.SessionSnapshot) error
	EnqueuePractice(ctx context.Context, result *model.QuizResult) error
	EnqueueProctorEvent(ctx context.Context, ev model.ProctorEvent) error
}

// QuizSessionService owns the attempt protocol: start-or-resume,
// remaining-time derivation, autosave snapshots and finalize.
type QuizSessionService struct {
	store SessionStore
	cache AttemptCache
	queue WorkQueue
	log   zerolog.Logger
	now   func() time.Time
}

// NewQuizSessionService creates a new QuizSessionService.
func NewQuizSessionService(store SessionStore, cache AttemptCache, queue WorkQueue, log zerolog.Logger) *QuizSessionService {
	return &QuizSessionService{
		store: store,
		cache: cache,
		queue: queue,
		log:   log.With().Str("component", "session_service").Logger(),
		now:   time.Now,
	}
}

// StartOrResume returns the session the student should continue working
// on. Timed, non-practice student attempts only — everything else goes
// through Ephemeral.
//
//   - No record: a fresh attempt is created and persisted.
//   - Terminal record: the slot is overwritten with a fresh attempt
//     (result history is untouched).
//   - Live record: returned as-is, except that a stale question order
//     (quiz edited mid-attempt) is regenerated and persisted.
func (s *QuizSessionService) StartOrResume(ctx context.Context, quiz *model.Quiz, studentID int, questionIDs []uuid.UUID) (*model.QuizSession, error) {
	if !quiz.Timed() {
		return s.Ephemeral(quiz, studentID, questionIDs), nil
	}

	sess, err := s.store.Get(ctx, quiz.ID, studentID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return s.newAttempt(ctx, quiz, studentID, questionIDs, nil)
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	case sess.Terminal():
		return s.newAttempt(ctx, quiz, studentID, questionIDs, sess)
	}

	// Self-heal the order if the quiz was edited after the attempt began.
	if len(sess.Order) != len(questionIDs) {
		sess.Order = buildOrder(questionIDs, quiz.ShuffleQuestions)
		if err := s.store.SaveOrder(ctx, quiz.ID, studentID, sess.Order); err != nil {
			return nil, fmt.Errorf("repair order: %w", err)
		}
		if sess.CurrentIndex >= len(sess.Order) {
			sess.CurrentIndex = 0
		}
		s.log.Info().
			Str("quiz_id", quiz.ID.String()).
			Int("student_id", studentID).
			Msg("Repaired stale question order")
	}

	// Re-cache the start time: resuming on a new device or after a cache
	// eviction must not lose the deadline.
	if err := s.cache.SetStart(ctx, quiz.ID.String(), studentID, sess.StartedAt, s.deadline(quiz, sess.StartedAt)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache start time")
	}

	return sess, nil
}

func (s *QuizSessionService) newAttempt(ctx context.Context, quiz *model.Quiz, studentID int, questionIDs []uuid.UUID, prev *model.QuizSession) (*model.QuizSession, error) {
	startedAt := s.now()
	// A restart must begin strictly after the attempt it replaces, even
	// under a coarse or frozen clock.
	if prev != nil && !startedAt.After(prev.StartedAt) {
		startedAt = prev.StartedAt.Add(time.Millisecond)
	}

	sess := &model.QuizSession{
		QuizID:       quiz.ID,
		StudentID:    studentID,
		StartedAt:    startedAt,
		Order:        buildOrder(questionIDs, quiz.ShuffleQuestions),
		Answers:      map[string]model.Answer{},
		CurrentIndex: 0,
		LastSavedAt:  startedAt,
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Stale hot-path state from the previous attempt must not leak into
	// this one.
	if err := s.cache.Clear(ctx, quiz.ID.String(), studentID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear attempt cache")
	}
	if err := s.cache.SetStart(ctx, quiz.ID.String(), studentID, startedAt, s.deadline(quiz, startedAt)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache start time")
	}

	return sess, nil
}

// Ephemeral builds a client-side-only session: practice attempts, admin
// previews and untimed quizzes never create or consult store records.
func (s *QuizSessionService) Ephemeral(quiz *model.Quiz, studentID int, questionIDs []uuid.UUID) *model.QuizSession {
	now := s.now()
	return &model.QuizSession{
		QuizID:       quiz.ID,
		StudentID:    studentID,
		StartedAt:    now,
		Order:        buildOrder(questionIDs, quiz.ShuffleQuestions),
		Answers:      map[string]model.Answer{},
		CurrentIndex: 0,
		LastSavedAt:  now,
	}
}

// RemainingSeconds derives the time left on an attempt from wall-clock
// elapsed time, clamped to zero. Never stored: reloads and drifted
// clocks cannot extend a session. Zero means auto-submit eligible.
func (s *QuizSessionService) RemainingSeconds(quiz *model.Quiz, startedAt time.Time) int {
	elapsed := int(s.now().Sub(startedAt) / time.Second)
	if remaining := quiz.TimeLimitSeconds - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// State is the reload path: the answers, position and remaining time a
// client needs to resume. Cache-first with PostgreSQL fallback and
// self-heal, so a Redis eviction costs one slow read, not the attempt.
func (s *QuizSessionService) State(ctx context.Context, quiz *model.Quiz, studentID int) (*model.SessionState, error) {
	quizID := quiz.ID.String()

	var sess *model.QuizSession

	startedAt, ok, err := s.cache.Start(ctx, quizID, studentID)
	if err != nil {
		return nil, fmt.Errorf("read start time: %w", err)
	}
	if !ok {
		sess, err = s.store.Get(ctx, quiz.ID, studentID)
		if err != nil {
			return nil, fmt.Errorf("session not in cache or store: %w", err)
		}
		startedAt = sess.StartedAt
		if err := s.cache.SetStart(ctx, quizID, studentID, startedAt, s.deadline(quiz, startedAt)); err != nil {
			s.log.Warn().Err(err).Msg("Failed to re-cache start time")
		}
	}

	answers, index, err := s.cache.Snapshot(ctx, quizID, studentID)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(answers) == 0 {
		// Nothing autosaved since the last cache wipe; fall back to the
		// durable copy.
		if sess == nil {
			sess, err = s.store.Get(ctx, quiz.ID, studentID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("load session: %w", err)
			}
		}
		if sess != nil {
			answers = sess.Answers
			index = sess.CurrentIndex
		}
	}

	// A stale autosave may hold a position past the paper's end (quiz
	// shrunk mid-attempt); reset it rather than serve an unusable index,
	// mirroring the order-repair policy.
	if index >= quiz.QuestionCount {
		index = 0
	}

	return &model.SessionState{
		QuizID:           quiz.ID,
		StudentID:        studentID,
		StartedAt:        startedAt,
		Answers:          answers,
		CurrentIndex:     index,
		RemainingSeconds: s.RemainingSeconds(quiz, startedAt),
	}, nil
}

// SaveSnapshot is the autosave flush target: hot-path cache write plus
// a queued durable write. Both sides are best-effort — the debouncer
// logs and swallows whatever comes back.
func (s *QuizSessionService) SaveSnapshot(ctx context.Context, snap model.SessionSnapshot) error {
	snap.SavedAt = s.now()

	if err := s.cache.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	if err := s.queue.EnqueueSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("enqueue snapshot: %w", err)
	}
	return nil
}

// Finalize grades the attempt and makes it terminal, exactly once.
// Manual submits pass the latest in-memory answers; the auto-submit
// sweeper passes nil and the latest autosaved state is used instead.
// A store failure here is fatal to the submission and surfaced.
func (s *QuizSessionService) Finalize(ctx context.Context, quiz *model.Quiz, key []model.QuestionKey, studentID int, answers map[string]model.Answer) (*model.QuizResult, error) {
	quizID := quiz.ID.String()

	// Untimed attempts are ephemeral: no session slot, no autosave, no
	// one-shot guard. The submitted answers are graded as-is and the
	// result appended directly to the history.
	if !quiz.Timed() {
		if answers == nil {
			answers = map[string]model.Answer{}
		}
		result := Grade(quiz.ID, studentID, key, answers, s.now(), false)
		if err := s.store.AppendResult(ctx, result); err != nil {
			return nil, fmt.Errorf("append result: %w", err)
		}
		s.log.Info().
			Str("quiz_id", quizID).
			Int("student_id", studentID).
			Int("score", result.Score).
			Int("total", result.Total).
			Msg("Untimed attempt graded")
		return result, nil
	}

	if answers == nil {
		cached, _, err := s.cache.Snapshot(ctx, quizID, studentID)
		if err != nil {
			s.log.Warn().Err(err).Msg("Snapshot read failed during finalize, falling back to store")
		}
		answers = cached
		if len(answers) == 0 {
			sess, err := s.store.Get(ctx, quiz.ID, studentID)
			if err != nil {
				return nil, fmt.Errorf("load session for finalize: %w", err)
			}
			answers = sess.Answers
		}
	}

	result := Grade(quiz.ID, studentID, key, answers, s.now(), false)

	ok, err := s.store.FinalizeAttempt(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		return nil, ErrAlreadySubmitted
	}

	if err := s.cache.Clear(ctx, quizID, studentID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear attempt cache after finalize")
	}

	s.log.Info().
		Str("quiz_id", quizID).
		Int("student_id", studentID).
		Int("score", result.Score).
		Int("total", result.Total).
		Msg("Attempt finalized")

	return result, nil
}

// PracticeGrade grades a practice attempt for display. The session slot
// is never touched; the attempt record is queued best-effort.
func (s *QuizSessionService) PracticeGrade(ctx context.Context, quiz *model.Quiz, key []model.QuestionKey, studentID int, answers map[string]model.Answer) *model.QuizResult {
	result := Grade(quiz.ID, studentID, key, answers, s.now(), true)

	if err := s.queue.EnqueuePractice(ctx, result); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue practice attempt")
	}

	return result
}

func (s *QuizSessionService) deadline(quiz *model.Quiz, startedAt time.Time) time.Time {
	if !quiz.Timed() {
		return time.Time{}
	}
	return startedAt.Add(time.Duration(quiz.TimeLimitSeconds) * time.Second)
}

func buildOrder(questionIDs []uuid.UUID, shuffle bool) []uuid.UUID {
	order := make([]uuid.UUID, len(questionIDs))
	copy(order, questionIDs)
	if shuffle {
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return order
}

package worker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/quizdesk/quizdesk-backend/internal/service"
)

// DeadlineWorker sweeps the attempts:deadlines sorted set and
// auto-submits attempts whose time has run out. This is the server-side
// backstop: a student who closes the tab and never returns still gets
// graded from their latest autosave the moment the clock expires.
type DeadlineWorker struct {
	cache          *repository.AttemptCache
	quizService    *service.QuizService
	sessionService *service.QuizSessionService
	interval       time.Duration
	log            zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(
	cache *repository.AttemptCache,
	quizService *service.QuizService,
	sessionService *service.QuizSessionService,
	interval time.Duration,
	log zerolog.Logger,
) *DeadlineWorker {
	return &DeadlineWorker{
		cache:          cache,
		quizService:    quizService,
		sessionService: sessionService,
		interval:       interval,
		log:            log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("DeadlineWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	members, err := w.cache.ExpiredAttempts(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to read expired attempts")
		return
	}

	for _, member := range members {
		quizID, studentID, err := parseAttemptMember(member)
		if err != nil {
			w.log.Error().Str("member", member).Msg("Dropping malformed deadline member")
			_ = w.cache.RemoveDeadline(ctx, member)
			continue
		}
		w.autoSubmit(ctx, member, quizID, studentID)
	}
}

func (w *DeadlineWorker) autoSubmit(ctx context.Context, member string, quizID uuid.UUID, studentID int) {
	quiz, err := w.quizService.GetByID(ctx, quizID)
	if err != nil {
		w.log.Error().Err(err).Str("quiz_id", quizID.String()).Msg("Quiz lookup failed, keeping deadline for retry")
		return
	}

	key, err := w.quizService.GetGradingKey(ctx, quizID)
	if err != nil {
		w.log.Error().Err(err).Str("quiz_id", quizID.String()).Msg("Grading key lookup failed, keeping deadline for retry")
		return
	}

	// nil answers means "use the latest autosaved state".
	result, err := w.sessionService.Finalize(ctx, quiz, key, studentID, nil)
	switch {
	case errors.Is(err, service.ErrAlreadySubmitted):
		// A manual submit or another sweeper got here first.
	case err != nil:
		w.log.Error().Err(err).
			Str("quiz_id", quizID.String()).
			Int("student_id", studentID).
			Msg("Auto-submit failed, keeping deadline for retry")
		return
	default:
		w.log.Info().
			Str("quiz_id", quizID.String()).
			Int("student_id", studentID).
			Int("score", result.Score).
			Msg("Attempt auto-submitted at deadline")
	}

	if err := w.cache.RemoveDeadline(ctx, member); err != nil {
		w.log.Warn().Err(err).Str("member", member).Msg("Failed to remove deadline member")
	}
}

// parseAttemptMember splits a "quiz_uuid:student_id" deadline member.
func parseAttemptMember(member string) (uuid.UUID, int, error) {
	idx := strings.LastIndex(member, ":")
	if idx < 0 {
		return uuid.Nil, 0, errors.New("missing separator")
	}

	quizID, err := uuid.Parse(member[:idx])
	if err != nil {
		return uuid.Nil, 0, err
	}

	studentID, err := strconv.Atoi(member[idx+1:])
	if err != nil {
		return uuid.Nil, 0, err
	}

	return quizID, studentID, nil
}

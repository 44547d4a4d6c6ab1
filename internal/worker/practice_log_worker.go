package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
)

// PracticeLogWorker consumes persist_practice_queue and appends practice
// results to quiz_results. Practice grading itself is synchronous in the
// request path; only the history write rides the queue.
type PracticeLogWorker struct {
	results *repository.QuizResultRepository
	rdb     *redis.Client
	log     zerolog.Logger
}

// NewPracticeLogWorker creates a new PracticeLogWorker.
func NewPracticeLogWorker(results *repository.QuizResultRepository, rdb *redis.Client, log zerolog.Logger) *PracticeLogWorker {
	return &PracticeLogWorker{
		results: results,
		rdb:     rdb,
		log:     log.With().Str("component", "practice_log_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *PracticeLogWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *PracticeLogWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistPracticeQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var res model.QuizResult
	if err := json.Unmarshal([]byte(result[1]), &res); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.results.AppendPractice(ctx, &res); err != nil {
		w.log.Error().Err(err).
			Int("student_id", res.StudentID).
			Str("quiz_id", res.QuizID.String()).
			Msg("Persist error, retrying in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.PersistPracticeQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *PracticeLogWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistPracticeQueue).Result()
		if err != nil {
			break
		}

		var res model.QuizResult
		if err := json.Unmarshal([]byte(result), &res); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.results.AppendPractice(ctx, &res); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistPracticeQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

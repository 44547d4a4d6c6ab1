package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// RedisQueue is the producer side of the persistence queues. Handlers
// and services push through it; the workers in this package consume.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue creates a new RedisQueue.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// EnqueueSnapshot queues an autosaved attempt snapshot for durable persistence.
func (q *RedisQueue) EnqueueSnapshot(ctx context.Context, snap model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistSessionQueue, data).Err()
}

// EnqueuePractice queues a practice result for append-only persistence.
func (q *RedisQueue) EnqueuePractice(ctx context.Context, result *model.QuizResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal practice result: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistPracticeQueue, data).Err()
}

// EnqueueProctorEvent queues a focus violation for the proctor log.
func (q *RedisQueue) EnqueueProctorEvent(ctx context.Context, ev model.ProctorEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal proctor event: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistProctorQueue, data).Err()
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// AttemptCache is the Redis hot path of the session protocol: attempt
// start times (so remaining time is computable without touching
// PostgreSQL), autosaved answers/index, and the deadline set consumed
// by the auto-submit sweeper. PostgreSQL stays the source of truth; a
// cache miss falls back there and self-heals.
type AttemptCache struct {
	rdb *redis.Client
}

// NewAttemptCache creates a new AttemptCache.
func NewAttemptCache(rdb *redis.Client) *AttemptCache {
	return &AttemptCache{rdb: rdb}
}

// SetStart caches an attempt's start time and registers its submission
// deadline for the sweeper. Untimed attempts pass a zero deadline and
// are not registered.
func (c *AttemptCache) SetStart(ctx context.Context, quizID string, studentID int, startedAt, deadline time.Time) error {
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.AttemptStartKey(quizID, studentID), startedAt.Unix(), 0)
	if !deadline.IsZero() {
		pipe.ZAdd(ctx, config.CacheKey.LiveAttemptsKey(), redis.Z{
			Score:  float64(deadline.Unix()),
			Member: config.CacheKey.LiveAttemptMember(quizID, studentID),
		})
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Start returns the cached attempt start time. ok is false on a cache
// miss, in which case the caller falls back to PostgreSQL and re-caches.
func (c *AttemptCache) Start(ctx context.Context, quizID string, studentID int) (time.Time, bool, error) {
	val, err := c.rdb.Get(ctx, config.CacheKey.AttemptStartKey(quizID, studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get start time: %w", err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid start time in cache: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

// SaveSnapshot writes the autosaved answers and current index to the
// hot path, so reload-time state reads skip PostgreSQL. The hash is
// replaced wholesale: an answer the student cleared since the last
// flush must not survive in the cache.
func (c *AttemptCache) SaveSnapshot(ctx context.Context, snap model.SessionSnapshot) error {
	fields := make(map[string]interface{}, len(snap.Answers))
	for qid, ans := range snap.Answers {
		raw, err := json.Marshal(ans)
		if err != nil {
			return fmt.Errorf("encode answer %s: %w", qid, err)
		}
		fields[qid] = raw
	}

	answersKey := config.CacheKey.AttemptAnswersKey(snap.QuizID, snap.StudentID)

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, answersKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, answersKey, fields)
	}
	pipe.Set(ctx, config.CacheKey.AttemptIndexKey(snap.QuizID, snap.StudentID), snap.CurrentIndex, 0)
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot reads back the autosaved answers and current index.
func (c *AttemptCache) Snapshot(ctx context.Context, quizID string, studentID int) (map[string]model.Answer, int, error) {
	raw, err := c.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(quizID, studentID)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("get answers: %w", err)
	}

	answers := make(map[string]model.Answer, len(raw))
	for qid, val := range raw {
		var ans model.Answer
		if err := json.Unmarshal([]byte(val), &ans); err != nil {
			return nil, 0, fmt.Errorf("decode answer %s: %w", qid, err)
		}
		answers[qid] = ans
	}

	index := 0
	idxVal, err := c.rdb.Get(ctx, config.CacheKey.AttemptIndexKey(quizID, studentID)).Result()
	if err == nil {
		index, _ = strconv.Atoi(idxVal)
	} else if !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("get index: %w", err)
	}

	return answers, index, nil
}

// Clear wipes all hot-path state for an attempt. Called after finalize
// and on attempt restart.
func (c *AttemptCache) Clear(ctx context.Context, quizID string, studentID int) error {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx,
		config.CacheKey.AttemptStartKey(quizID, studentID),
		config.CacheKey.AttemptAnswersKey(quizID, studentID),
		config.CacheKey.AttemptIndexKey(quizID, studentID),
	)
	pipe.ZRem(ctx, config.CacheKey.LiveAttemptsKey(), config.CacheKey.LiveAttemptMember(quizID, studentID))
	_, err := pipe.Exec(ctx)
	return err
}

// ExpiredAttempts returns the deadline-set members whose submission
// deadline is at or before now.
func (c *AttemptCache) ExpiredAttempts(ctx context.Context, now time.Time) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, config.CacheKey.LiveAttemptsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
}

// RemoveDeadline drops a member from the deadline set.
func (c *AttemptCache) RemoveDeadline(ctx context.Context, member string) error {
	return c.rdb.ZRem(ctx, config.CacheKey.LiveAttemptsKey(), member).Err()
}

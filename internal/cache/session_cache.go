// Package cache keeps the hot exam-session state in Redis: session start
// times, autosaved drafts, rendered exam papers and the monitor event queue.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionCache wraps the Redis client with typed accessors.
type SessionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionCache creates a SessionCache. Session keys expire after ttl;
// exam papers live until the exam is republished or deleted.
func NewSessionCache(rdb *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{rdb: rdb, ttl: ttl}
}

// Client exposes the underlying client for the worker and pub/sub readers.
func (c *SessionCache) Client() *redis.Client {
	return c.rdb
}

// SetSessionStart stores the start instant as unix seconds.
func (c *SessionCache) SetSessionStart(ctx context.Context, sessionID uuid.UUID, startedAt time.Time) error {
	return c.rdb.Set(ctx, config.CacheKey.SessionStartKey(sessionID.String()), startedAt.Unix(), c.ttl).Err()
}

// SessionStart returns the cached start instant. ok is false on a miss.
func (c *SessionCache) SessionStart(ctx context.Context, sessionID uuid.UUID) (time.Time, bool, error) {
	val, err := c.rdb.Get(ctx, config.CacheKey.SessionStartKey(sessionID.String())).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid start time format in cache: %w", err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// SaveDraft records the latest answer for one question.
func (c *SessionCache) SaveDraft(ctx context.Context, sessionID uuid.UUID, questionID, answer string) error {
	key := config.CacheKey.SessionDraftKey(sessionID.String())
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, questionID, answer)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Drafts returns every autosaved answer of a session keyed by question id.
func (c *SessionCache) Drafts(ctx context.Context, sessionID uuid.UUID) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, config.CacheKey.SessionDraftKey(sessionID.String())).Result()
}

// ClearSession drops the start time and drafts of a finished session.
func (c *SessionCache) ClearSession(ctx context.Context, sessionID uuid.UUID) error {
	return c.rdb.Del(ctx,
		config.CacheKey.SessionStartKey(sessionID.String()),
		config.CacheKey.SessionDraftKey(sessionID.String()),
	).Err()
}

// SetExamPaper caches the student-facing paper of an exam.
func (c *SessionCache) SetExamPaper(ctx context.Context, paper *model.ExamPaper) error {
	data, err := json.Marshal(paper)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, config.CacheKey.ExamPaperKey(paper.ExamID.String()), data, 0).Err()
}

// ExamPaper returns the cached paper. ok is false on a miss.
func (c *SessionCache) ExamPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, bool, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID.String())).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var paper model.ExamPaper
	if err := json.Unmarshal(data, &paper); err != nil {
		return nil, false, fmt.Errorf("decode cached paper: %w", err)
	}
	return &paper, true, nil
}

// InvalidateExamPaper removes the cached paper of an exam.
func (c *SessionCache) InvalidateExamPaper(ctx context.Context, examID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID.String())).Err()
}

// EnqueueMonitorEvent pushes an event onto the persistence queue and
// publishes it to live subscribers of the exam.
func (c *SessionCache) EnqueueMonitorEvent(ctx context.Context, e *model.MonitorEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := c.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistMonitorEventsQueue, data)
	pipe.Publish(ctx, config.CacheKey.SessionMonitorChannel(e.ExamID.String()), data)
	_, err = pipe.Exec(ctx)
	return err
}

// SubscribeMonitor subscribes to the live event channel of an exam.
// The caller must close the returned PubSub.
func (c *SessionCache) SubscribeMonitor(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return c.rdb.Subscribe(ctx, config.CacheKey.SessionMonitorChannel(examID.String()))
}

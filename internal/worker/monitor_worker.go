package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// MonitorWorker drains the monitor event queue into the store in batches.
type MonitorWorker struct {
	store        repository.MonitorEventStore
	rdb          *redis.Client
	batchSize    int
	batchTimeout time.Duration
	backoff      time.Duration
	log          zerolog.Logger
}

// NewMonitorWorker creates a new MonitorWorker.
func NewMonitorWorker(store repository.MonitorEventStore, rdb *redis.Client, log zerolog.Logger) *MonitorWorker {
	return &MonitorWorker{
		store:        store,
		rdb:          rdb,
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		backoff:      2 * time.Second,
		log:          log.With().Str("component", "monitor_worker").Logger(),
	}
}

// Start blocks until ctx is cancelled, then flushes what is buffered.
func (w *MonitorWorker) Start(ctx context.Context) {
	w.log.Info().Msg("MonitorWorker started")

	buffer := make([]model.MonitorEvent, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. BLPop blocks for PollTimeout and returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistMonitorEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var e model.MonitorEvent
		if err := json.Unmarshal([]byte(result[1]), &e); err != nil {
			// Malformed payloads can never succeed; drop them.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed monitor event")
			continue
		}
		buffer = append(buffer, e)
	}
}

// flushSafe attempts a bulk insert, then row-by-row, then requeues.
func (w *MonitorWorker) flushSafe(ctx context.Context, batch []model.MonitorEvent) {
	if err := w.store.InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Monitor events persisted")
}

func (w *MonitorWorker) fallbackInsert(ctx context.Context, batch []model.MonitorEvent) {
	requeueList := make([]model.MonitorEvent, 0)

	for i := range batch {
		e := batch[i]
		if err := w.store.Insert(ctx, &e); err != nil {
			if errors.Is(err, repository.ErrMissingReference) {
				// The session was removed; the event has nowhere to go.
				w.log.Error().Str("session_id", e.SessionID.String()).Msg("Dropping monitor event for unknown session")
				continue
			}
			w.log.Error().Err(err).Str("session_id", e.SessionID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, e)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *MonitorWorker) requeue(ctx context.Context, items []model.MonitorEvent) {
	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, config.WorkerKey.PersistMonitorEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue monitor events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the store is down.
	sleepCtx(ctx, w.backoff)
}

func (w *MonitorWorker) shutdown(buffer []model.MonitorEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

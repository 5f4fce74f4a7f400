package database

import (
	"context"
	"fmt"
	"time"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient connects to the Redis instance backing session drafts,
// paper caches, admin token revocation and the monitor queue.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	// The monitor worker blocks on BLPOP, so reads must outlast its poll.
	opt.ReadTimeout = 10 * time.Second
	opt.WriteTimeout = 3 * time.Second
	if opt.PoolSize == 0 {
		opt.PoolSize = 4 * int(cfg.MaxDBConns)
	}

	rdb := redis.NewClient(opt)
	err = retry(ctx, log, "redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", opt.PoolSize).
		Msg("Redis connected")
	return rdb, nil
}

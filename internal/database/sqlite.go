package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// NewSQLiteDB opens the embedded SQLite database named by DATABASE_URL.
// SQLite serializes writers, so the pool is capped at one connection.
func NewSQLiteDB(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sqlx.DB, error) {
	dsn := cfg.SQLitePath()
	if !strings.Contains(dsn, "_time_format") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	log.Info().Str("dsn", cfg.SQLitePath()).Msg("SQLite connected")
	return db, nil
}

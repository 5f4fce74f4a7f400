package database

import (
	"context"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/examflow/examflow-backend/internal/repository/sqlite"
	"github.com/rs/zerolog"
)

// OpenStores connects to the database named by DATABASE_URL and returns
// the matching store implementations. sqlite:// selects the embedded
// driver; anything else is treated as PostgreSQL.
func OpenStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repository.Stores, error) {
	if cfg.UsesSQLite() {
		db, err := NewSQLiteDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		stores, err := sqlite.NewStores(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return stores, nil
	}

	pool, err := NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return repository.NewPostgresStores(pool), nil
}

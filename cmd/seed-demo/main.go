package main

import (
	"context"
	"fmt"
	"time"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/database"
	"github.com/examflow/examflow-backend/internal/logger"
	"github.com/examflow/examflow-backend/internal/service"
)

// seed-demo upserts the demo exam and its fixed tokens. Safe to re-run.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, err := database.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer stores.Close()

	tokens := service.NewTokenService(stores.Tokens, stores.Assessments, cfg.DefaultTokenTTL, log)
	seed, err := tokens.SeedDemo(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed demo data")
	}

	fmt.Printf("Demo exam: %s (%s)\n", seed.Exam.Title, seed.Exam.ID)
	for _, t := range seed.Tokens {
		fmt.Printf("  %-10s max_usage=%d expires=%s\n", t.Code, t.MaxUsage, t.ExpiresAt.Format(time.RFC3339))
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/examflow/examflow-backend/internal/cache"
	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/database"
	"github.com/examflow/examflow-backend/internal/generator"
	"github.com/examflow/examflow-backend/internal/handler"
	"github.com/examflow/examflow-backend/internal/logger"
	"github.com/examflow/examflow-backend/internal/middleware"
	"github.com/examflow/examflow-backend/internal/router"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/examflow/examflow-backend/internal/storage"
	"github.com/examflow/examflow-backend/internal/validator"
	"github.com/examflow/examflow-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Bool("sqlite", cfg.UsesSQLite()).
		Msg("Starting ExamFlow Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to the Store ──────────────────────────────────────────
	stores, err := database.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer stores.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	sessionCache := cache.NewSessionCache(rdb, cfg.SessionCacheTTL)

	blobs, err := storage.NewFSStore(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare upload directory")
	}

	// ─── Question Generator ────────────────────────────────────────────
	var primary generator.Generator
	if cfg.GeminiAPIKey != "" {
		gemini, err := generator.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini client unavailable, using fallback generator only")
		} else {
			defer gemini.Close()
			primary = gemini
		}
	} else {
		log.Info().Msg("GEMINI_API_KEY not set, using fallback generator only")
	}
	chain := generator.NewChain(primary, generator.Fallback{}, cfg.AITimeout, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService, err := service.NewAuthService(cfg, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize auth")
	}
	assessmentService := service.NewAssessmentService(stores.Assessments, sessionCache, log)
	tokenService := service.NewTokenService(stores.Tokens, stores.Assessments, cfg.DefaultTokenTTL, log)
	sessionService := service.NewSessionService(
		tokenService, stores.Tokens, stores.Sessions, assessmentService,
		sessionCache, service.StubVerifier{}, cfg.FaceConfidenceDefault, log,
	)
	submissionService := service.NewSubmissionService(stores.Submissions, stores.Sessions, stores.Assessments, sessionCache, log)
	documentService := service.NewDocumentService(stores.Documents, blobs, service.PDFExtractor{}, cfg.MaxUploadBytes, log)
	questionService := service.NewQuestionService(assessmentService, documentService, chain, log)
	monitorService := service.NewMonitorService(stores.MonitorEvents, sessionService, sessionCache, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, log),
		Token:      handler.NewTokenHandler(tokenService, cfg.DemoSeedingEnabled, log),
		Session:    handler.NewSessionHandler(sessionService, monitorService, log),
		Submission: handler.NewSubmissionHandler(submissionService, monitorService, log),
		Assessment: handler.NewAssessmentHandler(assessmentService, questionService, log),
		Document:   handler.NewDocumentHandler(documentService, log),
		WS:         handler.NewWSHandler(assessmentService, sessionService, monitorService, log, cfg.AllowedOrigins),
		Health:     handler.NewHealthHandler(rdb, stores.Ping, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	monitorWorker := worker.NewMonitorWorker(stores.MonitorEvents, rdb, log)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	workers.Add(2)
	go func() {
		defer workers.Done()
		monitorWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		limiter.Run(workerCtx)
	}()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Published papers are loaded before accepting traffic so the first
	// wave of students does not stampede the database.
	if cfg.ExamCachePrewarmOnBoot {
		if err := assessmentService.PrewarmPapers(ctx); err != nil {
			log.Warn().Err(err).Msg("Cache prewarm failed")
		}
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; the monitor worker flushes its batch on exit.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/examflow/examflow-backend/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const healthTimeout = 2 * time.Second

// HealthHandler reports liveness of the server and its backing services.
type HealthHandler struct {
	rdb       *redis.Client
	pingDB    func(ctx context.Context) error
	startTime time.Time
	log       zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler. pingDB checks the primary store.
func NewHealthHandler(rdb *redis.Client, pingDB func(ctx context.Context) error, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		rdb:       rdb,
		pingDB:    pingDB,
		startTime: time.Now(),
		log:       log.With().Str("component", "health_handler").Logger(),
	}
}

// Health godoc
// GET /health
// 200 when every dependency answers, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{"database": "ok", "redis": "ok"}
	status := http.StatusOK

	if h.pingDB != nil {
		if err := h.pingDB(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Database health check failed")
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			h.log.Warn().Err(err).Msg("Redis health check failed")
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	response.Success(c, status, gin.H{
		"status": overall,
		"checks": checks,
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

package router

import (
	"time"

	"github.com/examflow/examflow-backend/internal/config"
	"github.com/examflow/examflow-backend/internal/handler"
	"github.com/examflow/examflow-backend/internal/middleware"
	"github.com/examflow/examflow-backend/internal/response"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Token      *handler.TokenHandler
	Session    *handler.SessionHandler
	Submission *handler.SubmissionHandler
	Assessment *handler.AssessmentHandler
	Document   *handler.DocumentHandler
	WS         *handler.WSHandler
	Health     *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request IDs first so the logger and every envelope can see them.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper:   middleware.SkipPaths("/metrics"),
	}))

	// ─── Ops ───────────────────────────────────────────────────────────
	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	adminAuth := middleware.OptionalAdminJWT(authService, cfg.AdminAuthRequired)

	api := router.Group("/api")
	api.Use(limiter.Middleware())

	// ─── 1. Auth ───────────────────────────────────────────────────────
	auth := api.Group("/auth")
	{
		auth.POST("/admin/login", handlers.Auth.AdminLogin)
		auth.POST("/admin/logout", middleware.RequireAdminJWT(authService), handlers.Auth.AdminLogout)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Student (token holders, no account) ────────────────────────
	student := api.Group("/student")
	{
		student.POST("/validate-token", handlers.Token.ValidateToken)
		student.POST("/create-demo-token", handlers.Token.CreateDemoTokens)
		student.POST("/face-verification", handlers.Session.VerifyFace)
		student.GET("/sessions/:id/paper", handlers.Session.GetPaper)
		student.GET("/sessions/:id/state", handlers.Session.GetState)
		student.POST("/sessions/:id/events", handlers.Session.RecordEvent)
	}
	api.POST("/tokens/validate", handlers.Token.ValidateToken)
	api.POST("/students/sessions", handlers.Session.StartSession)

	// ─── 3. Submissions ────────────────────────────────────────────────
	api.POST("/submissions", handlers.Submission.Submit)
	api.GET("/submissions/:id", handlers.Submission.GetSubmission)

	// ─── 4. Admin ──────────────────────────────────────────────────────
	admin := api.Group("/admin")
	admin.Use(adminAuth)
	{
		admin.POST("/create-token", handlers.Token.CreateToken)
		admin.GET("/tokens", handlers.Token.ListTokens)
		admin.POST("/tokens/:code/deactivate", handlers.Token.DeactivateToken)
		admin.GET("/exams/:id/submissions", handlers.Submission.ListExamSubmissions)
		admin.GET("/sessions/:id/events", handlers.Submission.GetSessionEvents)
	}

	// ─── 5. Assessments & Questions ────────────────────────────────────
	assessments := api.Group("/assessments")
	assessments.Use(adminAuth)
	{
		assessments.GET("", handlers.Assessment.ListAssessments)
		assessments.POST("", handlers.Assessment.CreateAssessment)
		assessments.GET("/:id", handlers.Assessment.GetAssessment)
		assessments.PUT("/:id", handlers.Assessment.UpdateAssessment)
		assessments.DELETE("/:id", handlers.Assessment.DeleteAssessment)
		assessments.POST("/:id/publish", handlers.Assessment.PublishAssessment)
		assessments.GET("/:id/questions", handlers.Assessment.ListQuestions)
		assessments.POST("/:id/questions", handlers.Assessment.AddQuestions)
		assessments.DELETE("/:id/questions/:question_id", handlers.Assessment.DeleteQuestion)
		assessments.POST("/:id/generate-questions", handlers.Assessment.GenerateQuestions)
	}

	// ─── 6. Documents ──────────────────────────────────────────────────
	documents := api.Group("/documents")
	documents.Use(adminAuth)
	{
		documents.POST("/upload", handlers.Document.UploadDocument)
		documents.GET("/:id", handlers.Document.GetDocument)
	}

	// ─── 7. WebSocket ──────────────────────────────────────────────────
	ws := router.Group("/ws")
	{
		ws.GET("/student/sessions/:id/stream", handlers.WS.SessionStream)
		ws.GET("/admin/exams/:id/monitor", adminAuth, handlers.WS.MonitorStream)
	}

	return router
}

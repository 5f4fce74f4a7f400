package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/response"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/examflow/examflow-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenHandler serves token issuance and validation.
type TokenHandler struct {
	tokenService *service.TokenService
	demoEnabled  bool
	log          zerolog.Logger
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(tokenService *service.TokenService, demoEnabled bool, log zerolog.Logger) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
		demoEnabled:  demoEnabled,
		log:          log.With().Str("component", "token_handler").Logger(),
	}
}

// tokenView is the public projection of a token returned to clients.
type tokenView struct {
	Token       string    `json:"token"`
	ExamID      uuid.UUID `json:"exam_id"`
	StudentName string    `json:"student_name,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	UsageCount  int       `json:"usage_count"`
	MaxUsage    int       `json:"max_usage"`
	IsActive    bool      `json:"is_active"`
}

func newTokenView(t *model.AccessToken) *tokenView {
	return &tokenView{
		Token:       t.Code,
		ExamID:      t.ExamID,
		StudentName: t.StudentName,
		ExpiresAt:   t.ExpiresAt,
		UsageCount:  t.UsageCount,
		MaxUsage:    t.MaxUsage,
		IsActive:    t.IsActive,
	}
}

// CreateToken godoc
// POST /api/admin/create-token
// Issues a new AAAA-AAA access token bound to an exam.
func (h *TokenHandler) CreateToken(c *gin.Context) {
	var req model.CreateTokenRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	examID, err := uuid.Parse(req.ExamID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Exam not found"})
		return
	}

	in := service.IssueInput{ExamID: examID, StudentName: req.StudentName}
	if req.MaxUsage != nil {
		in.MaxUsage = *req.MaxUsage
	}
	if req.ExpiresInHours != nil {
		in.ExpiresInHours = *req.ExpiresInHours
	}

	tok, exam, err := h.tokenService.Issue(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Exam not found"})
		case errors.Is(err, service.ErrInvalidTokenInput):
			response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, err.Error())
		case errors.Is(err, service.ErrCodeSpaceExhausted):
			h.log.Error().Err(err).Msg("Token code space exhausted")
			response.Fail(c, http.StatusServiceUnavailable, response.ErrCodeSpaceExhausted)
		default:
			h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to issue token")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Token created successfully",
		"token":         tok.Code,
		"student_token": newTokenView(tok),
		"exam_info":     exam.Info(),
	})
}

// ValidateToken godoc
// POST /api/student/validate-token
// Read-only check of a student token. Never consumes a use.
func (h *TokenHandler) ValidateToken(c *gin.Context) {
	var req model.ValidateTokenRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	v, err := h.tokenService.Validate(c.Request.Context(), *req.Token)
	if err != nil {
		h.log.Error().Err(err).Msg("Token validation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	body := gin.H{
		"valid":   v.Valid(),
		"reason":  v.Reason,
		"message": v.Reason.Message(),
	}
	if v.Valid() {
		body["student_token"] = newTokenView(v.Token)
		body["exam_info"] = v.Exam.Info()
	} else {
		body["error_message"] = v.Reason.Message()
	}
	c.JSON(http.StatusOK, body)
}

// CreateDemoTokens godoc
// POST /api/student/create-demo-token
// Seeds the demo exam and its fixed tokens. Disabled unless DEMO_SEEDING_ENABLED.
func (h *TokenHandler) CreateDemoTokens(c *gin.Context) {
	if !h.demoEnabled {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	seed, err := h.tokenService.SeedDemo(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to seed demo tokens")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Demo tokens created successfully",
		"tokens":    seed.Codes(),
		"exam_info": seed.Exam.Info(),
	})
}

// ListTokens godoc
// GET /api/admin/tokens?exam_id=
// Lists every token bound to an exam.
func (h *TokenHandler) ListTokens(c *gin.Context) {
	examID, err := uuid.Parse(c.Query("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	tokens, err := h.tokenService.ListByExam(c.Request.Context(), examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to list tokens")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": tokens})
}

// DeactivateToken godoc
// POST /api/admin/tokens/:code/deactivate
func (h *TokenHandler) DeactivateToken(c *gin.Context) {
	code := c.Param("code")
	err := h.tokenService.Deactivate(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrTokenNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to deactivate token")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": service.NormalizeCode(code), "is_active": false})
}

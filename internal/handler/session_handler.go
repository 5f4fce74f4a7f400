package handler

import (
	"errors"
	"net/http"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/response"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/examflow/examflow-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionHandler serves the student side of an exam attempt.
type SessionHandler struct {
	sessionService *service.SessionService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, monitorService *service.MonitorService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		monitorService: monitorService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// VerifyFace godoc
// POST /api/student/face-verification
// Checks the face capture and, when it passes, opens the exam session.
// Every rejection is a 200 with verified=false.
func (h *SessionHandler) VerifyFace(c *gin.Context) {
	var req model.FaceVerificationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.VerifyFace(c.Request.Context(), req.Token, req.FaceImageData, req.ConfidenceThreshold)
	if err != nil {
		h.log.Error().Err(err).Msg("Face verification failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	body := gin.H{
		"verified":   res.Verified,
		"confidence": res.Confidence,
		"message":    res.Message,
	}
	if res.Reason != "" {
		body["reason"] = res.Reason
	}
	if res.SessionID != nil {
		body["session_id"] = res.SessionID
	}
	c.JSON(http.StatusOK, body)
}

// StartSession godoc
// POST /api/students/sessions?token=
// Claims one use of the token and opens a session. The token may also be
// sent as {"token": "..."}.
func (h *SessionHandler) StartSession(c *gin.Context) {
	code := c.Query("token")
	if code == "" {
		var req model.StartSessionRequest
		if fields := validator.BindOptional(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
		code = req.Token
	}
	if code == "" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"token": "token is a required field"})
		return
	}

	res, err := h.sessionService.Claim(c.Request.Context(), code, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to start session")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if !res.OK() {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": res.Reason.Message(),
			"reason":  res.Reason,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Exam session started",
		"session_id": res.Session.ID,
		"exam_info":  res.Exam.Info(),
	})
}

// GetPaper godoc
// GET /api/student/sessions/:id/paper
// Returns the exam paper without answer keys.
func (h *SessionHandler) GetPaper(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	paper, err := h.sessionService.Paper(c.Request.Context(), id)
	if err != nil {
		h.failSession(c, err, "Failed to load exam paper")
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// GetState godoc
// GET /api/student/sessions/:id/state
// Returns remaining time and autosaved answers so the client can resume.
func (h *SessionHandler) GetState(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), id)
	if err != nil {
		h.failSession(c, err, "Failed to load session state")
		return
	}
	response.Success(c, http.StatusOK, state)
}

// RecordEvent godoc
// POST /api/student/sessions/:id/events
// Records one proctoring event for an active session.
func (h *SessionHandler) RecordEvent(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.MonitorEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	event, err := h.monitorService.Record(c.Request.Context(), id, &req)
	if err != nil {
		h.failSession(c, err, "Failed to record monitor event")
		return
	}
	response.Success(c, http.StatusAccepted, event)
}

func (h *SessionHandler) failSession(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, service.ErrSessionClosed):
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
	default:
		h.log.Error().Err(err).Msg(msg)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// parseIDParam parses a UUID path parameter, writing a 400 on failure.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

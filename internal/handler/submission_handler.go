package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/response"
	"github.com/examflow/examflow-backend/internal/service"
	"github.com/examflow/examflow-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubmissionHandler records and serves graded submissions.
type SubmissionHandler struct {
	submissionService *service.SubmissionService
	monitorService    *service.MonitorService
	log               zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissionService *service.SubmissionService, monitorService *service.MonitorService, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
		monitorService:    monitorService,
		log:               log.With().Str("component", "submission_handler").Logger(),
	}
}

// Submit godoc
// POST /api/submissions
// Grades the answers and closes the session. A second submit returns 409.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sessionID, err := service.ParseSessionID(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Session not found"})
		return
	}

	res, err := h.submissionService.Submit(c.Request.Context(), service.SubmitInput{
		SessionID:      sessionID,
		Answers:        req.Answers,
		TotalTimeSpent: req.TotalTimeSpent,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Session not found"})
		case errors.Is(err, service.ErrAlreadySubmitted):
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Exam has already been submitted"})
		case errors.Is(err, service.ErrExamNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Exam not found"})
		default:
			h.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to record submission")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Exam submitted successfully",
		"submission_id": res.SubmissionID,
		"summary":       res.Summary,
	})
}

// GetSubmission godoc
// GET /api/submissions/:id
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	// A malformed id cannot name a submission.
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		submissionNotFound(c)
		return
	}

	detail, err := h.submissionService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionNotFound) {
			submissionNotFound(c)
			return
		}
		h.log.Error().Err(err).Str("submission_id", id.String()).Msg("Failed to load submission")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func submissionNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Submission not found"})
}

// ListExamSubmissions godoc
// GET /api/admin/exams/:id/submissions?page=&per_page=
// Paginated results of one exam, newest first.
func (h *SubmissionHandler) ListExamSubmissions(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	list, pagination, err := h.submissionService.ListByExam(c.Request.Context(), examID, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to list submissions")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, list, pagination)
}

// GetSessionEvents godoc
// GET /api/admin/sessions/:id/events
// Proctoring report of one session.
func (h *SubmissionHandler) GetSessionEvents(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.monitorService.SessionReport(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
			return
		}
		h.log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to load session report")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, report)
}

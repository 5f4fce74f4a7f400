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
	"github.com/rs/zerolog"
)

// AssessmentHandler handles exam catalog and question authoring endpoints.
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
	questionService   *service.QuestionService
	log               zerolog.Logger
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(assessmentService *service.AssessmentService, questionService *service.QuestionService, log zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		assessmentService: assessmentService,
		questionService:   questionService,
		log:               log.With().Str("component", "assessment_handler").Logger(),
	}
}

// ─── Assessments ────────────────────────────────────────────────────

// ListAssessments godoc
// GET /api/assessments?page=&per_page=
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	list, pagination, err := h.assessmentService.List(c.Request.Context(), page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list assessments")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, list, pagination)
}

// CreateAssessment godoc
// POST /api/assessments
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	var req model.CreateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.assessmentService.Create(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "Failed to create assessment")
		return
	}
	response.Success(c, http.StatusCreated, a)
}

// GetAssessment godoc
// GET /api/assessments/:id
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	a, err := h.assessmentService.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to get assessment")
		return
	}
	response.Success(c, http.StatusOK, a)
}

// UpdateAssessment godoc
// PUT /api/assessments/:id
// Partial update; omitted fields keep their value.
func (h *AssessmentHandler) UpdateAssessment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.assessmentService.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.fail(c, err, "Failed to update assessment")
		return
	}
	response.Success(c, http.StatusOK, a)
}

// DeleteAssessment godoc
// DELETE /api/assessments/:id
func (h *AssessmentHandler) DeleteAssessment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.assessmentService.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err, "Failed to delete assessment")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Assessment deleted"})
}

// PublishAssessment godoc
// POST /api/assessments/:id/publish
// Marks the assessment published and warms its paper cache.
func (h *AssessmentHandler) PublishAssessment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	a, err := h.assessmentService.Publish(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to publish assessment")
		return
	}
	response.Success(c, http.StatusOK, a)
}

// ─── Questions ──────────────────────────────────────────────────────

// ListQuestions godoc
// GET /api/assessments/:id/questions
func (h *AssessmentHandler) ListQuestions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	qs, err := h.questionService.List(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to list questions")
		return
	}
	response.Success(c, http.StatusOK, qs)
}

// AddQuestions godoc
// POST /api/assessments/:id/questions
// Appends one or more questions in a single write.
func (h *AssessmentHandler) AddQuestions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.AddQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	qs, err := h.questionService.Add(c.Request.Context(), id, req.Questions)
	if err != nil {
		h.fail(c, err, "Failed to add questions")
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"questions": qs})
}

// DeleteQuestion godoc
// DELETE /api/assessments/:id/questions/:question_id
func (h *AssessmentHandler) DeleteQuestion(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.questionService.Remove(c.Request.Context(), id, c.Param("question_id")); err != nil {
		h.fail(c, err, "Failed to delete question")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Question deleted"})
}

// GenerateQuestions godoc
// POST /api/assessments/:id/generate-questions
// Generates questions from documents or inline text. AI failures fall back
// to the local generator and show up in processing_log.
func (h *AssessmentHandler) GenerateQuestions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.GenerateQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.questionService.Generate(c.Request.Context(), id, &req)
	if err != nil {
		h.fail(c, err, "Failed to generate questions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"questions_generated": len(res.Questions),
		"questions":           res.Questions,
		"generator":           res.Generator,
		"processing_log":      res.ProcessingLog,
	})
}

func (h *AssessmentHandler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
	case errors.Is(err, service.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrInvalidQuestion):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrInvalidQuestion, err.Error())
	default:
		h.log.Error().Err(err).Msg(msg)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

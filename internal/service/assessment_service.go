package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/examflow/examflow-backend/internal/cache"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/examflow/examflow-backend/internal/response"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultQuestionPoints = 1.0

// AssessmentService handles the exam catalog and the student paper cache.
type AssessmentService struct {
	exams repository.AssessmentStore
	cache *cache.SessionCache
	now   func() time.Time
	log   zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(exams repository.AssessmentStore, sessionCache *cache.SessionCache, log zerolog.Logger) *AssessmentService {
	return &AssessmentService{
		exams: exams,
		cache: sessionCache,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With().Str("component", "assessment_service").Logger(),
	}
}

// BuildQuestion turns an authoring payload into a stored question.
// mcq questions need at least two options and an in-range answer index.
func BuildQuestion(in model.QuestionInput) (model.Question, error) {
	q := model.Question{
		ID:            uuid.NewString(),
		Type:          in.Type,
		Question:      strings.TrimSpace(in.Question),
		Options:       in.Options,
		Difficulty:    in.Difficulty,
		EstimatedTime: in.EstimatedTime,
		Tags:          in.Tags,
		Points:        defaultQuestionPoints,
		Explanation:   in.Explanation,
		MaxWords:      in.MaxWords,
	}
	switch in.Type {
	case model.QuestionTypeMCQ, model.QuestionTypeDescriptive, model.QuestionTypeCoding, model.QuestionTypePractical:
	default:
		return q, fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, in.Type)
	}
	if q.Question == "" {
		return q, fmt.Errorf("%w: question text is empty", ErrInvalidQuestion)
	}
	if in.Points != nil {
		if *in.Points < 0 {
			return q, fmt.Errorf("%w: points must not be negative", ErrInvalidQuestion)
		}
		q.Points = *in.Points
	}
	if q.Difficulty == "" {
		q.Difficulty = "medium"
	}

	if in.Type == model.QuestionTypeMCQ {
		if len(in.Options) < 2 {
			return q, fmt.Errorf("%w: mcq needs at least two options", ErrInvalidQuestion)
		}
		if in.CorrectAnswer == nil || *in.CorrectAnswer < 0 || *in.CorrectAnswer >= len(in.Options) {
			return q, fmt.Errorf("%w: correct_answer must index one of the options", ErrInvalidQuestion)
		}
		ca := *in.CorrectAnswer
		q.CorrectAnswer = &ca
	}
	return q, nil
}

// BuildQuestions converts a batch, failing on the first invalid question.
func BuildQuestions(inputs []model.QuestionInput) ([]model.Question, error) {
	qs := make([]model.Question, 0, len(inputs))
	for i, in := range inputs {
		q, err := BuildQuestion(in)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// Create stores a new draft assessment.
func (s *AssessmentService) Create(ctx context.Context, req *model.CreateAssessmentRequest) (*model.Assessment, error) {
	questions, err := BuildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	now := s.now()
	a := &model.Assessment{
		ID:               uuid.New(),
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		Subject:          req.Subject,
		Duration:         req.Duration,
		Instructions:     req.Instructions,
		ExamType:         req.ExamType,
		Difficulty:       req.Difficulty,
		ContentSource:    req.ContentSource,
		Questions:        questions,
		QuestionSettings: model.DefaultQuestionSettings(),
		Status:           model.AssessmentStatusDraft,
		CreatedAt:        now,
		LastModified:     now,
	}
	if a.Duration == 0 {
		a.Duration = 60
	}
	if a.ExamType == "" {
		a.ExamType = "mixed"
	}
	if a.Difficulty == "" {
		a.Difficulty = "medium"
	}
	if a.ContentSource == "" {
		a.ContentSource = "manual"
	}
	if req.QuestionSettings != nil {
		a.QuestionSettings = *req.QuestionSettings
	}

	if err := s.exams.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	s.log.Info().Str("exam_id", a.ID.String()).Int("questions", len(a.Questions)).Msg("Assessment created")
	return a, nil
}

// Get returns an assessment or ErrExamNotFound.
func (s *AssessmentService) Get(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	a, err := s.exams.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	return a, err
}

// List returns one page of the catalog.
func (s *AssessmentService) List(ctx context.Context, page, perPage int) ([]model.Assessment, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	list, total, err := s.exams.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	return list, response.NewPagination(page, perPage, total), nil
}

// Update applies a partial update. Publishing through Update also warms
// the paper cache; any other change drops the cached paper.
func (s *AssessmentService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateAssessmentRequest) (*model.Assessment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		a.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		a.Description = *req.Description
	}
	if req.Subject != nil {
		a.Subject = *req.Subject
	}
	if req.Duration != nil {
		a.Duration = *req.Duration
	}
	if req.Instructions != nil {
		a.Instructions = *req.Instructions
	}
	if req.ExamType != nil {
		a.ExamType = *req.ExamType
	}
	if req.Difficulty != nil {
		a.Difficulty = *req.Difficulty
	}
	if req.ContentSource != nil {
		a.ContentSource = *req.ContentSource
	}
	if req.Status != nil {
		a.Status = *req.Status
	}
	if req.QuestionSettings != nil {
		a.QuestionSettings = *req.QuestionSettings
	}
	a.LastModified = s.now()

	if err := s.exams.Update(ctx, a); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("update assessment: %w", err)
	}
	s.refreshPaper(ctx, a)
	return a, nil
}

// Delete physically removes an assessment. Tokens bound to it stay in
// place and validate as exam_missing from then on.
func (s *AssessmentService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.exams.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrExamNotFound
		}
		return err
	}
	if err := s.cache.InvalidateExamPaper(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to drop cached paper")
	}
	s.log.Info().Str("exam_id", id.String()).Msg("Assessment deleted")
	return nil
}

// Publish marks the assessment published and warms its paper cache.
func (s *AssessmentService) Publish(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	status := model.AssessmentStatusPublished
	a, err := s.Update(ctx, id, &model.UpdateAssessmentRequest{Status: &status})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("exam_id", id.String()).Msg("Assessment published")
	return a, nil
}

// AddQuestions validates and appends questions in one atomic store call.
func (s *AssessmentService) AddQuestions(ctx context.Context, id uuid.UUID, inputs []model.QuestionInput) (*model.Assessment, []model.Question, error) {
	qs, err := BuildQuestions(inputs)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.AppendQuestions(ctx, id, qs)
	return a, qs, err
}

// AppendQuestions appends already-built questions.
func (s *AssessmentService) AppendQuestions(ctx context.Context, id uuid.UUID, qs []model.Question) (*model.Assessment, error) {
	a, err := s.exams.AppendQuestions(ctx, id, qs)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("append questions: %w", err)
	}
	s.refreshPaper(ctx, a)
	return a, nil
}

// RemoveQuestion deletes one question from an assessment.
func (s *AssessmentService) RemoveQuestion(ctx context.Context, id uuid.UUID, questionID string) (*model.Assessment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	a, err := s.exams.RemoveQuestion(ctx, id, questionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("remove question: %w", err)
	}
	s.refreshPaper(ctx, a)
	return a, nil
}

// Paper returns the student view of an exam, served from Redis when cached.
func (s *AssessmentService) Paper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	paper, ok, err := s.cache.ExamPaper(ctx, examID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Paper cache read failed, falling back to store")
	}
	if ok {
		return paper, nil
	}

	a, err := s.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	paper = BuildPaper(a)
	if err := s.cache.SetExamPaper(ctx, paper); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache paper")
	}
	return paper, nil
}

// BuildPaper strips answer keys from an assessment.
func BuildPaper(a *model.Assessment) *model.ExamPaper {
	qs := make([]model.QuestionForStudent, len(a.Questions))
	for i := range a.Questions {
		qs[i] = a.Questions[i].ForStudent()
	}
	return &model.ExamPaper{
		ExamID:       a.ID,
		Title:        a.Title,
		Duration:     a.Duration,
		Instructions: a.Instructions,
		Settings:     a.QuestionSettings,
		Questions:    qs,
	}
}

// WarmPaper writes the paper of a published exam to Redis.
func (s *AssessmentService) WarmPaper(ctx context.Context, a *model.Assessment) error {
	return s.cache.SetExamPaper(ctx, BuildPaper(a))
}

// PrewarmPapers caches the paper of every published exam at boot.
func (s *AssessmentService) PrewarmPapers(ctx context.Context) error {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmPaper(ctx, &exams[i]); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Failed to warm paper, skipping")
			continue
		}
		warmed++
	}
	s.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("Prewarming complete")
	return nil
}

// refreshPaper keeps the cached paper in step with the stored assessment.
func (s *AssessmentService) refreshPaper(ctx context.Context, a *model.Assessment) {
	var err error
	if a.Status == model.AssessmentStatusPublished {
		err = s.WarmPaper(ctx, a)
	} else {
		err = s.cache.InvalidateExamPaper(ctx, a.ID)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", a.ID.String()).Msg("Failed to refresh cached paper")
	}
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

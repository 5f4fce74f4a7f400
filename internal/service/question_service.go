package service

import (
	"context"
	"fmt"

	"github.com/examflow/examflow-backend/internal/generator"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GenerateResult is the outcome of one generation request.
type GenerateResult struct {
	Questions     []model.Question
	Generator     string
	ProcessingLog []string
}

// QuestionService handles the questions of an assessment, including
// generation from uploaded documents.
type QuestionService struct {
	exams *AssessmentService
	docs  *DocumentService
	gen   *generator.Chain
	log   zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(exams *AssessmentService, docs *DocumentService, gen *generator.Chain, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		exams: exams,
		docs:  docs,
		gen:   gen,
		log:   log.With().Str("component", "question_service").Logger(),
	}
}

// List returns the questions of an assessment in order.
func (s *QuestionService) List(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	a, err := s.exams.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	if a.Questions == nil {
		return []model.Question{}, nil
	}
	return a.Questions, nil
}

// Add validates and appends questions.
func (s *QuestionService) Add(ctx context.Context, examID uuid.UUID, inputs []model.QuestionInput) ([]model.Question, error) {
	_, qs, err := s.exams.AddQuestions(ctx, examID, inputs)
	return qs, err
}

// Remove deletes one question.
func (s *QuestionService) Remove(ctx context.Context, examID uuid.UUID, questionID string) error {
	_, err := s.exams.RemoveQuestion(ctx, examID, questionID)
	return err
}

// Generate produces questions from stored documents and inline text and
// appends the valid ones to the assessment. Drafts that fail validation
// are dropped and noted in the processing log.
func (s *QuestionService) Generate(ctx context.Context, examID uuid.UUID, req *model.GenerateQuestionsRequest) (*GenerateResult, error) {
	if _, err := s.exams.Get(ctx, examID); err != nil {
		return nil, err
	}

	texts, missing, err := s.docs.Texts(ctx, req.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	for _, c := range req.DocumentContents {
		if c != "" {
			texts = append(texts, c)
		}
	}

	out, err := s.gen.Generate(ctx, generator.Request{
		Texts:      texts,
		Count:      req.QuestionCount,
		Difficulty: req.Difficulty,
		Types:      req.QuestionTypes,
		FocusArea:  req.FocusArea,
	})
	if err != nil {
		return nil, err
	}

	res := &GenerateResult{Generator: out.Generator, Questions: []model.Question{}}
	for _, id := range missing {
		res.ProcessingLog = append(res.ProcessingLog, fmt.Sprintf("Document %s not found, skipped", id))
	}
	res.ProcessingLog = append(res.ProcessingLog, out.ProcessingLog...)

	qs := make([]model.Question, 0, len(out.Questions))
	for i, in := range out.Questions {
		q, err := BuildQuestion(in)
		if err != nil {
			res.ProcessingLog = append(res.ProcessingLog, fmt.Sprintf("Dropped question %d: %v", i+1, err))
			continue
		}
		qs = append(qs, q)
	}
	if len(qs) == 0 {
		res.ProcessingLog = append(res.ProcessingLog, "No valid questions to add")
		return res, nil
	}

	if _, err := s.exams.AppendQuestions(ctx, examID, qs); err != nil {
		return nil, err
	}
	res.Questions = qs
	res.ProcessingLog = append(res.ProcessingLog, fmt.Sprintf("Added %d question(s) to assessment", len(qs)))
	s.log.Info().
		Str("exam_id", examID.String()).
		Str("generator", out.Generator).
		Int("added", len(qs)).
		Msg("Questions generated")
	return res, nil
}

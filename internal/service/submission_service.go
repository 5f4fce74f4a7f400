package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examflow/examflow-backend/internal/cache"
	"github.com/examflow/examflow-backend/internal/metrics"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/examflow/examflow-backend/internal/response"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubmitInput is a completed attempt handed in by the student client.
type SubmitInput struct {
	SessionID      uuid.UUID
	Answers        []model.AnswerInput
	TotalTimeSpent float64
}

// SubmitResult identifies the stored submission and summarises it.
type SubmitResult struct {
	SubmissionID uuid.UUID
	Summary      model.SubmissionSummary
}

// SubmissionService records and serves scored exam submissions.
type SubmissionService struct {
	submissions repository.SubmissionStore
	sessions    repository.SessionStore
	exams       repository.AssessmentStore
	cache       *cache.SessionCache
	scorer      Scorer
	now         func() time.Time
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	submissions repository.SubmissionStore,
	sessions repository.SessionStore,
	exams repository.AssessmentStore,
	sessionCache *cache.SessionCache,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissions: submissions,
		sessions:    sessions,
		exams:       exams,
		cache:       sessionCache,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// WithClock replaces the time source.
func (s *SubmissionService) WithClock(now func() time.Time) *SubmissionService {
	s.now = now
	return s
}

// ParseSessionID parses a client-supplied session id. Malformed ids are
// reported as unknown sessions.
func ParseSessionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrSessionNotFound
	}
	return id, nil
}

// Submit grades the answers and closes the session. Nothing is persisted
// unless the session is still in progress.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	sess, err := s.sessions.GetByID(ctx, in.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Status != model.SessionStatusInProgress {
		return nil, ErrAlreadySubmitted
	}

	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	graded := s.scorer.Grade(exam, in.Answers)
	sub := &model.Submission{
		ID:                 uuid.New(),
		SessionID:          sess.ID,
		ExamID:             exam.ID,
		ExamTitle:          exam.Title,
		Answers:            graded.Answers,
		TotalTimeSpent:     in.TotalTimeSpent,
		Score:              graded.Score,
		MaxScore:           graded.MaxScore,
		Percentage:         graded.Percentage,
		QuestionsAttempted: graded.QuestionsAttempted,
		TotalQuestions:     graded.TotalQuestions,
		PendingReviewCount: graded.PendingReviewCount,
		Status:             graded.Status,
		SubmissionTime:     s.now(),
	}

	switch err := s.submissions.Create(ctx, sub); {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrSessionNotFound
	case errors.Is(err, repository.ErrConflict):
		return nil, ErrAlreadySubmitted
	case err != nil:
		return nil, fmt.Errorf("store submission: %w", err)
	}

	if err := s.cache.ClearSession(ctx, sess.ID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to clear session cache")
	}

	metrics.SubmissionScore.WithLabelValues(string(sub.Status)).Observe(sub.Percentage)
	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Str("session_id", sess.ID.String()).
		Float64("score", sub.Score).
		Float64("max_score", sub.MaxScore).
		Msg("Submission recorded")

	return &SubmitResult{SubmissionID: sub.ID, Summary: summarize(sub)}, nil
}

// Get returns the detail view of a submission.
func (s *SubmissionService) Get(ctx context.Context, id uuid.UUID) (*model.SubmissionDetail, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return detail(sub), nil
}

// ListByExam returns one page of submission results for an exam.
func (s *SubmissionService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.SubmissionDetail, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	subs, total, err := s.submissions.ListByExam(ctx, examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]model.SubmissionDetail, 0, len(subs))
	for i := range subs {
		out = append(out, *detail(&subs[i]))
	}
	return out, response.NewPagination(page, perPage, total), nil
}

func summarize(sub *model.Submission) model.SubmissionSummary {
	return model.SubmissionSummary{
		ExamTitle:          sub.ExamTitle,
		TotalQuestions:     sub.TotalQuestions,
		QuestionsAttempted: sub.QuestionsAttempted,
		Score:              sub.Score,
		MaxScore:           sub.MaxScore,
		Percentage:         round2(sub.Percentage),
		TimeSpentMinutes:   round2(sub.TotalTimeSpent / 60),
		PendingReviewCount: sub.PendingReviewCount,
		Status:             sub.Status,
	}
}

func detail(sub *model.Submission) *model.SubmissionDetail {
	answers := []model.GradedAnswer(sub.Answers)
	if answers == nil {
		answers = []model.GradedAnswer{}
	}
	return &model.SubmissionDetail{
		SubmissionID:       sub.ID,
		SessionID:          sub.SessionID,
		ExamID:             sub.ExamID,
		ExamTitle:          sub.ExamTitle,
		Score:              sub.Score,
		MaxScore:           sub.MaxScore,
		Percentage:         round2(sub.Percentage),
		QuestionsAttempted: sub.QuestionsAttempted,
		TotalQuestions:     sub.TotalQuestions,
		PendingReviewCount: sub.PendingReviewCount,
		TimeSpentMinutes:   round2(sub.TotalTimeSpent / 60),
		SubmissionTime:     sub.SubmissionTime,
		Status:             sub.Status,
		Answers:            answers,
	}
}

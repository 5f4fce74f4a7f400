package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T, env *testEnv, exam *model.Assessment) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tok, _, err := env.tokens.Issue(ctx, IssueInput{ExamID: exam.ID})
	require.NoError(t, err)
	res, err := env.sessions.Claim(ctx, tok.Code, nil)
	require.NoError(t, err)
	require.True(t, res.OK())
	return res.Session.ID
}

func mcqOnlyExam(t *testing.T, env *testEnv) *model.Assessment {
	t.Helper()
	a := &model.Assessment{
		ID:    uuid.New(),
		Title: "Quick Check",
		Questions: model.QuestionList{
			{ID: "only", Type: model.QuestionTypeMCQ, Options: []string{"a", "b", "c"}, CorrectAnswer: intPtr(2), Points: 1},
		},
		CreatedAt: env.clock.Now(),
	}
	require.NoError(t, env.stores.Assessments.Create(context.Background(), a))
	return a
}

func TestSubmissionService_ScoringRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := mcqOnlyExam(t, env)
	ctx := context.Background()

	right, err := env.submissions.Submit(ctx, SubmitInput{
		SessionID:      startSession(t, env, exam),
		Answers:        []model.AnswerInput{{QuestionID: "only", Answer: json.RawMessage(`2`)}},
		TotalTimeSpent: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, right.Summary.Score)
	assert.Equal(t, 1.0, right.Summary.MaxScore)
	assert.Equal(t, 100.0, right.Summary.Percentage)
	assert.Equal(t, 1.5, right.Summary.TimeSpentMinutes)
	assert.Equal(t, model.SubmissionStatusCompleted, right.Summary.Status)
	assert.Equal(t, "Quick Check", right.Summary.ExamTitle)

	wrong, err := env.submissions.Submit(ctx, SubmitInput{
		SessionID: startSession(t, env, exam),
		Answers:   []model.AnswerInput{{QuestionID: "only", Answer: json.RawMessage(`0`)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, wrong.Summary.Score)
	assert.Equal(t, 0.0, wrong.Summary.Percentage)
}

func TestSubmissionService_PendingReviewAndRounding(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()

	res, err := env.submissions.Submit(ctx, SubmitInput{
		SessionID: startSession(t, env, exam),
		Answers: []model.AnswerInput{
			{QuestionID: "q1", Answer: json.RawMessage(`"2"`), TimeSpent: 20},
			{QuestionID: "q2", Answer: json.RawMessage(`"Water moves across a membrane."`), TimeSpent: 40},
		},
		TotalTimeSpent: 100,
	})
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 1.0, s.Score)
	assert.Equal(t, 3.0, s.MaxScore)
	assert.Equal(t, 33.33, s.Percentage)
	assert.Equal(t, 1.67, s.TimeSpentMinutes)
	assert.Equal(t, 2, s.QuestionsAttempted)
	assert.Equal(t, 2, s.TotalQuestions)
	assert.Equal(t, 1, s.PendingReviewCount)
	assert.Equal(t, model.SubmissionStatusPendingReview, s.Status)

	detail, err := env.submissions.Get(ctx, res.SubmissionID)
	require.NoError(t, err)
	require.Len(t, detail.Answers, 2)
	assert.Equal(t, model.OutcomeScored, detail.Answers[0].Outcome.Kind)
	assert.Equal(t, 1.0, detail.Answers[0].Outcome.Points)
	assert.Equal(t, model.OutcomePendingManualReview, detail.Answers[1].Outcome.Kind)
	assert.Equal(t, exam.ID, detail.ExamID)
}

func TestSubmissionService_UnknownSessionPersistsNothing(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.submissions.Submit(context.Background(), SubmitInput{SessionID: uuid.New()})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, env.db.submissions)

	_, err = ParseSessionID("not-a-uuid")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmissionService_ResubmissionConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := mcqOnlyExam(t, env)
	ctx := context.Background()
	sessionID := startSession(t, env, exam)

	_, err := env.submissions.Submit(ctx, SubmitInput{SessionID: sessionID})
	require.NoError(t, err)

	_, err = env.submissions.Submit(ctx, SubmitInput{SessionID: sessionID})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, env.db.submissions, 1)
}

func TestSubmissionService_ClearsSessionCache(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := mcqOnlyExam(t, env)
	ctx := context.Background()
	sessionID := startSession(t, env, exam)

	require.NoError(t, env.sessions.SaveDraft(ctx, sessionID, "only", "1"))
	_, err := env.submissions.Submit(ctx, SubmitInput{SessionID: sessionID})
	require.NoError(t, err)

	drafts, err := env.cache.Drafts(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestSubmissionService_GetUnknown(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.submissions.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSubmissionService_ListByExam(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := mcqOnlyExam(t, env)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.submissions.Submit(ctx, SubmitInput{SessionID: startSession(t, env, exam)})
		require.NoError(t, err)
	}

	list, page, err := env.submissions.ListByExam(ctx, exam.ID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
}

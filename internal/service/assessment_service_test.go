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

func TestAssessmentService_CreateDefaults(t *testing.T) {
	env := newTestEnv(t, nil)

	a, err := env.exams.Create(context.Background(), &model.CreateAssessmentRequest{
		Title: "  Algebra  ",
		Questions: []model.QuestionInput{
			{Type: model.QuestionTypeDescriptive, Question: "Prove it."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Algebra", a.Title)
	assert.Equal(t, 60, a.Duration)
	assert.Equal(t, "mixed", a.ExamType)
	assert.Equal(t, "medium", a.Difficulty)
	assert.Equal(t, "manual", a.ContentSource)
	assert.Equal(t, model.AssessmentStatusDraft, a.Status)
	assert.Equal(t, 60.0, a.QuestionSettings.PassingScore)
	require.Len(t, a.Questions, 1)
	assert.NotEmpty(t, a.Questions[0].ID)
}

func TestAssessmentService_CreateRejectsInvalidQuestion(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.exams.Create(context.Background(), &model.CreateAssessmentRequest{
		Title:     "Bad",
		Questions: []model.QuestionInput{{Type: model.QuestionTypeMCQ, Question: "One option", Options: []string{"x"}}},
	})
	assert.ErrorIs(t, err, ErrInvalidQuestion)
	assert.Empty(t, env.db.exams)
}

func TestAssessmentService_UpdateAndPublishManagePaperCache(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	a, err := env.exams.Create(ctx, &model.CreateAssessmentRequest{Title: "Draft"})
	require.NoError(t, err)

	_, ok, err := env.cache.ExamPaper(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.exams.Publish(ctx, a.ID)
	require.NoError(t, err)
	paper, ok, err := env.cache.ExamPaper(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Draft", paper.Title)

	title := "Final"
	updated, err := env.exams.Update(ctx, a.ID, &model.UpdateAssessmentRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentStatusPublished, updated.Status)
	paper, _, err = env.cache.ExamPaper(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", paper.Title)

	require.NoError(t, env.exams.Delete(ctx, a.ID))
	_, ok, err = env.cache.ExamPaper(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.exams.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrExamNotFound)
	assert.ErrorIs(t, env.exams.Delete(ctx, a.ID), ErrExamNotFound)
}

func TestAssessmentService_ListPaginates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.exams.Create(ctx, &model.CreateAssessmentRequest{Title: "Exam"})
		require.NoError(t, err)
	}

	list, page, err := env.exams.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 5, page.TotalItems)
	assert.Equal(t, 3, page.TotalPages)

	_, page, err = env.exams.List(ctx, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PerPage)
}

func TestAssessmentService_PrewarmPapers(t *testing.T) {
	env := newTestEnv(t, nil)
	published := env.seedExam(t)
	ctx := context.Background()

	_, err := env.exams.Create(ctx, &model.CreateAssessmentRequest{Title: "Draft"})
	require.NoError(t, err)

	require.NoError(t, env.exams.PrewarmPapers(ctx))
	_, ok, err := env.cache.ExamPaper(ctx, published.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildPaperOmitsAnswerKey(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)

	raw, err := json.Marshal(BuildPaper(exam))
	require.NoError(t, err)

	var paper struct {
		Settings  map[string]json.RawMessage   `json:"question_settings"`
		Questions []map[string]json.RawMessage `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(raw, &paper))
	require.Len(t, paper.Questions, len(exam.Questions))
	for _, q := range paper.Questions {
		assert.NotContains(t, q, "correct_answer")
		assert.NotContains(t, q, "explanation")
		assert.Contains(t, q, "question")
	}
	assert.Contains(t, paper.Settings, "show_correct_answers")
}

func TestMonitorService_RecordQueuesAndReports(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()
	sessionID := startSession(t, env, exam)

	e, err := env.monitor.Record(ctx, sessionID, &model.MonitorEventRequest{EventType: model.MonitorEventCopyPaste})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, e.Severity)
	assert.Equal(t, exam.ID, e.ExamID)

	queued, err := env.mr.List("persist_monitor_events_queue")
	require.NoError(t, err)
	require.Len(t, queued, 1)

	// The worker normally drains the queue; persist directly here.
	require.NoError(t, env.stores.MonitorEvents.Insert(ctx, e))
	require.NoError(t, env.sessions.SaveDraft(ctx, sessionID, "q2", "draft"))

	report, err := env.monitor.SessionReport(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, report.Events, 1)
	assert.Equal(t, 1, report.HighSeverity)
	assert.Equal(t, 1, report.DraftsPending)
}

func TestMonitorService_RejectsClosedAndUnknownSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	exam := env.seedExam(t)
	ctx := context.Background()

	_, err := env.monitor.Record(ctx, uuid.New(), &model.MonitorEventRequest{EventType: model.MonitorEventTabSwitch})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sessionID := startSession(t, env, exam)
	_, err = env.submissions.Submit(ctx, SubmitInput{SessionID: sessionID})
	require.NoError(t, err)

	_, err = env.monitor.Record(ctx, sessionID, &model.MonitorEventRequest{EventType: model.MonitorEventTabSwitch})
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = env.monitor.SessionReport(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

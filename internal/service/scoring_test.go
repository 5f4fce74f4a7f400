package service

import (
	"encoding/json"
	"testing"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func singleMCQExam() *model.Assessment {
	return &model.Assessment{
		Title: "Quiz",
		Questions: model.QuestionList{
			{ID: "q1", Type: model.QuestionTypeMCQ, Options: []string{"a", "b", "c"}, CorrectAnswer: intPtr(2), Points: 1.0},
		},
	}
}

func answer(qid, raw string) model.AnswerInput {
	return model.AnswerInput{QuestionID: qid, Answer: json.RawMessage(raw)}
}

func TestScorer_CorrectIndexEarnsFullPoints(t *testing.T) {
	res := Scorer{}.Grade(singleMCQExam(), []model.AnswerInput{answer("q1", `2`)})

	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, 1.0, res.MaxScore)
	assert.Equal(t, 100.0, res.Percentage)
	assert.Equal(t, 1, res.QuestionsAttempted)
	assert.Equal(t, model.SubmissionStatusCompleted, res.Status)
	assert.Equal(t, model.Outcome{Kind: model.OutcomeScored, Points: 1.0}, res.Answers[0].Outcome)
}

func TestScorer_WrongIndexEarnsZero(t *testing.T) {
	res := Scorer{}.Grade(singleMCQExam(), []model.AnswerInput{answer("q1", `0`)})

	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 1.0, res.MaxScore)
	assert.Equal(t, 0.0, res.Percentage)
	assert.Equal(t, model.OutcomeScored, res.Answers[0].Outcome.Kind)
}

func TestScorer_AcceptsNumericStringIndex(t *testing.T) {
	res := Scorer{}.Grade(singleMCQExam(), []model.AnswerInput{answer("q1", `" 2 "`)})
	assert.Equal(t, 1.0, res.Score)

	res = Scorer{}.Grade(singleMCQExam(), []model.AnswerInput{answer("q1", `"two"`)})
	assert.Equal(t, 0.0, res.Score)

	res = Scorer{}.Grade(singleMCQExam(), []model.AnswerInput{answer("q1", `2.5`)})
	assert.Equal(t, 0.0, res.Score)
}

func TestScorer_FreeTextIsPendingReview(t *testing.T) {
	exam := singleMCQExam()
	exam.Questions = append(exam.Questions, model.Question{ID: "q2", Type: model.QuestionTypeDescriptive, Points: 4})

	res := Scorer{}.Grade(exam, []model.AnswerInput{
		answer("q1", `2`),
		answer("q2", `"Newton's first law"`),
	})

	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, 5.0, res.MaxScore)
	assert.InDelta(t, 20.0, res.Percentage, 1e-9)
	assert.Equal(t, 1, res.PendingReviewCount)
	assert.Equal(t, model.SubmissionStatusPendingReview, res.Status)
	assert.Equal(t, model.OutcomePendingManualReview, res.Answers[1].Outcome.Kind)
}

func TestScorer_UnmatchedAndDuplicateAnswers(t *testing.T) {
	res := Scorer{}.Grade(singleMCQExam(), []model.AnswerInput{
		answer("q1", `2`),
		answer("q1", `2`),
		answer("ghost", `1`),
	})

	assert.Equal(t, 1.0, res.Score, "duplicates must not inflate the score")
	assert.Equal(t, 3, res.QuestionsAttempted)
	assert.Equal(t, model.OutcomeUnmatched, res.Answers[1].Outcome.Kind)
	assert.Equal(t, model.OutcomeUnmatched, res.Answers[2].Outcome.Kind)
}

func TestScorer_EmptyAnswersNotAttempted(t *testing.T) {
	res := Scorer{}.Grade(singleMCQExam(), []model.AnswerInput{answer("q1", `null`)})
	assert.Equal(t, 0, res.QuestionsAttempted)
	assert.Equal(t, 0.0, res.Score)
}

func TestScorer_ZeroMaxScoreGivesZeroPercentage(t *testing.T) {
	exam := &model.Assessment{Questions: model.QuestionList{
		{ID: "q1", Type: model.QuestionTypeMCQ, Options: []string{"a", "b"}, CorrectAnswer: intPtr(0), Points: 0},
	}}
	res := Scorer{}.Grade(exam, []model.AnswerInput{answer("q1", `0`)})

	assert.Equal(t, 0.0, res.MaxScore)
	assert.Equal(t, 0.0, res.Percentage)
}

func TestScorer_MaxScoreCoversUnansweredQuestions(t *testing.T) {
	exam := singleMCQExam()
	exam.Questions = append(exam.Questions, model.Question{ID: "q2", Type: model.QuestionTypeMCQ, Options: []string{"x", "y"}, CorrectAnswer: intPtr(1), Points: 3})

	res := Scorer{}.Grade(exam, []model.AnswerInput{answer("q1", `2`)})
	assert.Equal(t, 4.0, res.MaxScore)
	assert.Equal(t, 2, res.TotalQuestions)
	assert.InDelta(t, 25.0, res.Percentage, 1e-9)
}

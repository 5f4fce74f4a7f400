package service

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/examflow/examflow-backend/internal/model"
)

// GradeResult is the outcome of grading one submission.
type GradeResult struct {
	Answers            model.GradedAnswerList
	Score              float64
	MaxScore           float64
	Percentage         float64
	QuestionsAttempted int
	TotalQuestions     int
	PendingReviewCount int
	Status             model.SubmissionStatus
}

// Scorer grades answers against an exam's answer key. Only mcq questions
// are graded automatically; every other type is left for manual review.
type Scorer struct{}

// Grade scores answers against exam. The first answer for a question id
// wins; later duplicates and unknown ids are recorded as unmatched.
func (Scorer) Grade(exam *model.Assessment, answers []model.AnswerInput) GradeResult {
	res := GradeResult{
		Answers:        make(model.GradedAnswerList, 0, len(answers)),
		MaxScore:       exam.MaxScore(),
		TotalQuestions: len(exam.Questions),
		Status:         model.SubmissionStatusCompleted,
	}

	seen := make(map[string]bool, len(answers))
	for _, a := range answers {
		graded := model.GradedAnswer{AnswerInput: a}
		if answered(a.Answer) {
			res.QuestionsAttempted++
		}

		q, ok := exam.FindQuestion(a.QuestionID)
		if !ok || seen[a.QuestionID] {
			graded.Outcome = model.Outcome{Kind: model.OutcomeUnmatched}
			res.Answers = append(res.Answers, graded)
			continue
		}
		seen[a.QuestionID] = true

		if q.Type.AutoGradable() {
			points := 0.0
			if idx, ok := optionIndex(a.Answer); ok && q.CorrectAnswer != nil && idx == *q.CorrectAnswer {
				points = q.Points
			}
			graded.Outcome = model.Outcome{Kind: model.OutcomeScored, Points: points}
			res.Score += points
		} else {
			graded.Outcome = model.Outcome{Kind: model.OutcomePendingManualReview}
			res.PendingReviewCount++
		}
		res.Answers = append(res.Answers, graded)
	}

	if res.MaxScore > 0 {
		res.Percentage = 100 * res.Score / res.MaxScore
	}
	if res.PendingReviewCount > 0 {
		res.Status = model.SubmissionStatusPendingReview
	}
	return res
}

// answered reports whether the raw answer carries a value.
func answered(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// optionIndex decodes an mcq answer given as a JSON integer or a numeric string.
func optionIndex(raw json.RawMessage) (int, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(trimmed, &f); err != nil {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if f != math.Trunc(f) || f < 0 {
		return 0, false
	}
	return int(f), true
}

// round2 rounds to two decimal places for presentation.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

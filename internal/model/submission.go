package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates the grading state of a submission.
type SubmissionStatus string

const (
	SubmissionStatusCompleted     SubmissionStatus = "completed"
	SubmissionStatusPendingReview SubmissionStatus = "pending_review"
)

// OutcomeKind is the grading variant of a single answer.
type OutcomeKind string

const (
	OutcomeScored              OutcomeKind = "scored"
	OutcomePendingManualReview OutcomeKind = "pending_manual_review"
	OutcomeUnmatched           OutcomeKind = "unmatched"
)

// Outcome records how one answer was graded. Points is meaningful only
// for OutcomeScored.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Points float64     `json:"points"`
}

// AnswerInput is one answer in a submission payload. Answer is kept raw
// because its shape depends on the question type.
type AnswerInput struct {
	QuestionID       string          `json:"question_id" binding:"required"`
	Answer           json.RawMessage `json:"answer"`
	TimeSpent        float64         `json:"time_spent" binding:"gte=0"`
	FlaggedForReview bool            `json:"flagged_for_review"`
}

// GradedAnswer is an answer together with its grading outcome.
type GradedAnswer struct {
	AnswerInput
	Outcome Outcome `json:"outcome"`
}

// GradedAnswerList is the JSON-encoded answers column.
type GradedAnswerList []GradedAnswer

// Value implements driver.Valuer.
func (l GradedAnswerList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *GradedAnswerList) Scan(src any) error {
	return scanJSON(src, l)
}

// Submission is the immutable ledger entry of one completed attempt.
type Submission struct {
	ID                 uuid.UUID        `json:"submission_id" db:"id"`
	SessionID          uuid.UUID        `json:"session_id" db:"session_id"`
	ExamID             uuid.UUID        `json:"exam_id" db:"exam_id"`
	ExamTitle          string           `json:"exam_title" db:"exam_title"`
	Answers            GradedAnswerList `json:"answers" db:"answers"`
	TotalTimeSpent     float64          `json:"total_time_spent" db:"total_time_spent"`
	Score              float64          `json:"score" db:"score"`
	MaxScore           float64          `json:"max_score" db:"max_score"`
	Percentage         float64          `json:"percentage" db:"percentage"`
	QuestionsAttempted int              `json:"questions_attempted" db:"questions_attempted"`
	TotalQuestions     int              `json:"total_questions" db:"total_questions"`
	PendingReviewCount int              `json:"pending_review_count" db:"pending_review_count"`
	Status             SubmissionStatus `json:"status" db:"status"`
	SubmissionTime     time.Time        `json:"submission_time" db:"submission_time"`
}

// SubmissionSummary is the condensed result returned right after submitting.
type SubmissionSummary struct {
	ExamTitle          string           `json:"exam_title"`
	TotalQuestions     int              `json:"total_questions"`
	QuestionsAttempted int              `json:"questions_attempted"`
	Score              float64          `json:"score"`
	MaxScore           float64          `json:"max_score"`
	Percentage         float64          `json:"percentage"`
	TimeSpentMinutes   float64          `json:"time_spent_minutes"`
	PendingReviewCount int              `json:"pending_review_count"`
	Status             SubmissionStatus `json:"status"`
}

// SubmissionDetail is the read view served by GET /submissions/:id.
type SubmissionDetail struct {
	SubmissionID       uuid.UUID        `json:"submission_id"`
	SessionID          uuid.UUID        `json:"session_id"`
	ExamID             uuid.UUID        `json:"exam_id"`
	ExamTitle          string           `json:"exam_title"`
	Score              float64          `json:"score"`
	MaxScore           float64          `json:"max_score"`
	Percentage         float64          `json:"percentage"`
	QuestionsAttempted int              `json:"questions_attempted"`
	TotalQuestions     int              `json:"total_questions"`
	PendingReviewCount int              `json:"pending_review_count"`
	TimeSpentMinutes   float64          `json:"time_spent_minutes"`
	SubmissionTime     time.Time        `json:"submission_time"`
	Status             SubmissionStatus `json:"status"`
	Answers            []GradedAnswer   `json:"answers"`
}

// SubmitRequest is the payload for POST /submissions.
type SubmitRequest struct {
	SessionID      string        `json:"session_id" binding:"required"`
	Answers        []AnswerInput `json:"answers" binding:"dive"`
	TotalTimeSpent float64       `json:"total_time_spent" binding:"gte=0"`
}

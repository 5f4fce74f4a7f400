package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusSubmitted  SessionStatus = "submitted"
)

// ExamSession is the attempt opened by a successful token claim.
type ExamSession struct {
	ID                     uuid.UUID     `json:"id" db:"id"`
	TokenID                uuid.UUID     `json:"token_id" db:"token_id"`
	TokenCode              string        `json:"token" db:"token_code"`
	ExamID                 uuid.UUID     `json:"exam_id" db:"exam_id"`
	StudentName            string        `json:"student_name,omitempty" db:"student_name"`
	Status                 SessionStatus `json:"status" db:"status"`
	VerificationConfidence *float64      `json:"verification_confidence,omitempty" db:"verification_confidence"`
	StartedAt              time.Time     `json:"started_at" db:"started_at"`
	SubmittedAt            *time.Time    `json:"submitted_at,omitempty" db:"submitted_at"`
}

// ExamSessionState is returned on page reload so the client can resume.
type ExamSessionState struct {
	SessionID        uuid.UUID         `json:"session_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	Status           SessionStatus     `json:"status"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingTime    float64           `json:"remaining_time"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind records which issuance path minted a token.
type TokenKind string

const (
	TokenKindAdmin TokenKind = "admin"
	TokenKindDemo  TokenKind = "demo"
)

// AccessToken grants a bounded number of attempts at one exam.
// Code is serialized as "token" to stay compatible with existing clients.
type AccessToken struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Code        string    `json:"token" db:"code"`
	ExamID      uuid.UUID `json:"exam_id" db:"exam_id"`
	StudentName string    `json:"student_name,omitempty" db:"student_name"`
	Kind        TokenKind `json:"kind" db:"kind"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
	UsageCount  int       `json:"usage_count" db:"usage_count"`
	MaxUsage    int       `json:"max_usage" db:"max_usage"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
// A token is invalid at and after the expiry instant.
func (t *AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Exhausted reports whether the usage ceiling has been reached.
func (t *AccessToken) Exhausted() bool {
	return t.UsageCount >= t.MaxUsage
}

// CreateTokenRequest is the payload for POST /admin/create-token.
type CreateTokenRequest struct {
	ExamID         string   `json:"exam_id" binding:"required"`
	StudentName    string   `json:"student_name" binding:"omitempty,max=255"`
	MaxUsage       *int     `json:"max_usage" binding:"omitempty,min=1,max=10000"`
	ExpiresInHours *float64 `json:"expires_in_hours" binding:"omitempty,gt=0"`
}

// ValidateTokenRequest is the payload for POST /student/validate-token.
// Token is a pointer so that an explicit empty string is accepted and
// rejected by the validator rather than by binding.
type ValidateTokenRequest struct {
	Token *string `json:"token" binding:"required"`
}

// FaceVerificationRequest is the payload for POST /student/face-verification.
type FaceVerificationRequest struct {
	Token               string   `json:"token" binding:"required"`
	FaceImageData       string   `json:"face_image_data" binding:"required"`
	ConfidenceThreshold *float64 `json:"confidence_threshold" binding:"omitempty,gte=0,lte=1"`
}

// StartSessionRequest is the optional body of POST /students/sessions.
type StartSessionRequest struct {
	Token string `json:"token"`
}

package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AssessmentStatus enumerates the authoring states of an assessment.
type AssessmentStatus string

const (
	AssessmentStatusDraft     AssessmentStatus = "draft"
	AssessmentStatusReady     AssessmentStatus = "ready"
	AssessmentStatusPublished AssessmentStatus = "published"
)

// QuestionSettings controls how an assessment is presented to students.
type QuestionSettings struct {
	RandomizeOrder     bool    `json:"randomize_order"`
	AllowReview        bool    `json:"allow_review"`
	ShowCorrectAnswers bool    `json:"show_correct_answers"`
	PassingScore       float64 `json:"passing_score"`
	AttemptsAllowed    int     `json:"attempts_allowed"`
}

// DefaultQuestionSettings mirrors the defaults of the authoring console.
func DefaultQuestionSettings() QuestionSettings {
	return QuestionSettings{
		AllowReview:     true,
		PassingScore:    60,
		AttemptsAllowed: 1,
	}
}

// Value implements driver.Valuer so the settings can live in a JSON column.
func (s QuestionSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *QuestionSettings) Scan(src any) error {
	return scanJSON(src, s)
}

// Assessment is an exam in the catalog. Questions are embedded in order.
type Assessment struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	Title            string           `json:"title" db:"title"`
	Description      string           `json:"description" db:"description"`
	Subject          string           `json:"subject" db:"subject"`
	Duration         int              `json:"duration" db:"duration"`
	Instructions     string           `json:"instructions" db:"instructions"`
	ExamType         string           `json:"exam_type" db:"exam_type"`
	Difficulty       string           `json:"difficulty" db:"difficulty"`
	ContentSource    string           `json:"content_source" db:"content_source"`
	Questions        QuestionList     `json:"questions" db:"questions"`
	QuestionSettings QuestionSettings `json:"question_settings" db:"question_settings"`
	Status           AssessmentStatus `json:"status" db:"status"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	LastModified     time.Time        `json:"last_modified" db:"last_modified"`
}

// FindQuestion returns the question with the given id, if present.
func (a *Assessment) FindQuestion(id string) (*Question, bool) {
	for i := range a.Questions {
		if a.Questions[i].ID == id {
			return &a.Questions[i], true
		}
	}
	return nil, false
}

// MaxScore is the sum of point values over every question in the assessment.
func (a *Assessment) MaxScore() float64 {
	var total float64
	for _, q := range a.Questions {
		total += q.Points
	}
	return total
}

// ExamInfo is the public metadata returned alongside a validated token.
type ExamInfo struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Duration      int       `json:"duration"`
	QuestionCount int       `json:"question_count"`
	ExamType      string    `json:"exam_type"`
	Difficulty    string    `json:"difficulty"`
	Instructions  string    `json:"instructions,omitempty"`
}

// Info projects the public exam metadata.
func (a *Assessment) Info() *ExamInfo {
	return &ExamInfo{
		ID:            a.ID,
		Title:         a.Title,
		Description:   a.Description,
		Duration:      a.Duration,
		QuestionCount: len(a.Questions),
		ExamType:      a.ExamType,
		Difficulty:    a.Difficulty,
		Instructions:  a.Instructions,
	}
}

// ExamPaper is the student-facing view of an assessment (no answer keys).
type ExamPaper struct {
	ExamID       uuid.UUID            `json:"exam_id"`
	Title        string               `json:"title"`
	Duration     int                  `json:"duration"`
	Instructions string               `json:"instructions"`
	Settings     QuestionSettings     `json:"question_settings"`
	Questions    []QuestionForStudent `json:"questions"`
}

// CreateAssessmentRequest is the payload for POST /assessments.
type CreateAssessmentRequest struct {
	Title            string            `json:"title" binding:"required,notblank,max=255"`
	Description      string            `json:"description" binding:"omitempty,max=5000"`
	Subject          string            `json:"subject" binding:"omitempty,max=255"`
	Duration         int               `json:"duration" binding:"omitempty,min=1,max=600"`
	Instructions     string            `json:"instructions" binding:"omitempty"`
	ExamType         string            `json:"exam_type" binding:"omitempty,max=64"`
	Difficulty       string            `json:"difficulty" binding:"omitempty,oneof=easy medium hard mixed"`
	ContentSource    string            `json:"content_source" binding:"omitempty,max=64"`
	Questions        []QuestionInput   `json:"questions" binding:"omitempty,dive"`
	QuestionSettings *QuestionSettings `json:"question_settings"`
}

// UpdateAssessmentRequest is a partial update; nil fields are left unchanged.
type UpdateAssessmentRequest struct {
	Title            *string           `json:"title" binding:"omitempty,notblank,max=255"`
	Description      *string           `json:"description" binding:"omitempty,max=5000"`
	Subject          *string           `json:"subject" binding:"omitempty,max=255"`
	Duration         *int              `json:"duration" binding:"omitempty,min=1,max=600"`
	Instructions     *string           `json:"instructions"`
	ExamType         *string           `json:"exam_type" binding:"omitempty,max=64"`
	Difficulty       *string           `json:"difficulty" binding:"omitempty,oneof=easy medium hard mixed"`
	ContentSource    *string           `json:"content_source" binding:"omitempty,max=64"`
	Status           *AssessmentStatus `json:"status" binding:"omitempty,oneof=draft ready published"`
	QuestionSettings *QuestionSettings `json:"question_settings"`
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported JSON column type")
	}
}

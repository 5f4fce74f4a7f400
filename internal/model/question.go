package model

import (
	"database/sql/driver"
	"encoding/json"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMCQ         QuestionType = "mcq"
	QuestionTypeDescriptive QuestionType = "descriptive"
	QuestionTypeCoding      QuestionType = "coding"
	QuestionTypePractical   QuestionType = "practical"
)

// AutoGradable reports whether answers to this type are scored without review.
func (t QuestionType) AutoGradable() bool {
	return t == QuestionTypeMCQ
}

// Question is a single item embedded in an assessment.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer *int         `json:"correct_answer,omitempty"`
	Difficulty    string       `json:"difficulty,omitempty"`
	EstimatedTime int          `json:"estimated_time,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	Points        float64      `json:"points"`
	Explanation   string       `json:"explanation,omitempty"`
	MaxWords      int          `json:"max_words,omitempty"`
}

// QuestionList is the JSON-encoded question column.
type QuestionList []Question

// Value implements driver.Valuer.
func (l QuestionList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *QuestionList) Scan(src any) error {
	return scanJSON(src, l)
}

// QuestionForStudent hides the answer key and explanation.
type QuestionForStudent struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	Points        float64      `json:"points"`
	EstimatedTime int          `json:"estimated_time,omitempty"`
	MaxWords      int          `json:"max_words,omitempty"`
}

// ForStudent strips grading data from the question.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:            q.ID,
		Type:          q.Type,
		Question:      q.Question,
		Options:       q.Options,
		Points:        q.Points,
		EstimatedTime: q.EstimatedTime,
		MaxWords:      q.MaxWords,
	}
}

// QuestionInput is the authoring payload for one question.
type QuestionInput struct {
	Type          QuestionType `json:"type" binding:"required,oneof=mcq descriptive coding practical"`
	Question      string       `json:"question" binding:"required,notblank"`
	Options       []string     `json:"options" binding:"omitempty,dive,required"`
	CorrectAnswer *int         `json:"correct_answer" binding:"omitempty,min=0"`
	Difficulty    string       `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	EstimatedTime int          `json:"estimated_time" binding:"omitempty,min=0"`
	Tags          []string     `json:"tags"`
	Points        *float64     `json:"points" binding:"omitempty,gte=0"`
	Explanation   string       `json:"explanation"`
	MaxWords      int          `json:"max_words" binding:"omitempty,min=0"`
}

// AddQuestionsRequest appends one or more questions to an assessment.
type AddQuestionsRequest struct {
	Questions []QuestionInput `json:"questions" binding:"required,min=1,dive"`
}

// GenerateQuestionsRequest is the payload for POST /assessments/:id/generate-questions.
type GenerateQuestionsRequest struct {
	DocumentIDs      []string       `json:"document_ids"`
	DocumentContents []string       `json:"document_contents"`
	QuestionCount    int            `json:"question_count" binding:"omitempty,min=1,max=50"`
	Difficulty       string         `json:"difficulty" binding:"omitempty,oneof=easy medium hard mixed"`
	QuestionTypes    []QuestionType `json:"question_types" binding:"omitempty,dive,oneof=mcq descriptive coding practical"`
	FocusArea        string         `json:"focus_area"`
}

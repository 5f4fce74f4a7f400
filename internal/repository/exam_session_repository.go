package repository

import (
	"context"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, token_id, token_code, exam_id, student_name, status,
		        verification_confidence, started_at, submitted_at
		 FROM exam_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.TokenID, &s.TokenCode, &s.ExamID, &s.StudentName, &s.Status,
		&s.VerificationConfidence, &s.StartedAt, &s.SubmittedAt)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

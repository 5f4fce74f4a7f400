package sqlite

import (
	"context"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SessionStore is the SQLite exam session reader.
type SessionStore struct {
	db *sqlx.DB
}

func (s *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	sess := &model.ExamSession{}
	err := s.db.GetContext(ctx, sess,
		`SELECT id, token_id, token_code, exam_id, student_name, status,
		        verification_confidence, started_at, submitted_at
		 FROM exam_sessions WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return sess, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const submissionColumns = `id, session_id, exam_id, exam_title, answers, total_time_spent,
	score, max_score, percentage, questions_attempted, total_questions,
	pending_review_count, status, submission_time`

// SubmissionRepository handles the submission ledger.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	s := &model.Submission{}
	var answers []byte
	err := row.Scan(&s.ID, &s.SessionID, &s.ExamID, &s.ExamTitle, &answers, &s.TotalTimeSpent,
		&s.Score, &s.MaxScore, &s.Percentage, &s.QuestionsAttempted, &s.TotalQuestions,
		&s.PendingReviewCount, &s.Status, &s.SubmissionTime)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.Answers.Scan(answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if s.Answers == nil {
		s.Answers = model.GradedAnswerList{}
	}
	return s, nil
}

// Create closes the session and records the submission atomically. The
// session row is the guard: only one transaction can flip it out of
// in_progress, and session_id is UNIQUE on submissions besides.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return err
	}
	if s.Answers == nil {
		answers = []byte("[]")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submission: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE exam_sessions SET status = $3, submitted_at = $2
		 WHERE id = $1 AND status = $4`,
		s.SessionID, s.SubmissionTime, model.SessionStatusSubmitted, model.SessionStatusInProgress)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM exam_sessions WHERE id = $1)`, s.SessionID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.SessionID, s.ExamID, s.ExamTitle, answers, s.TotalTimeSpent,
		s.Score, s.MaxScore, s.Percentage, s.QuestionsAttempted, s.TotalQuestions,
		s.PendingReviewCount, s.Status, s.SubmissionTime,
	)
	if err != nil {
		if err = translate(err); err == ErrDuplicate {
			return ErrConflict
		}
		return fmt.Errorf("insert submission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

// GetByID retrieves a submission by its UUID.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	return scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
}

// ListByExam returns one page of an exam's submissions, newest first.
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Submission, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE exam_id = $1 ORDER BY submission_time DESC LIMIT $2 OFFSET $3`,
		examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *s)
	}
	return list, total, rows.Err()
}

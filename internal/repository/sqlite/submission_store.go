package sqlite

import (
	"context"
	"fmt"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const submissionColumns = `id, session_id, exam_id, exam_title, answers, total_time_spent,
	score, max_score, percentage, questions_attempted, total_questions,
	pending_review_count, status, submission_time`

// SubmissionStore is the SQLite submission ledger.
type SubmissionStore struct {
	db *sqlx.DB
}

func (s *SubmissionStore) Create(ctx context.Context, sub *model.Submission) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submission: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE exam_sessions SET status = ?, submitted_at = ?
		 WHERE id = ? AND status = ?`,
		model.SessionStatusSubmitted, utc(sub.SubmissionTime), sub.SessionID, model.SessionStatusInProgress)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := affected(res); err != nil {
		if err != repository.ErrNotFound {
			return err
		}
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM exam_sessions WHERE id = ?)`, sub.SessionID); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.SessionID, sub.ExamID, sub.ExamTitle, sub.Answers, sub.TotalTimeSpent,
		sub.Score, sub.MaxScore, sub.Percentage, sub.QuestionsAttempted, sub.TotalQuestions,
		sub.PendingReviewCount, sub.Status, utc(sub.SubmissionTime),
	)
	if err != nil {
		if err = translate(err); err == repository.ErrDuplicate {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

func (s *SubmissionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	sub := &model.Submission{}
	if err := s.db.GetContext(ctx, sub,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}
	if sub.Answers == nil {
		sub.Answers = model.GradedAnswerList{}
	}
	return sub, nil
}

func (s *SubmissionStore) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Submission, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = ?`, examID); err != nil {
		return nil, 0, err
	}
	list := []model.Submission{}
	err := s.db.SelectContext(ctx, &list,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE exam_id = ? ORDER BY submission_time DESC LIMIT ? OFFSET ?`,
		examID, limit, offset)
	return list, total, err
}

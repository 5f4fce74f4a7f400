package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const assessmentColumns = `id, title, description, subject, duration, instructions,
	exam_type, difficulty, content_source, questions, question_settings,
	status, created_at, last_modified`

// AssessmentStore is the SQLite exam catalog. Question mutations read
// and rewrite the whole array inside one transaction.
type AssessmentStore struct {
	db *sqlx.DB
}

func (s *AssessmentStore) Create(ctx context.Context, a *model.Assessment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, a.Subject, a.Duration, a.Instructions,
		a.ExamType, a.Difficulty, a.ContentSource, a.Questions, a.QuestionSettings,
		a.Status, utc(a.CreatedAt), utc(a.LastModified),
	)
	return translate(err)
}

func (s *AssessmentStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	return getAssessment(ctx, s.db, id)
}

func getAssessment(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*model.Assessment, error) {
	a := &model.Assessment{}
	if err := sqlx.GetContext(ctx, q, a,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}
	if a.Questions == nil {
		a.Questions = model.QuestionList{}
	}
	return a, nil
}

func (s *AssessmentStore) List(ctx context.Context, limit, offset int) ([]model.Assessment, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM assessments`); err != nil {
		return nil, 0, err
	}
	list := []model.Assessment{}
	err := s.db.SelectContext(ctx, &list,
		`SELECT `+assessmentColumns+` FROM assessments
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	return list, total, err
}

func (s *AssessmentStore) ListPublished(ctx context.Context) ([]model.Assessment, error) {
	list := []model.Assessment{}
	err := s.db.SelectContext(ctx, &list,
		`SELECT `+assessmentColumns+` FROM assessments WHERE status = ?`,
		model.AssessmentStatusPublished)
	return list, err
}

func (s *AssessmentStore) Update(ctx context.Context, a *model.Assessment) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assessments SET title = ?, description = ?, subject = ?, duration = ?,
		        instructions = ?, exam_type = ?, difficulty = ?, content_source = ?,
		        questions = ?, question_settings = ?, status = ?, last_modified = ?
		 WHERE id = ?`,
		a.Title, a.Description, a.Subject, a.Duration,
		a.Instructions, a.ExamType, a.Difficulty, a.ContentSource,
		a.Questions, a.QuestionSettings, a.Status, utc(a.LastModified), a.ID,
	)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *AssessmentStore) Upsert(ctx context.Context, a *model.Assessment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     title = excluded.title, description = excluded.description,
		     subject = excluded.subject, duration = excluded.duration,
		     instructions = excluded.instructions, exam_type = excluded.exam_type,
		     difficulty = excluded.difficulty, content_source = excluded.content_source,
		     questions = excluded.questions, question_settings = excluded.question_settings,
		     status = excluded.status, last_modified = excluded.last_modified`,
		a.ID, a.Title, a.Description, a.Subject, a.Duration, a.Instructions,
		a.ExamType, a.Difficulty, a.ContentSource, a.Questions, a.QuestionSettings,
		a.Status, utc(a.CreatedAt), utc(a.LastModified),
	)
	return err
}

func (s *AssessmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assessments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *AssessmentStore) AppendQuestions(ctx context.Context, id uuid.UUID, qs []model.Question) (*model.Assessment, error) {
	return s.mutateQuestions(ctx, id, func(list model.QuestionList) (model.QuestionList, error) {
		return append(list, qs...), nil
	})
}

func (s *AssessmentStore) RemoveQuestion(ctx context.Context, id uuid.UUID, questionID string) (*model.Assessment, error) {
	return s.mutateQuestions(ctx, id, func(list model.QuestionList) (model.QuestionList, error) {
		kept := make(model.QuestionList, 0, len(list))
		for _, q := range list {
			if q.ID != questionID {
				kept = append(kept, q)
			}
		}
		if len(kept) == len(list) {
			return nil, repository.ErrNotFound
		}
		return kept, nil
	})
}

func (s *AssessmentStore) mutateQuestions(ctx context.Context, id uuid.UUID, fn func(model.QuestionList) (model.QuestionList, error)) (*model.Assessment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin question update: %w", err)
	}
	defer tx.Rollback()

	a, err := getAssessment(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	next, err := fn(a.Questions)
	if err != nil {
		return nil, err
	}
	a.Questions = next
	a.LastModified = time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE assessments SET questions = ?, last_modified = ? WHERE id = ?`,
		a.Questions, a.LastModified, a.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit question update: %w", err)
	}
	return a, nil
}

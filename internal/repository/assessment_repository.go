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

const assessmentColumns = `id, title, description, subject, duration, instructions,
	exam_type, difficulty, content_source, questions, question_settings,
	status, created_at, last_modified`

// AssessmentRepository handles the exam catalog. Questions are embedded
// as a JSONB array so that lookups return the full exam in one read.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

func scanAssessment(row pgx.Row) (*model.Assessment, error) {
	a := &model.Assessment{}
	var questions, settings []byte
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Subject, &a.Duration, &a.Instructions,
		&a.ExamType, &a.Difficulty, &a.ContentSource, &questions, &settings,
		&a.Status, &a.CreatedAt, &a.LastModified)
	if err != nil {
		return nil, translate(err)
	}
	if err := a.Questions.Scan(questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := a.QuestionSettings.Scan(settings); err != nil {
		return nil, fmt.Errorf("decode question settings: %w", err)
	}
	if a.Questions == nil {
		a.Questions = model.QuestionList{}
	}
	return a, nil
}

func encodeAssessmentJSON(a *model.Assessment) (questions, settings []byte, err error) {
	qs := a.Questions
	if qs == nil {
		qs = model.QuestionList{}
	}
	if questions, err = json.Marshal(qs); err != nil {
		return nil, nil, err
	}
	if settings, err = json.Marshal(a.QuestionSettings); err != nil {
		return nil, nil, err
	}
	return questions, settings, nil
}

// Create inserts a new assessment.
func (r *AssessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	questions, settings, err := encodeAssessmentJSON(a)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12, $13, $14)`,
		a.ID, a.Title, a.Description, a.Subject, a.Duration, a.Instructions,
		a.ExamType, a.Difficulty, a.ContentSource, questions, settings,
		a.Status, a.CreatedAt, a.LastModified,
	)
	return translate(err)
}

// GetByID retrieves an assessment by its UUID.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	return scanAssessment(r.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id))
}

// List returns one page of assessments, newest first, with the total count.
func (r *AssessmentRepository) List(ctx context.Context, limit, offset int) ([]model.Assessment, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assessments`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list, err := collectAssessments(rows)
	return list, total, err
}

// ListPublished returns every published assessment, used to prewarm caches.
func (r *AssessmentRepository) ListPublished(ctx context.Context) ([]model.Assessment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE status = $1`,
		model.AssessmentStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssessments(rows)
}

func collectAssessments(rows pgx.Rows) ([]model.Assessment, error) {
	list := []model.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// Update overwrites the mutable fields of an assessment, including questions.
func (r *AssessmentRepository) Update(ctx context.Context, a *model.Assessment) error {
	questions, settings, err := encodeAssessmentJSON(a)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE assessments SET title = $2, description = $3, subject = $4, duration = $5,
		        instructions = $6, exam_type = $7, difficulty = $8, content_source = $9,
		        questions = $10::jsonb, question_settings = $11::jsonb, status = $12,
		        last_modified = $13
		 WHERE id = $1`,
		a.ID, a.Title, a.Description, a.Subject, a.Duration,
		a.Instructions, a.ExamType, a.Difficulty, a.ContentSource,
		questions, settings, a.Status, a.LastModified,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert inserts the assessment or replaces the row with the same id.
func (r *AssessmentRepository) Upsert(ctx context.Context, a *model.Assessment) error {
	questions, settings, err := encodeAssessmentJSON(a)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO assessments (`+assessmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title, description = EXCLUDED.description,
		     subject = EXCLUDED.subject, duration = EXCLUDED.duration,
		     instructions = EXCLUDED.instructions, exam_type = EXCLUDED.exam_type,
		     difficulty = EXCLUDED.difficulty, content_source = EXCLUDED.content_source,
		     questions = EXCLUDED.questions, question_settings = EXCLUDED.question_settings,
		     status = EXCLUDED.status, last_modified = EXCLUDED.last_modified`,
		a.ID, a.Title, a.Description, a.Subject, a.Duration, a.Instructions,
		a.ExamType, a.Difficulty, a.ContentSource, questions, settings,
		a.Status, a.CreatedAt, a.LastModified,
	)
	return err
}

// Delete removes an assessment. Tokens bound to it become orphaned.
func (r *AssessmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendQuestions concatenates qs onto the question array in a single
// statement, so concurrent appends never lose each other's questions.
func (r *AssessmentRepository) AppendQuestions(ctx context.Context, id uuid.UUID, qs []model.Question) (*model.Assessment, error) {
	payload, err := json.Marshal(qs)
	if err != nil {
		return nil, err
	}
	return scanAssessment(r.pool.QueryRow(ctx,
		`UPDATE assessments
		 SET questions = questions || $2::jsonb, last_modified = NOW()
		 WHERE id = $1
		 RETURNING `+assessmentColumns, id, payload))
}

// RemoveQuestion drops one question by id. ErrNotFound covers both an
// unknown assessment and an unknown question.
func (r *AssessmentRepository) RemoveQuestion(ctx context.Context, id uuid.UUID, questionID string) (*model.Assessment, error) {
	return scanAssessment(r.pool.QueryRow(ctx,
		`UPDATE assessments
		 SET questions = COALESCE(
		         (SELECT jsonb_agg(q) FROM jsonb_array_elements(questions) q
		          WHERE q->>'id' <> $2), '[]'::jsonb),
		     last_modified = NOW()
		 WHERE id = $1 AND questions @> jsonb_build_array(jsonb_build_object('id', $2::text))
		 RETURNING `+assessmentColumns, id, questionID))
}

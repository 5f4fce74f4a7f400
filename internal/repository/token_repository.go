package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenColumns = `id, code, exam_id, student_name, kind, is_active,
	expires_at, usage_count, max_usage, created_at`

// TokenRepository handles access token data access.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func scanToken(row pgx.Row) (*model.AccessToken, error) {
	t := &model.AccessToken{}
	err := row.Scan(&t.ID, &t.Code, &t.ExamID, &t.StudentName, &t.Kind, &t.IsActive,
		&t.ExpiresAt, &t.UsageCount, &t.MaxUsage, &t.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// Create inserts a new token. A code collision yields ErrDuplicate.
func (r *TokenRepository) Create(ctx context.Context, t *model.AccessToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO access_tokens (`+tokenColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Code, t.ExamID, t.StudentName, t.Kind, t.IsActive,
		t.ExpiresAt, t.UsageCount, t.MaxUsage, t.CreatedAt,
	)
	return translate(err)
}

// CodeExists reports whether any token, active or not, uses code.
func (r *TokenRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM access_tokens WHERE code = $1)`, code,
	).Scan(&exists)
	return exists, err
}

// GetByCode retrieves a token by its exact code.
func (r *TokenRepository) GetByCode(ctx context.Context, code string) (*model.AccessToken, error) {
	return scanToken(r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE code = $1`, code))
}

// Upsert inserts a token or refreshes the existing row with the same code.
// The row keeps its original id and created_at.
func (r *TokenRepository) Upsert(ctx context.Context, t *model.AccessToken) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO access_tokens (`+tokenColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (code) DO UPDATE SET
		     exam_id = EXCLUDED.exam_id,
		     student_name = EXCLUDED.student_name,
		     kind = EXCLUDED.kind,
		     is_active = EXCLUDED.is_active,
		     expires_at = EXCLUDED.expires_at,
		     usage_count = EXCLUDED.usage_count,
		     max_usage = EXCLUDED.max_usage
		 RETURNING id, created_at`,
		t.ID, t.Code, t.ExamID, t.StudentName, t.Kind, t.IsActive,
		t.ExpiresAt, t.UsageCount, t.MaxUsage, t.CreatedAt,
	).Scan(&t.ID, &t.CreatedAt)
}

// Claim atomically consumes one use of the token and opens the session.
// The WHERE clause is the only guard: two concurrent claims cannot both
// pass it once usage_count reaches max_usage.
func (r *TokenRepository) Claim(ctx context.Context, code string, now time.Time, sess *model.ExamSession) (*model.AccessToken, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	tok, err := scanToken(tx.QueryRow(ctx,
		`UPDATE access_tokens SET usage_count = usage_count + 1
		 WHERE code = $1 AND is_active AND expires_at > $2 AND usage_count < max_usage
		 RETURNING `+tokenColumns, code, now))
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("increment usage: %w", err)
	}

	sess.TokenID = tok.ID
	sess.TokenCode = tok.Code
	sess.ExamID = tok.ExamID
	sess.StudentName = tok.StudentName
	sess.Status = model.SessionStatusInProgress

	_, err = tx.Exec(ctx,
		`INSERT INTO exam_sessions (id, token_id, token_code, exam_id, student_name,
		                            status, verification_confidence, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.TokenID, sess.TokenCode, sess.ExamID, sess.StudentName,
		sess.Status, sess.VerificationConfidence, sess.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", translate(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return tok, nil
}

// Deactivate soft-disables a token.
func (r *TokenRepository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE access_tokens SET is_active = FALSE WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByExam returns every token bound to an exam, newest first.
func (r *TokenRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.AccessToken, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens
		 WHERE exam_id = $1 ORDER BY created_at DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := []model.AccessToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

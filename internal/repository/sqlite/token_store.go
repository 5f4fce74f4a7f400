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

const tokenColumns = `id, code, exam_id, student_name, kind, is_active,
	expires_at, usage_count, max_usage, created_at`

// TokenStore is the SQLite access token store.
type TokenStore struct {
	db *sqlx.DB
}

func (s *TokenStore) Create(ctx context.Context, t *model.AccessToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Code, t.ExamID, t.StudentName, t.Kind, t.IsActive,
		utc(t.ExpiresAt), t.UsageCount, t.MaxUsage, utc(t.CreatedAt),
	)
	return translate(err)
}

func (s *TokenStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM access_tokens WHERE code = ?)`, code)
	return exists, err
}

func (s *TokenStore) GetByCode(ctx context.Context, code string) (*model.AccessToken, error) {
	t := &model.AccessToken{}
	err := s.db.GetContext(ctx, t,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE code = ?`, code)
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

func (s *TokenStore) Upsert(ctx context.Context, t *model.AccessToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET
		     exam_id = excluded.exam_id,
		     student_name = excluded.student_name,
		     kind = excluded.kind,
		     is_active = excluded.is_active,
		     expires_at = excluded.expires_at,
		     usage_count = excluded.usage_count,
		     max_usage = excluded.max_usage`,
		t.ID, t.Code, t.ExamID, t.StudentName, t.Kind, t.IsActive,
		utc(t.ExpiresAt), t.UsageCount, t.MaxUsage, utc(t.CreatedAt),
	)
	if err != nil {
		return translate(err)
	}
	return s.db.QueryRowxContext(ctx,
		`SELECT id, created_at FROM access_tokens WHERE code = ?`, t.Code,
	).Scan(&t.ID, &t.CreatedAt)
}

// Claim mirrors the PostgreSQL implementation: the conditional UPDATE is
// the only guard, and the session insert shares its transaction.
func (s *TokenStore) Claim(ctx context.Context, code string, now time.Time, sess *model.ExamSession) (*model.AccessToken, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE access_tokens SET usage_count = usage_count + 1
		 WHERE code = ? AND is_active = 1 AND expires_at > ? AND usage_count < max_usage`,
		code, utc(now))
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	if err := affected(res); err != nil {
		if err == repository.ErrNotFound {
			return nil, repository.ErrConflict
		}
		return nil, err
	}

	tok := &model.AccessToken{}
	if err := tx.GetContext(ctx, tok,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE code = ?`, code); err != nil {
		return nil, translate(err)
	}

	sess.TokenID = tok.ID
	sess.TokenCode = tok.Code
	sess.ExamID = tok.ExamID
	sess.StudentName = tok.StudentName
	sess.Status = model.SessionStatusInProgress

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exam_sessions (id, token_id, token_code, exam_id, student_name,
		                            status, verification_confidence, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TokenID, sess.TokenCode, sess.ExamID, sess.StudentName,
		sess.Status, sess.VerificationConfidence, utc(sess.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", translate(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return tok, nil
}

func (s *TokenStore) Deactivate(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE access_tokens SET is_active = 0 WHERE code = ?`, code)
	if err != nil {
		return err
	}
	return affected(res)
}

func (s *TokenStore) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.AccessToken, error) {
	tokens := []model.AccessToken{}
	err := s.db.SelectContext(ctx, &tokens,
		`SELECT `+tokenColumns+` FROM access_tokens
		 WHERE exam_id = ? ORDER BY created_at DESC`, examID)
	return tokens, err
}

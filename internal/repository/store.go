package repository

import (
	"context"
	"errors"
	"time"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
)

// Driver-neutral errors. Each store implementation translates its own
// no-rows and unique-violation errors into these.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
	// ErrMissingReference is returned when a row points at a parent that
	// does not exist (foreign key violation).
	ErrMissingReference = errors.New("referenced record does not exist")
	// ErrConflict is returned when a conditional update matched no row
	// even though the record may exist (e.g. a token that cannot be claimed).
	ErrConflict = errors.New("conditional update did not apply")
)

// TokenStore persists access tokens.
type TokenStore interface {
	Create(ctx context.Context, t *model.AccessToken) error
	CodeExists(ctx context.Context, code string) (bool, error)
	GetByCode(ctx context.Context, code string) (*model.AccessToken, error)
	// Upsert inserts the token or, on code conflict, rebinds and refreshes it.
	Upsert(ctx context.Context, t *model.AccessToken) error
	// Claim increments usage_count by one iff the token is active, unexpired
	// at now and below max_usage, and opens sess in the same transaction.
	// sess is completed with the token's id, code, exam and student name.
	// Returns ErrConflict when the conditional update matched no row.
	Claim(ctx context.Context, code string, now time.Time, sess *model.ExamSession) (*model.AccessToken, error)
	Deactivate(ctx context.Context, code string) error
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.AccessToken, error)
}

// AssessmentStore persists the exam catalog.
type AssessmentStore interface {
	Create(ctx context.Context, a *model.Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error)
	List(ctx context.Context, limit, offset int) ([]model.Assessment, int, error)
	ListPublished(ctx context.Context) ([]model.Assessment, error)
	Update(ctx context.Context, a *model.Assessment) error
	Upsert(ctx context.Context, a *model.Assessment) error
	Delete(ctx context.Context, id uuid.UUID) error
	AppendQuestions(ctx context.Context, id uuid.UUID, qs []model.Question) (*model.Assessment, error)
	RemoveQuestion(ctx context.Context, id uuid.UUID, questionID string) (*model.Assessment, error)
}

// SessionStore reads exam sessions. Sessions are created by TokenStore.Claim.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
}

// SubmissionStore persists the submission ledger.
type SubmissionStore interface {
	// Create marks the session submitted and inserts the submission in one
	// transaction. Returns ErrNotFound for an unknown session and
	// ErrConflict when the session is no longer in progress.
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Submission, int, error)
}

// DocumentStore persists uploaded source documents.
type DocumentStore interface {
	Create(ctx context.Context, d *model.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Document, error)
}

// MonitorEventStore persists proctoring events.
type MonitorEventStore interface {
	InsertBatch(ctx context.Context, events []model.MonitorEvent) error
	Insert(ctx context.Context, e *model.MonitorEvent) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.MonitorEvent, error)
}

// Stores bundles one implementation of every store.
type Stores struct {
	Tokens        TokenStore
	Assessments   AssessmentStore
	Sessions      SessionStore
	Submissions   SubmissionStore
	Documents     DocumentStore
	MonitorEvents MonitorEventStore
	// Ping checks that the underlying database answers.
	Ping func(ctx context.Context) error
	// Close releases the underlying connection pool.
	Close func()
}

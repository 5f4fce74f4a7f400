// Package sqlite implements the repository stores on an embedded SQLite
// database. It backs single-node deployments and the store tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// NewStores applies the schema and wires every store onto db.
func NewStores(ctx context.Context, db *sqlx.DB) (*repository.Stores, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &repository.Stores{
		Tokens:        &TokenStore{db: db},
		Assessments:   &AssessmentStore{db: db},
		Sessions:      &SessionStore{db: db},
		Submissions:   &SubmissionStore{db: db},
		Documents:     &DocumentStore{db: db},
		MonitorEvents: &MonitorEventStore{db: db},
		Ping:          db.PingContext,
		Close:         func() { _ = db.Close() },
	}, nil
}

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return repository.ErrDuplicate
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return repository.ErrMissingReference
		}
	}
	return err
}

// utc normalizes timestamps so that text comparisons in SQL order correctly.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

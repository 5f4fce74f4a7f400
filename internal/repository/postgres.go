package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresStores wires every PostgreSQL-backed store onto one pool.
func NewPostgresStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Tokens:        NewTokenRepository(pool),
		Assessments:   NewAssessmentRepository(pool),
		Sessions:      NewExamSessionRepository(pool),
		Submissions:   NewSubmissionRepository(pool),
		Documents:     NewDocumentRepository(pool),
		MonitorEvents: NewMonitorEventRepository(pool),
		Ping:          pool.Ping,
		Close:         pool.Close,
	}
}

// translate maps pgx errors onto the driver-neutral sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "23503":
			return ErrMissingReference
		}
	}
	return err
}

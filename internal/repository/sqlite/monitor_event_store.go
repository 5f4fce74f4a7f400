package sqlite

import (
	"context"
	"fmt"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MonitorEventStore is the SQLite proctoring event store.
type MonitorEventStore struct {
	db *sqlx.DB
}

// InsertBatch writes the batch in one transaction; SQLite has no COPY.
func (s *MonitorEventStore) InsertBatch(ctx context.Context, events []model.MonitorEvent) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO monitor_events (session_id, exam_id, event_type, severity, details, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.SessionID, e.ExamID, e.EventType, e.Severity,
			detailsOrNull(e.Details), utc(e.OccurredAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *MonitorEventStore) Insert(ctx context.Context, e *model.MonitorEvent) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (session_id, exam_id, event_type, severity, details, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.ExamID, e.EventType, e.Severity, detailsOrNull(e.Details), utc(e.OccurredAt))
	if err != nil {
		return translate(err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (s *MonitorEventStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.MonitorEvent, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, session_id, exam_id, event_type, severity, details, occurred_at
		 FROM monitor_events WHERE session_id = ? ORDER BY occurred_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.MonitorEvent{}
	for rows.Next() {
		var e model.MonitorEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ExamID, &e.EventType, &e.Severity, &details, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Details = details
		events = append(events, e)
	}
	return events, rows.Err()
}

func detailsOrNull(d []byte) any {
	if len(d) == 0 {
		return nil
	}
	return string(d)
}

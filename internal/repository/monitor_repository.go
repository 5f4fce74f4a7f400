package repository

import (
	"context"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorEventRepository persists proctoring events.
type MonitorEventRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorEventRepository creates a new MonitorEventRepository.
func NewMonitorEventRepository(pool *pgxpool.Pool) *MonitorEventRepository {
	return &MonitorEventRepository{pool: pool}
}

// InsertBatch bulk-loads events with the COPY protocol.
func (r *MonitorEventRepository) InsertBatch(ctx context.Context, events []model.MonitorEvent) error {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.SessionID, e.ExamID, string(e.EventType), string(e.Severity), detailsOrNull(e.Details), e.OccurredAt}
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"monitor_events"},
		[]string{"session_id", "exam_id", "event_type", "severity", "details", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert stores a single event. The worker falls back to this when a COPY
// batch is rejected, so that one bad row does not sink the rest.
func (r *MonitorEventRepository) Insert(ctx context.Context, e *model.MonitorEvent) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO monitor_events (session_id, exam_id, event_type, severity, details, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		e.SessionID, e.ExamID, e.EventType, e.Severity, detailsOrNull(e.Details), e.OccurredAt,
	).Scan(&e.ID)
	return translate(err)
}

// ListBySession returns a session's events in the order they occurred.
func (r *MonitorEventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.MonitorEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, exam_id, event_type, severity, details, occurred_at
		 FROM monitor_events WHERE session_id = $1 ORDER BY occurred_at, id`, sessionID)
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

func detailsOrNull(d []byte) []byte {
	if len(d) == 0 {
		return nil
	}
	return d
}

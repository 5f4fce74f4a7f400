package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/examflow/examflow-backend/internal/cache"
	"github.com/examflow/examflow-backend/internal/metrics"
	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// defaultSeverity is applied when the client does not grade an event.
var defaultSeverity = map[model.MonitorEventType]model.Severity{
	model.MonitorEventTabSwitch:       model.SeverityMedium,
	model.MonitorEventWindowBlur:      model.SeverityLow,
	model.MonitorEventCopyPaste:       model.SeverityHigh,
	model.MonitorEventFullscreenExit:  model.SeverityMedium,
	model.MonitorEventFaceNotDetected: model.SeverityHigh,
	model.MonitorEventMultipleFaces:   model.SeverityHigh,
	model.MonitorEventOther:           model.SeverityLow,
}

// MonitorService records proctoring events. Events are queued in Redis
// and persisted in batches by the monitor worker.
type MonitorService struct {
	events   repository.MonitorEventStore
	sessions *SessionService
	cache    *cache.SessionCache
	now      func() time.Time
	log      zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(events repository.MonitorEventStore, sessions *SessionService, sessionCache *cache.SessionCache, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		events:   events,
		sessions: sessions,
		cache:    sessionCache,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "monitor_service").Logger(),
	}
}

// Record queues an event for an in-progress session and publishes it to
// live admin subscribers.
func (s *MonitorService) Record(ctx context.Context, sessionID uuid.UUID, req *model.MonitorEventRequest) (*model.MonitorEvent, error) {
	sess, err := s.sessions.Active(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	severity := req.Severity
	if severity == "" {
		severity = defaultSeverity[req.EventType]
		if severity == "" {
			severity = model.SeverityLow
		}
	}

	e := &model.MonitorEvent{
		SessionID:  sess.ID,
		ExamID:     sess.ExamID,
		EventType:  req.EventType,
		Severity:   severity,
		Details:    req.Details,
		OccurredAt: s.now(),
	}
	if err := s.cache.EnqueueMonitorEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("enqueue monitor event: %w", err)
	}

	metrics.MonitorEventsTotal.WithLabelValues(string(e.EventType), string(e.Severity)).Inc()
	s.log.Debug().
		Str("session_id", sess.ID.String()).
		Str("event_type", string(e.EventType)).
		Str("severity", string(e.Severity)).
		Msg("Monitor event queued")
	return e, nil
}

// SessionReport is an admin view of one session's proctoring history.
type SessionReport struct {
	Session       *model.ExamSession   `json:"session"`
	Events        []model.MonitorEvent `json:"events"`
	HighSeverity  int                  `json:"high_severity_count"`
	DraftsPending int                  `json:"drafts_pending"`
}

// SessionReport loads the session, its persisted events and its pending
// drafts concurrently. Drafts are best-effort.
func (s *MonitorService) SessionReport(ctx context.Context, sessionID uuid.UUID) (*SessionReport, error) {
	var (
		sess      *model.ExamSession
		events    []model.MonitorEvent
		drafts    map[string]string
		sessErr   error
		eventsErr error
		draftsErr error
		wg        sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		sess, sessErr = s.sessions.Get(ctx, sessionID)
	}()
	go func() {
		defer wg.Done()
		events, eventsErr = s.events.ListBySession(ctx, sessionID)
	}()
	go func() {
		defer wg.Done()
		drafts, draftsErr = s.cache.Drafts(ctx, sessionID)
	}()
	wg.Wait()

	if sessErr != nil {
		return nil, sessErr
	}
	if eventsErr != nil {
		return nil, fmt.Errorf("list monitor events: %w", eventsErr)
	}

	report := &SessionReport{Session: sess, Events: events}
	if report.Events == nil {
		report.Events = []model.MonitorEvent{}
	}
	for _, e := range report.Events {
		if e.Severity == model.SeverityHigh {
			report.HighSeverity++
		}
	}
	if draftsErr == nil {
		report.DraftsPending = len(drafts)
	}
	return report, nil
}

// Subscribe opens the live event stream of an exam. The caller must
// close the returned PubSub.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.cache.SubscribeMonitor(ctx, examID)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/examflow/examflow-backend/internal/model"
	"github.com/examflow/examflow-backend/internal/response"
	"github.com/examflow/examflow-backend/internal/service"
	ws "github.com/examflow/examflow-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const monitorKeepAlive = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the student session stream and the admin live monitor.
type WSHandler struct {
	assessmentService *service.AssessmentService
	sessionService    *service.SessionService
	monitorService    *service.MonitorService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	assessmentService *service.AssessmentService,
	sessionService *service.SessionService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		assessmentService: assessmentService,
		sessionService:    sessionService,
		monitorService:    monitorService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/student/sessions/:id/stream
// Upgrades to WebSocket for autosave and proctoring events.
func (h *WSHandler) SessionStream(c *gin.Context) {
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// The session is checked before the upgrade so that failures are plain HTTP.
	sess, err := h.sessionService.Active(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		case errors.Is(err, service.ErrSessionClosed):
			response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
		default:
			h.log.Error().Err(err).Msg("Failed to load session for stream")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", sess.ID.String()).
		Str("exam_id", sess.ExamID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx := c.Request.Context()
	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, wsLog, sess.ID, data)
		case ws.ActionEvent:
			h.handleEvent(ctx, conn, wsLog, sess.ID, data)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(env.Action))
		}
	}
}

// handleAutosave stores one draft answer in Redis.
func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, sessionID uuid.UUID, data []byte) {
	var msg ws.AutosaveRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		ws.WriteError(conn, "malformed autosave")
		return
	}
	if msg.QID == "" {
		ws.WriteError(conn, "q_id is required")
		return
	}

	if err := h.sessionService.SaveDraft(ctx, sessionID, msg.QID, msg.Answer); err != nil {
		wsLog.Error().Err(err).Str("q_id", msg.QID).Msg("Autosave failed")
		ws.WriteError(conn, "save failed")
		return
	}
	ws.WriteSuccess(conn, ws.ActionAutosave)
}

// handleEvent records a proctoring signal raised by the exam client.
func (h *WSHandler) handleEvent(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, sessionID uuid.UUID, data []byte) {
	var msg ws.MonitorEventRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		ws.WriteError(conn, "malformed event")
		return
	}

	req := &model.MonitorEventRequest{
		EventType: model.MonitorEventType(msg.EventType),
		Severity:  model.Severity(msg.Severity),
		Details:   msg.Details,
	}
	if !validEventType(req.EventType) {
		ws.WriteError(conn, "unknown event_type: "+msg.EventType)
		return
	}
	if !validSeverity(req.Severity) {
		ws.WriteError(conn, "unknown severity: "+msg.Severity)
		return
	}

	if _, err := h.monitorService.Record(ctx, sessionID, req); err != nil {
		if errors.Is(err, service.ErrSessionClosed) {
			ws.WriteError(conn, "session is no longer in progress")
			return
		}
		wsLog.Error().Err(err).Msg("Failed to record monitor event")
		ws.WriteError(conn, "event failed")
		return
	}
	ws.WriteSuccess(conn, ws.ActionEvent)
}

// MonitorStream godoc
// WS /ws/admin/exams/:id/monitor
// Forwards every proctoring event of an exam to the admin console live.
func (h *WSHandler) MonitorStream(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.assessmentService.Get(c.Request.Context(), examID); err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to load exam for monitor")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.monitorService.Subscribe(ctx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	monLog := h.log.With().Str("exam_id", examID.String()).Logger()
	monLog.Info().Msg("Admin attached to live monitor")

	// The admin never sends anything meaningful; reading only detects close.
	go func() {
		defer cancel()
		for {
			if _, err := ws.ReadMessage(conn); err != nil {
				return
			}
		}
	}()

	keepAlive := time.NewTicker(monitorKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			monLog.Info().Msg("Admin detached from live monitor")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			err := ws.WriteTyped(conn, ws.MonitorBroadcast{
				Event: ws.EventMonitor,
				Data:  json.RawMessage(msg.Payload),
			})
			if err != nil {
				return
			}
		case <-keepAlive.C:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		}
	}
}

func validEventType(t model.MonitorEventType) bool {
	switch t {
	case model.MonitorEventTabSwitch, model.MonitorEventWindowBlur, model.MonitorEventCopyPaste,
		model.MonitorEventFullscreenExit, model.MonitorEventFaceNotDetected,
		model.MonitorEventMultipleFaces, model.MonitorEventOther:
		return true
	}
	return false
}

func validSeverity(s model.Severity) bool {
	switch s {
	case "", model.SeverityLow, model.SeverityMedium, model.SeverityHigh:
		return true
	}
	return false
}

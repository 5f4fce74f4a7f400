package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MonitorEventType enumerates proctoring signals raised by the exam client.
type MonitorEventType string

const (
	MonitorEventTabSwitch       MonitorEventType = "tab_switch"
	MonitorEventWindowBlur      MonitorEventType = "window_blur"
	MonitorEventCopyPaste       MonitorEventType = "copy_paste"
	MonitorEventFullscreenExit  MonitorEventType = "fullscreen_exit"
	MonitorEventFaceNotDetected MonitorEventType = "face_not_detected"
	MonitorEventMultipleFaces   MonitorEventType = "multiple_faces"
	MonitorEventOther           MonitorEventType = "other"
)

// Severity grades how suspicious a monitoring event is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// MonitorEvent is a persisted proctoring signal for one session.
type MonitorEvent struct {
	ID         int64            `json:"id" db:"id"`
	SessionID  uuid.UUID        `json:"session_id" db:"session_id"`
	ExamID     uuid.UUID        `json:"exam_id" db:"exam_id"`
	EventType  MonitorEventType `json:"event_type" db:"event_type"`
	Severity   Severity         `json:"severity" db:"severity"`
	Details    json.RawMessage  `json:"details,omitempty" db:"details"`
	OccurredAt time.Time        `json:"occurred_at" db:"occurred_at"`
}

// MonitorEventRequest is the payload for POST /student/sessions/:id/events.
type MonitorEventRequest struct {
	EventType MonitorEventType `json:"event_type" binding:"required,oneof=tab_switch window_blur copy_paste fullscreen_exit face_not_detected multiple_faces other"`
	Severity  Severity         `json:"severity" binding:"omitempty,oneof=low medium high"`
	Details   json.RawMessage  `json:"details"`
}

package domain

import "time"

// EventType identifies a lifecycle event emitted by one of the engines.
type EventType string

const (
	EventSessionStarted    EventType = "session_started"
	EventSessionStopped    EventType = "session_stopped"
	EventSessionPaused     EventType = "session_paused"
	EventSessionResumed    EventType = "session_resumed"
	EventStepCaptured      EventType = "step_captured"
	EventStepDeleted       EventType = "step_deleted"
	EventError             EventType = "error"
	EventErrorOccurred     EventType = "error_occurred"
	EventRetryAttempted    EventType = "retry_attempted"
	EventExecutionRecorded EventType = "execution_recorded"
	EventMetricsReset      EventType = "metrics_reset"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

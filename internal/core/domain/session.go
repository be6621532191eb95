package domain

import "time"

// SessionState represents the lifecycle state of a recording session.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateStarting  SessionState = "starting"
	SessionStateRecording SessionState = "recording"
	SessionStatePaused    SessionState = "paused"
	SessionStateStopping  SessionState = "stopping"
	SessionStateStopped   SessionState = "stopped"
)

// Session represents one active recording or replay context.
type Session struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	ContextID  string         `json:"context_id"`
	StartURL   string         `json:"start_url"`
	CurrentURL string         `json:"current_url"`
	Steps      []*Step        `json:"steps"`
	State      SessionState   `json:"state"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at,omitempty"`
	LastError  *ExecutionError `json:"last_error,omitempty"`
}

// SessionResult summarizes a finished session. Success is false when the
// session picked up an error on the way out, such as a failed final persist.
type SessionResult struct {
	SessionID string          `json:"session_id"`
	ProjectID string          `json:"project_id"`
	Success   bool            `json:"success"`
	Steps     []*Step         `json:"steps"`
	Duration  time.Duration   `json:"duration"`
	LastError *ExecutionError `json:"last_error,omitempty"`
}

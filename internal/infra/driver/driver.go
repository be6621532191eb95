// Package driver defines the narrow contract the engine uses to reach the
// page context being recorded or replayed.
package driver

import "context"

// Directive actions understood by the injected executor.
const (
	ActionRecordStart  = "record_start"
	ActionRecordStop   = "record_stop"
	ActionRecordPause  = "record_pause"
	ActionRecordResume = "record_resume"
	ActionExecuteStep  = "execute_step"
)

// Directive is one request sent to the executor inside a page context.
type Directive struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Response is the executor's reply. Drivers report failure through OK/Error
// rather than a Go error where possible; a Go error means the transport
// itself failed.
type Response struct {
	OK    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// ContextInfo describes a page context.
type ContextInfo struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// TabDriver injects an executor into a target page context and exchanges
// request/response pairs with it. Implementations may retry internally.
type TabDriver interface {
	// EnsureExecutor makes sure the executor script is present in the context,
	// injecting it if needed. Returns false when injection failed.
	EnsureExecutor(ctx context.Context, contextID string) (bool, error)

	// Send delivers a directive to the executor and waits for its response.
	Send(ctx context.Context, contextID string, d Directive) (*Response, error)

	// ContextInfo returns current metadata for the context.
	ContextInfo(ctx context.Context, contextID string) (*ContextInfo, error)
}

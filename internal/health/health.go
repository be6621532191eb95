// Package health provides system health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
)

// SystemStatus represents the overall health state of the system.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full system health report.
type Report struct {
	Status            SystemStatus        `json:"status"`
	SessionState      domain.SessionState `json:"session_state"`
	SessionActive     bool                `json:"session_active"`
	StepCount         int                 `json:"step_count"`
	TotalErrors       int                 `json:"total_errors"`
	FatalErrors       int                 `json:"fatal_errors"`
	RecentSuccessRate float64             `json:"recent_success_rate"`
	QueuedReplays     int64               `json:"queued_replays"`
	CheckedAt         time.Time           `json:"checked_at"`
}

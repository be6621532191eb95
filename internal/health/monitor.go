package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/webtape/internal/recovery"
	"github.com/vietddude/webtape/internal/session"
	"github.com/vietddude/webtape/internal/telemetry"
)

// recentWindow is how many step timings feed the recent success rate.
const recentWindow = 50

// QueueLenFunc reports the replay queue depth; nil when no queue is wired.
type QueueLenFunc func(ctx context.Context) (int64, error)

// Monitor aggregates health status from the engines.
type Monitor struct {
	orch     *session.Orchestrator
	errEng   *recovery.Engine
	tele     *telemetry.Engine
	queueLen QueueLenFunc

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a new health monitor.
func NewMonitor(orch *session.Orchestrator, errEng *recovery.Engine, tele *telemetry.Engine, queueLen QueueLenFunc) *Monitor {
	return &Monitor{
		orch:     orch,
		errEng:   errEng,
		tele:     tele,
		queueLen: queueLen,
	}
}

// Check builds a health report. Checks are rate limited to avoid hammering
// the queue backend from frequent probes.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 5*time.Second && !m.lastReport.CheckedAt.IsZero() {
		return m.lastReport
	}

	stats := m.errEng.Stats()
	report := Report{
		Status:            StatusHealthy,
		SessionState:      m.orch.State(),
		SessionActive:     m.orch.Session() != nil,
		StepCount:         m.orch.StepCount(),
		TotalErrors:       stats.Total,
		FatalErrors:       stats.Fatal,
		RecentSuccessRate: m.tele.RecentSuccessRate(recentWindow),
		CheckedAt:         time.Now(),
	}

	if m.queueLen != nil {
		if n, err := m.queueLen(ctx); err == nil {
			report.QueuedReplays = n
		} else {
			report.Status = StatusDegraded
		}
	}

	if stats.Fatal > 0 {
		report.Status = StatusCritical
	} else if report.Status == StatusHealthy && len(m.tele.StepTimings()) > 0 && report.RecentSuccessRate < 0.8 {
		report.Status = StatusDegraded
	}

	m.lastCheck = report.CheckedAt
	m.lastReport = report
	return report
}

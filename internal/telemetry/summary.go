package telemetry

import (
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
)

// LabelStats is the derived rollup for one step label.
type LabelStats struct {
	Label        string        `json:"label"`
	Executions   int           `json:"executions"`
	Passed       int           `json:"passed"`
	Failed       int           `json:"failed"`
	TotalRetries int           `json:"total_retries"`
	MeanDuration time.Duration `json:"mean_duration"`
	Durations    Stats         `json:"durations"`
}

// Summary is the full-history performance report.
type Summary struct {
	TotalExecutions    int                          `json:"total_executions"`
	SuccessRate        float64                      `json:"success_rate"`
	TotalSteps         int                          `json:"total_steps"`
	TotalRows          int                          `json:"total_rows"`
	ThroughputPerSec   float64                      `json:"throughput_per_sec"`
	StepStatsByEvent   map[domain.StepEvent]Stats   `json:"step_stats_by_event"`
	Labels             map[string]LabelStats        `json:"labels"`
	MostFailedStep     string                       `json:"most_failed_step,omitempty"`
	SlowestStep        string                       `json:"slowest_step,omitempty"`
	GeneratedAt        time.Time                    `json:"generated_at"`
}

// Summary derives the performance report from everything recorded so far.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{
		StepStatsByEvent: make(map[domain.StepEvent]Stats),
		Labels:           make(map[string]LabelStats),
		GeneratedAt:      time.Now(),
	}

	// Success rate and throughput over all recorded executions.
	execs := e.execs.All()
	s.TotalExecutions = len(execs)
	var succeeded, totalSteps int
	var totalActive time.Duration
	for _, x := range execs {
		if x.Success {
			succeeded++
		}
		totalSteps += x.StepsExecuted
		totalActive += x.ActiveDuration
	}
	if len(execs) > 0 {
		s.SuccessRate = float64(succeeded) / float64(len(execs))
	}
	if activeMs := totalActive.Milliseconds(); activeMs > 0 {
		s.ThroughputPerSec = float64(totalSteps) / float64(activeMs) * 1000
	}

	// Per-event statistics over the step ring.
	byEvent := make(map[domain.StepEvent][]float64)
	steps := e.steps.All()
	s.TotalSteps = len(steps)
	for _, t := range steps {
		byEvent[t.Event] = append(byEvent[t.Event], float64(t.Duration.Milliseconds()))
	}
	for event, samples := range byEvent {
		s.StepStatsByEvent[event] = Calculate(samples)
	}

	s.TotalRows = e.rows.Len()

	// Per-label rollups plus most-failed / slowest picks.
	var worstFails int
	var slowestMean time.Duration
	for label, agg := range e.byLabel {
		ls := LabelStats{
			Label:        label,
			Executions:   agg.Executions,
			Passed:       agg.Passed,
			Failed:       agg.Failed,
			TotalRetries: agg.TotalRetries,
			Durations:    Calculate(agg.Durations),
		}
		if agg.Executions > 0 {
			ls.MeanDuration = agg.TotalDuration / time.Duration(agg.Executions)
		}
		s.Labels[label] = ls

		if agg.Failed > 0 && agg.Failed > worstFails {
			worstFails = agg.Failed
			s.MostFailedStep = label
		}
		if ls.MeanDuration > slowestMean {
			slowestMean = ls.MeanDuration
			s.SlowestStep = label
		}
	}

	return s
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StepsCaptured tracks steps captured during recording sessions
	StepsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtape_steps_captured_total",
			Help: "Total number of steps captured",
		},
		[]string{"event"},
	)

	// StepsReplayed tracks replayed step attempts by event kind and result
	StepsReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtape_steps_replayed_total",
			Help: "Total number of replayed step attempts",
		},
		[]string{"event", "result"},
	)

	// StepDuration tracks replayed step latency
	StepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webtape_step_duration_seconds",
			Help:    "Replayed step duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ExecutionsTotal tracks completed replay executions by result
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtape_executions_total",
			Help: "Total number of completed replay executions",
		},
		[]string{"result"},
	)

	// ExecutionDuration tracks wall-clock replay execution duration
	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webtape_execution_duration_seconds",
			Help:    "Replay execution duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// ErrorsTotal tracks classified failures by category and severity
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtape_errors_total",
			Help: "Total number of classified step failures",
		},
		[]string{"category", "severity"},
	)

	// RetriesTotal tracks retry attempts by category
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtape_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"category"},
	)

	// ActiveSessions tracks whether a recording session is active
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webtape_active_sessions",
			Help: "Number of active recording sessions",
		},
	)

	// AutoSavesTotal tracks auto-save attempts by result
	AutoSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webtape_autosaves_total",
			Help: "Total number of auto-save attempts",
		},
		[]string{"result"},
	)
)

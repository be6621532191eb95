// Package telemetry tracks step, row and execution timing in bounded ring
// buffers and derives performance summaries on demand.
package telemetry

import (
	"sync"
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/events"
	"github.com/vietddude/webtape/internal/metrics"
)

// Config controls buffer capacities and the per-label duration cap.
type Config struct {
	StepHistorySize      int  `yaml:"step_history_size"`
	RowHistorySize       int  `yaml:"row_history_size"`
	ExecutionHistorySize int  `yaml:"execution_history_size"`
	MaxDurationsPerLabel int  `yaml:"max_durations_per_label"`
	Disabled             bool `yaml:"disabled"`
}

// DefaultConfig returns the capacities used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		StepHistorySize:      1000,
		RowHistorySize:       500,
		ExecutionHistorySize: 200,
		MaxDurationsPerLabel: 1000,
	}
}

// labelAggregate is the running per-label rollup. Raw durations are capped so
// long-running or high-cardinality label sets cannot grow without bound.
type labelAggregate struct {
	Executions    int
	Passed        int
	Failed        int
	TotalDuration time.Duration
	TotalRetries  int
	Durations     []float64 // milliseconds, capped at MaxDurationsPerLabel
}

// inflightExecution tracks the execution currently being timed.
type inflightExecution struct {
	id          string
	projectID   string
	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	paused      bool
}

// Engine records timings into ring buffers and maintains per-label aggregates.
// All methods are safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	enabled  bool
	steps    *Ring[domain.StepTiming]
	rows     *Ring[domain.RowTiming]
	execs    *Ring[domain.ExecutionTiming]
	byLabel  map[string]*labelAggregate
	inflight *inflightExecution
	bus      *events.Bus
}

// NewEngine creates a telemetry engine. A nil bus disables event emission.
func NewEngine(cfg Config, bus *events.Bus) *Engine {
	def := DefaultConfig()
	if cfg.StepHistorySize <= 0 {
		cfg.StepHistorySize = def.StepHistorySize
	}
	if cfg.RowHistorySize <= 0 {
		cfg.RowHistorySize = def.RowHistorySize
	}
	if cfg.ExecutionHistorySize <= 0 {
		cfg.ExecutionHistorySize = def.ExecutionHistorySize
	}
	if cfg.MaxDurationsPerLabel <= 0 {
		cfg.MaxDurationsPerLabel = def.MaxDurationsPerLabel
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Engine{
		cfg:     cfg,
		enabled: !cfg.Disabled,
		steps:   NewRing[domain.StepTiming](cfg.StepHistorySize),
		rows:    NewRing[domain.RowTiming](cfg.RowHistorySize),
		execs:   NewRing[domain.ExecutionTiming](cfg.ExecutionHistorySize),
		byLabel: make(map[string]*labelAggregate),
		bus:     bus,
	}
}

// Subscribe registers an event subscriber and returns its unsubscribe func.
func (e *Engine) Subscribe(fn events.Subscriber) func() {
	return e.bus.Subscribe(fn)
}

// SetEnabled toggles recording. Disabling leaves existing buffers untouched.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Enabled reports whether recording is active.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// StartExecution begins timing a replay execution and resets the pause
// accumulator. A previous in-flight execution is discarded.
func (e *Engine) StartExecution(id, projectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return
	}
	e.inflight = &inflightExecution{
		id:        id,
		projectID: projectID,
		startedAt: time.Now(),
	}
}

// RecordPauseStart marks the beginning of a paused interval. No-op if no
// execution is in flight or one is already paused.
func (e *Engine) RecordPauseStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled || e.inflight == nil || e.inflight.paused {
		return
	}
	e.inflight.paused = true
	e.inflight.pausedAt = time.Now()
}

// RecordPauseEnd folds the elapsed paused interval into the accumulator.
// No-op when called out of order.
func (e *Engine) RecordPauseEnd() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled || e.inflight == nil || !e.inflight.paused {
		return
	}
	e.inflight.pausedTotal += time.Since(e.inflight.pausedAt)
	e.inflight.paused = false
}

// EndExecution completes the in-flight execution, pushes its timing record and
// returns it. Returns nil if no execution was in flight.
func (e *Engine) EndExecution(projectID string, result domain.ExecutionResult) *domain.ExecutionTiming {
	e.mu.Lock()
	if !e.enabled || e.inflight == nil {
		e.mu.Unlock()
		return nil
	}

	in := e.inflight
	e.inflight = nil

	// Close a dangling pause so active duration stays consistent.
	if in.paused {
		in.pausedTotal += time.Since(in.pausedAt)
	}

	now := time.Now()
	duration := now.Sub(in.startedAt)
	timing := domain.ExecutionTiming{
		ID:             in.id,
		ProjectID:      projectID,
		Duration:       duration,
		ActiveDuration: duration - in.pausedTotal,
		StepsExecuted:  result.StepsExecuted,
		RowsProcessed:  result.RowsProcessed,
		Success:        result.Success,
		StartedAt:      in.startedAt,
		EndedAt:        now,
	}
	e.execs.Push(timing)
	e.mu.Unlock()

	metrics.ExecutionsTotal.WithLabelValues(resultLabel(result.Success)).Inc()
	metrics.ExecutionDuration.Observe(duration.Seconds())

	e.bus.Publish(domain.Event{
		Type: domain.EventExecutionRecorded,
		Data: map[string]any{
			"execution_id": timing.ID,
			"project_id":   timing.ProjectID,
			"success":      timing.Success,
			"duration_ms":  timing.Duration.Milliseconds(),
		},
	})
	return &timing
}

// RecordStep pushes a step timing and updates the per-label aggregate.
func (e *Engine) RecordStep(t domain.StepTiming) {
	e.mu.Lock()
	if !e.enabled {
		e.mu.Unlock()
		return
	}
	if t.RecordedAt.IsZero() {
		t.RecordedAt = time.Now()
	}
	e.steps.Push(t)

	agg, ok := e.byLabel[t.Label]
	if !ok {
		agg = &labelAggregate{}
		e.byLabel[t.Label] = agg
	}
	agg.Executions++
	if t.Success {
		agg.Passed++
	} else {
		agg.Failed++
	}
	agg.TotalDuration += t.Duration
	agg.TotalRetries += t.RetryCount
	if len(agg.Durations) < e.cfg.MaxDurationsPerLabel {
		agg.Durations = append(agg.Durations, float64(t.Duration.Milliseconds()))
	}
	e.mu.Unlock()

	metrics.StepsReplayed.WithLabelValues(string(t.Event), resultLabel(t.Success)).Inc()
	metrics.StepDuration.Observe(t.Duration.Seconds())
}

// RecordRow pushes a row timing.
func (e *Engine) RecordRow(t domain.RowTiming) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return
	}
	if t.RecordedAt.IsZero() {
		t.RecordedAt = time.Now()
	}
	e.rows.Push(t)
}

// StepTimings returns the recorded step timings, oldest first.
func (e *Engine) StepTimings() []domain.StepTiming {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps.All()
}

// RowTimings returns the recorded row timings, oldest first.
func (e *Engine) RowTimings() []domain.RowTiming {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rows.All()
}

// ExecutionTimings returns the recorded execution timings, oldest first.
func (e *Engine) ExecutionTimings() []domain.ExecutionTiming {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execs.All()
}

// RecentSuccessRate returns the pass ratio over the last n step timings,
// independent of the full-history summary. Returns 0 with no samples.
func (e *Engine) RecentSuccessRate(n int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	recent := e.steps.Last(n)
	if len(recent) == 0 {
		return 0
	}
	passed := 0
	for _, t := range recent {
		if t.Success {
			passed++
		}
	}
	return float64(passed) / float64(len(recent))
}

// RecentAverageStepDuration returns the mean duration over the last n step
// timings. Returns 0 with no samples.
func (e *Engine) RecentAverageStepDuration(n int) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	recent := e.steps.Last(n)
	if len(recent) == 0 {
		return 0
	}
	var total time.Duration
	for _, t := range recent {
		total += t.Duration
	}
	return total / time.Duration(len(recent))
}

// Reset clears all buffers, the aggregate map and any in-flight execution.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.steps.Reset()
	e.rows.Reset()
	e.execs.Reset()
	e.byLabel = make(map[string]*labelAggregate)
	e.inflight = nil
	e.mu.Unlock()

	e.bus.Publish(domain.Event{Type: domain.EventMetricsReset})
}

func resultLabel(success bool) string {
	if success {
		return "pass"
	}
	return "fail"
}

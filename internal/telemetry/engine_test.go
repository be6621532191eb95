package telemetry

import (
	"testing"
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/events"
)

func newTestEngine(cfg Config) *Engine {
	return NewEngine(cfg, events.NewBus())
}

// =============================================================================
// Execution Timing
// =============================================================================

func TestEngine_ExecutionLifecycle(t *testing.T) {
	e := newTestEngine(Config{})

	e.StartExecution("exec-1", "proj-1")
	timing := e.EndExecution("proj-1", domain.ExecutionResult{
		StepsExecuted: 4,
		RowsProcessed: 2,
		Success:       true,
	})

	if timing == nil {
		t.Fatal("expected a timing record")
	}
	if timing.ID != "exec-1" || timing.ProjectID != "proj-1" {
		t.Errorf("timing identity = %s/%s, want exec-1/proj-1", timing.ID, timing.ProjectID)
	}
	if timing.StepsExecuted != 4 || timing.RowsProcessed != 2 || !timing.Success {
		t.Errorf("result fields not carried over: %+v", timing)
	}
	if timing.ActiveDuration > timing.Duration {
		t.Errorf("active duration %v exceeds total %v", timing.ActiveDuration, timing.Duration)
	}

	if got := e.ExecutionTimings(); len(got) != 1 {
		t.Errorf("expected 1 stored execution, got %d", len(got))
	}
}

func TestEngine_EndExecutionWithoutStart(t *testing.T) {
	e := newTestEngine(Config{})
	if timing := e.EndExecution("proj-1", domain.ExecutionResult{}); timing != nil {
		t.Errorf("expected nil timing, got %+v", timing)
	}
}

func TestEngine_PauseExcludedFromActiveDuration(t *testing.T) {
	e := newTestEngine(Config{})

	e.StartExecution("exec-1", "proj-1")
	e.RecordPauseStart()
	time.Sleep(30 * time.Millisecond)
	e.RecordPauseEnd()
	timing := e.EndExecution("proj-1", domain.ExecutionResult{Success: true})

	if timing == nil {
		t.Fatal("expected a timing record")
	}
	paused := timing.Duration - timing.ActiveDuration
	if paused < 20*time.Millisecond {
		t.Errorf("paused time %v, want at least 20ms", paused)
	}
}

func TestEngine_DanglingPauseClosedAtEnd(t *testing.T) {
	e := newTestEngine(Config{})

	e.StartExecution("exec-1", "proj-1")
	e.RecordPauseStart()
	time.Sleep(20 * time.Millisecond)
	// No RecordPauseEnd: EndExecution must fold the open interval in.
	timing := e.EndExecution("proj-1", domain.ExecutionResult{})

	if timing == nil {
		t.Fatal("expected a timing record")
	}
	if timing.ActiveDuration >= timing.Duration {
		t.Errorf("dangling pause not folded in: active %v, total %v",
			timing.ActiveDuration, timing.Duration)
	}
}

func TestEngine_PauseOutOfOrderIsNoop(t *testing.T) {
	e := newTestEngine(Config{})

	// No execution in flight.
	e.RecordPauseStart()
	e.RecordPauseEnd()

	e.StartExecution("exec-1", "proj-1")
	e.RecordPauseEnd() // end before start
	timing := e.EndExecution("proj-1", domain.ExecutionResult{})

	if timing == nil {
		t.Fatal("expected a timing record")
	}
	if timing.ActiveDuration != timing.Duration {
		t.Errorf("out-of-order pause calls changed active duration: %v vs %v",
			timing.ActiveDuration, timing.Duration)
	}
}

// =============================================================================
// Step and Row Recording
// =============================================================================

func TestEngine_RecordStepAggregates(t *testing.T) {
	e := newTestEngine(Config{})

	for i := 0; i < 3; i++ {
		e.RecordStep(domain.StepTiming{
			Label:    "click submit",
			Event:    domain.StepEventClick,
			Duration: 10 * time.Millisecond,
			Success:  true,
		})
	}
	e.RecordStep(domain.StepTiming{
		Label:      "click submit",
		Event:      domain.StepEventClick,
		Duration:   50 * time.Millisecond,
		Success:    false,
		RetryCount: 2,
	})

	s := e.Summary()
	ls, ok := s.Labels["click submit"]
	if !ok {
		t.Fatal("expected label stats for 'click submit'")
	}
	if ls.Executions != 4 || ls.Passed != 3 || ls.Failed != 1 {
		t.Errorf("executions/passed/failed = %d/%d/%d, want 4/3/1",
			ls.Executions, ls.Passed, ls.Failed)
	}
	if ls.TotalRetries != 2 {
		t.Errorf("TotalRetries = %d, want 2", ls.TotalRetries)
	}
	if ls.MeanDuration != 20*time.Millisecond {
		t.Errorf("MeanDuration = %v, want 20ms", ls.MeanDuration)
	}
	if s.MostFailedStep != "click submit" {
		t.Errorf("MostFailedStep = %q, want 'click submit'", s.MostFailedStep)
	}

	ev, ok := s.StepStatsByEvent[domain.StepEventClick]
	if !ok || ev.Count != 4 {
		t.Errorf("event stats count = %d, want 4", ev.Count)
	}
}

func TestEngine_PerLabelDurationCap(t *testing.T) {
	e := newTestEngine(Config{MaxDurationsPerLabel: 2})

	for i := 0; i < 5; i++ {
		e.RecordStep(domain.StepTiming{
			Label:    "input email",
			Event:    domain.StepEventInput,
			Duration: 5 * time.Millisecond,
			Success:  true,
		})
	}

	ls := e.Summary().Labels["input email"]
	if ls.Executions != 5 {
		t.Errorf("Executions = %d, want 5", ls.Executions)
	}
	if ls.Durations.Count != 2 {
		t.Errorf("raw duration samples = %d, want cap of 2", ls.Durations.Count)
	}
}

func TestEngine_StepHistoryBounded(t *testing.T) {
	e := newTestEngine(Config{StepHistorySize: 3})

	for i := 0; i < 10; i++ {
		e.RecordStep(domain.StepTiming{StepIndex: i, Label: "x", Success: true})
	}

	got := e.StepTimings()
	if len(got) != 3 {
		t.Fatalf("expected 3 retained timings, got %d", len(got))
	}
	if got[0].StepIndex != 7 || got[2].StepIndex != 9 {
		t.Errorf("retained wrong window: first=%d last=%d, want 7/9",
			got[0].StepIndex, got[2].StepIndex)
	}
}

func TestEngine_SlowestStep(t *testing.T) {
	e := newTestEngine(Config{})

	e.RecordStep(domain.StepTiming{Label: "fast", Duration: time.Millisecond, Success: true})
	e.RecordStep(domain.StepTiming{Label: "slow", Duration: time.Second, Success: true})

	if s := e.Summary(); s.SlowestStep != "slow" {
		t.Errorf("SlowestStep = %q, want 'slow'", s.SlowestStep)
	}
}

// =============================================================================
// Recency Helpers
// =============================================================================

func TestEngine_RecentSuccessRate(t *testing.T) {
	e := newTestEngine(Config{})

	if rate := e.RecentSuccessRate(10); rate != 0 {
		t.Errorf("empty engine rate = %v, want 0", rate)
	}

	for i := 0; i < 6; i++ {
		e.RecordStep(domain.StepTiming{Label: "x", Success: true})
	}
	for i := 0; i < 2; i++ {
		e.RecordStep(domain.StepTiming{Label: "x", Success: false})
	}

	// Last 4: two passes, two failures.
	if rate := e.RecentSuccessRate(4); rate != 0.5 {
		t.Errorf("RecentSuccessRate(4) = %v, want 0.5", rate)
	}
	if rate := e.RecentSuccessRate(100); rate != 0.75 {
		t.Errorf("RecentSuccessRate(100) = %v, want 0.75", rate)
	}
}

func TestEngine_RecentAverageStepDuration(t *testing.T) {
	e := newTestEngine(Config{})

	e.RecordStep(domain.StepTiming{Label: "x", Duration: 10 * time.Millisecond, Success: true})
	e.RecordStep(domain.StepTiming{Label: "x", Duration: 30 * time.Millisecond, Success: true})

	if avg := e.RecentAverageStepDuration(2); avg != 20*time.Millisecond {
		t.Errorf("avg = %v, want 20ms", avg)
	}
	if avg := e.RecentAverageStepDuration(5); avg != 20*time.Millisecond {
		t.Errorf("avg over all = %v, want 20ms", avg)
	}
}

// =============================================================================
// Enable / Disable / Reset
// =============================================================================

func TestEngine_DisabledIsNoop(t *testing.T) {
	e := newTestEngine(Config{Disabled: true})

	e.StartExecution("exec-1", "proj-1")
	e.RecordStep(domain.StepTiming{Label: "x", Success: true})
	e.RecordRow(domain.RowTiming{RowIndex: 0})
	timing := e.EndExecution("proj-1", domain.ExecutionResult{})

	if timing != nil {
		t.Error("disabled engine recorded an execution")
	}
	if len(e.StepTimings()) != 0 || len(e.RowTimings()) != 0 {
		t.Error("disabled engine recorded timings")
	}
}

func TestEngine_SetEnabled(t *testing.T) {
	e := newTestEngine(Config{Disabled: true})

	e.SetEnabled(true)
	if !e.Enabled() {
		t.Fatal("expected engine enabled")
	}
	e.RecordStep(domain.StepTiming{Label: "x", Success: true})
	if len(e.StepTimings()) != 1 {
		t.Error("re-enabled engine dropped a timing")
	}

	// Disabling keeps what was already recorded.
	e.SetEnabled(false)
	e.RecordStep(domain.StepTiming{Label: "x", Success: true})
	if len(e.StepTimings()) != 1 {
		t.Error("disable should stop recording without clearing history")
	}
}

func TestEngine_Reset(t *testing.T) {
	bus := events.NewBus()
	e := NewEngine(Config{}, bus)

	var resetSeen bool
	bus.Subscribe(func(evt domain.Event) {
		if evt.Type == domain.EventMetricsReset {
			resetSeen = true
		}
	})

	e.RecordStep(domain.StepTiming{Label: "x", Success: true})
	e.StartExecution("exec-1", "proj-1")
	e.Reset()

	if len(e.StepTimings()) != 0 {
		t.Error("reset left step timings behind")
	}
	if len(e.Summary().Labels) != 0 {
		t.Error("reset left label aggregates behind")
	}
	if timing := e.EndExecution("proj-1", domain.ExecutionResult{}); timing != nil {
		t.Error("reset should discard the in-flight execution")
	}
	if !resetSeen {
		t.Error("reset did not publish a metrics_reset event")
	}
}

// =============================================================================
// Summary Rollups
// =============================================================================

func TestEngine_SummarySuccessRateAndThroughput(t *testing.T) {
	e := newTestEngine(Config{})

	e.StartExecution("exec-1", "proj-1")
	e.EndExecution("proj-1", domain.ExecutionResult{StepsExecuted: 5, Success: true})
	e.StartExecution("exec-2", "proj-1")
	e.EndExecution("proj-1", domain.ExecutionResult{StepsExecuted: 5, Success: false})

	s := e.Summary()
	if s.TotalExecutions != 2 {
		t.Errorf("TotalExecutions = %d, want 2", s.TotalExecutions)
	}
	if s.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", s.SuccessRate)
	}
}

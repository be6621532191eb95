package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/events"
	"github.com/vietddude/webtape/internal/infra/driver"
	"github.com/vietddude/webtape/internal/recovery"
	"github.com/vietddude/webtape/internal/telemetry"
)

// =============================================================================
// Mock Driver
// =============================================================================

// scriptedDriver fails steps according to a script keyed by locator. Each
// entry is the number of failures before the step starts passing; a negative
// count fails forever.
type scriptedDriver struct {
	mu          sync.Mutex
	failures    map[string]int
	failMsg     map[string]string
	injectOK    bool
	injectCalls int
	executed    []string // locators in dispatch order
	onSend      func(locator string)
}

func newScriptedDriver() *scriptedDriver {
	return &scriptedDriver{
		failures: make(map[string]int),
		failMsg:  make(map[string]string),
		injectOK: true,
	}
}

func (d *scriptedDriver) failFor(locator, msg string, times int) {
	d.failures[locator] = times
	d.failMsg[locator] = msg
}

func (d *scriptedDriver) EnsureExecutor(ctx context.Context, contextID string) (bool, error) {
	d.mu.Lock()
	d.injectCalls++
	d.mu.Unlock()
	return d.injectOK, nil
}

func (d *scriptedDriver) Send(ctx context.Context, contextID string, dir driver.Directive) (*driver.Response, error) {
	d.mu.Lock()
	locator, _ := dir.Payload["locator"].(string)
	d.executed = append(d.executed, locator)
	hook := d.onSend
	n := d.failures[locator]
	if n > 0 {
		d.failures[locator] = n - 1
	}
	msg := d.failMsg[locator]
	d.mu.Unlock()

	if hook != nil {
		hook(locator)
	}
	if n != 0 {
		return &driver.Response{OK: false, Error: msg}, nil
	}
	return &driver.Response{OK: true}, nil
}

func (d *scriptedDriver) ContextInfo(ctx context.Context, contextID string) (*driver.ContextInfo, error) {
	return &driver.ContextInfo{URL: "https://example.com"}, nil
}

func (d *scriptedDriver) injectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.injectCalls
}

func (d *scriptedDriver) dispatchCount(locator string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, l := range d.executed {
		if l == locator {
			n++
		}
	}
	return n
}

// =============================================================================
// Fixtures
// =============================================================================

func testProject() *domain.Project {
	return &domain.Project{
		ID:       "proj-1",
		Name:     "signup",
		StartURL: "https://example.com",
		Steps: []*domain.Step{
			{ID: "s0", Event: domain.StepEventOpen, Value: "https://example.com", Label: "open home"},
			{ID: "s1", Event: domain.StepEventInput, Locator: "#email", Value: "{{email}}", Label: "input email"},
			{ID: "s2", Event: domain.StepEventClick, Locator: "#submit", Label: "click submit"},
		},
	}
}

func newTestRunner(drv driver.TabDriver, recCfg recovery.Config) (*Runner, *recovery.Engine, *telemetry.Engine) {
	bus := events.NewBus()
	errEng := recovery.NewEngine(recCfg, bus)
	tele := telemetry.NewEngine(telemetry.Config{}, bus)
	runner := NewRunner(Config{RetryDelay: time.Millisecond}, drv, errEng, tele)
	return runner, errEng, tele
}

// =============================================================================
// Runs
// =============================================================================

func TestRunner_AllStepsPass(t *testing.T) {
	drv := newScriptedDriver()
	runner, _, tele := newTestRunner(drv, recovery.Config{})

	report, err := runner.Run(context.Background(), testProject(), "tab-1", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Success || report.Aborted {
		t.Errorf("report = %+v, want clean success", report)
	}
	if report.StepsPassed != 3 || report.StepsFailed != 0 {
		t.Errorf("passed/failed = %d/%d, want 3/0", report.StepsPassed, report.StepsFailed)
	}
	if report.RowsTotal != 1 || report.RowsPassed != 1 {
		t.Errorf("rows = %d/%d, want 1/1", report.RowsPassed, report.RowsTotal)
	}

	if got := len(tele.StepTimings()); got != 3 {
		t.Errorf("telemetry recorded %d steps, want 3", got)
	}
	if got := len(tele.ExecutionTimings()); got != 1 {
		t.Errorf("telemetry recorded %d executions, want 1", got)
	}
}

func TestRunner_RetryThenPass(t *testing.T) {
	drv := newScriptedDriver()
	drv.failFor("#submit", "operation timed out", 1)
	runner, _, tele := newTestRunner(drv, recovery.Config{MaxRetries: 2})

	report, err := runner.Run(context.Background(), testProject(), "tab-1", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// One failed attempt, then the retry passes.
	if drv.dispatchCount("#submit") != 2 {
		t.Errorf("submit dispatched %d times, want 2", drv.dispatchCount("#submit"))
	}
	if report.StepsPassed != 3 {
		t.Errorf("StepsPassed = %d, want 3", report.StepsPassed)
	}
	// Both attempts show up in telemetry.
	if got := len(tele.StepTimings()); got != 4 {
		t.Errorf("telemetry recorded %d step attempts, want 4", got)
	}
}

func TestRunner_RetryBudgetExhausted(t *testing.T) {
	drv := newScriptedDriver()
	drv.failFor("#submit", "operation timed out", -1)
	runner, _, _ := newTestRunner(drv, recovery.Config{MaxRetries: 2})

	report, err := runner.Run(context.Background(), testProject(), "tab-1", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Initial attempt plus two retries, then the engine says continue.
	if drv.dispatchCount("#submit") != 3 {
		t.Errorf("submit dispatched %d times, want 3", drv.dispatchCount("#submit"))
	}
	if report.Success {
		t.Error("run with a failed step must not be successful")
	}
	if report.StepsFailed != 1 || report.Aborted {
		t.Errorf("report = %+v, want 1 failure without abort", report)
	}
}

func TestRunner_AbortStopsRun(t *testing.T) {
	drv := newScriptedDriver()
	drv.failFor("#email", "navigation failed", -1)
	runner, _, _ := newTestRunner(drv, recovery.Config{})

	report, err := runner.Run(context.Background(), testProject(), "tab-1", nil)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if !report.Aborted || report.Success {
		t.Errorf("report = %+v, want aborted", report)
	}
	// The step after the aborting one never ran.
	if drv.dispatchCount("#submit") != 0 {
		t.Error("abort must stop the row immediately")
	}
	if report.LastError == nil || report.LastError.Category != domain.CategoryNavigation {
		t.Errorf("LastError = %+v, want navigation", report.LastError)
	}
}

func TestRunner_SkipAbandonsRestOfRow(t *testing.T) {
	drv := newScriptedDriver()
	drv.failFor("#email", "invalid input for email", -1)
	runner, _, _ := newTestRunner(drv, recovery.Config{})

	rows := []map[string]string{
		{"email": "bad"},
		{"email": "good@example.com"},
	}
	report, err := runner.Run(context.Background(), testProject(), "tab-1", rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Aborted {
		t.Fatal("skip must not abort the run")
	}
	// Each row skips #submit after #email fails validation.
	if report.StepsSkipped != 2 {
		t.Errorf("StepsSkipped = %d, want 2", report.StepsSkipped)
	}
	if drv.dispatchCount("#submit") != 0 {
		t.Error("skipped steps must not be dispatched")
	}
	if report.RowsPassed != 0 {
		t.Errorf("RowsPassed = %d, want 0", report.RowsPassed)
	}
}

func TestRunner_SetupFailureReported(t *testing.T) {
	drv := newScriptedDriver()
	drv.injectOK = false
	runner, errEng, _ := newTestRunner(drv, recovery.Config{})

	_, err := runner.Run(context.Background(), testProject(), "tab-1", nil)
	if err == nil {
		t.Fatal("expected setup failure")
	}
	if len(errEng.Errors()) != 1 {
		t.Errorf("setup failure not routed through the error engine")
	}
}

func TestRunner_MultipleRows(t *testing.T) {
	drv := newScriptedDriver()
	runner, _, tele := newTestRunner(drv, recovery.Config{})

	rows := []map[string]string{
		{"email": "a@example.com"},
		{"email": "b@example.com"},
		{"email": "c@example.com"},
	}
	report, err := runner.Run(context.Background(), testProject(), "tab-1", rows)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.RowsTotal != 3 || report.RowsPassed != 3 {
		t.Errorf("rows = %d/%d, want 3/3", report.RowsPassed, report.RowsTotal)
	}
	if report.StepsPassed != 9 {
		t.Errorf("StepsPassed = %d, want 9", report.StepsPassed)
	}
	if got := len(tele.RowTimings()); got != 3 {
		t.Errorf("telemetry recorded %d rows, want 3", got)
	}
}

func TestRunner_RecoveryStrategyReinjects(t *testing.T) {
	drv := newScriptedDriver()
	drv.failFor("#email", "element not found", 1)
	runner, errEng, _ := newTestRunner(drv, recovery.Config{})

	var gotContext string
	errEng.RegisterStrategy(domain.CategoryElementNotFound, "reinject_executor",
		func(ctx context.Context, _ *domain.ExecutionError, ec recovery.ErrorContext) error {
			gotContext, _ = ec.Data["context_id"].(string)
			if gotContext == "" {
				return errors.New("no context id in error context")
			}
			ok, err := drv.EnsureExecutor(ctx, gotContext)
			if err != nil || !ok {
				return errors.New("reinjection failed")
			}
			return nil
		})

	report, err := runner.Run(context.Background(), testProject(), "tab-1", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if gotContext != "tab-1" {
		t.Errorf("strategy saw context %q, want tab-1", gotContext)
	}
	// Setup injection plus the strategy's reinjection.
	if drv.injectCount() != 2 {
		t.Errorf("EnsureExecutor called %d times, want 2", drv.injectCount())
	}
	// Recovery downgrades to continue: the failed step stays failed but the
	// rest of the row runs.
	if report.Aborted || report.StepsFailed != 1 || report.StepsPassed != 2 {
		t.Errorf("report = %+v, want 1 failure without abort", report)
	}
	if drv.dispatchCount("#submit") != 1 {
		t.Error("run must continue past the recovered step")
	}
	if report.LastError == nil || !report.LastError.Recovered {
		t.Fatalf("LastError = %+v, want recovered", report.LastError)
	}
	if report.LastError.RecoveryAction != "reinject_executor" {
		t.Errorf("RecoveryAction = %q, want reinject_executor", report.LastError.RecoveryAction)
	}
}

func TestRunner_PauseExcludedFromActiveDuration(t *testing.T) {
	drv := newScriptedDriver()
	runner, _, tele := newTestRunner(drv, recovery.Config{})

	resumed := make(chan struct{})
	drv.onSend = func(locator string) {
		if locator != "#email" {
			return
		}
		runner.Pause()
		go func() {
			defer close(resumed)
			time.Sleep(150 * time.Millisecond)
			runner.Resume()
		}()
	}

	report, err := runner.Run(context.Background(), testProject(), "tab-1", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	<-resumed
	if !report.Success || report.StepsPassed != 3 {
		t.Fatalf("report = %+v, want clean success", report)
	}

	timings := tele.ExecutionTimings()
	if len(timings) != 1 {
		t.Fatalf("telemetry recorded %d executions, want 1", len(timings))
	}
	paused := timings[0].Duration - timings[0].ActiveDuration
	if paused < 100*time.Millisecond {
		t.Errorf("paused time = %v, want at least 100ms excluded", paused)
	}
	if timings[0].ActiveDuration >= timings[0].Duration {
		t.Errorf("active duration %v not below total %v", timings[0].ActiveDuration, timings[0].Duration)
	}
}

// =============================================================================
// Templating
// =============================================================================

func TestSubstitute(t *testing.T) {
	row := map[string]string{"email": "a@b.c", "name": "Ada"}

	cases := []struct {
		in, want string
	}{
		{"{{email}}", "a@b.c"},
		{"Hello {{name}}!", "Hello Ada!"},
		{"{{name}} <{{email}}>", "Ada <a@b.c>"},
		{"{{missing}}", "{{missing}}"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, c := range cases {
		if got := substitute(c.in, row); got != c.want {
			t.Errorf("substitute(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	if got := substitute("{{email}}", nil); got != "{{email}}" {
		t.Errorf("nil row must leave placeholders untouched, got %q", got)
	}
}

func TestStepLabel(t *testing.T) {
	if got := stepLabel(&domain.Step{Label: "click buy"}); got != "click buy" {
		t.Errorf("stepLabel = %q", got)
	}
	if got := stepLabel(&domain.Step{Event: domain.StepEventClick, Locator: "#buy"}); got != "click #buy" {
		t.Errorf("fallback label = %q, want 'click #buy'", got)
	}
}

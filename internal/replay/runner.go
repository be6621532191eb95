// Package replay executes a recorded script against a page context,
// optionally once per data row, routing failures through the recovery engine
// and recording every attempt into telemetry.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/infra/driver"
	"github.com/vietddude/webtape/internal/recovery"
	"github.com/vietddude/webtape/internal/telemetry"
)

// ErrAborted is returned when the recovery engine ends the run.
var ErrAborted = errors.New("replay aborted")

// Config controls replay pacing.
type Config struct {
	StepTimeout time.Duration `yaml:"step_timeout"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns the pacing used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		StepTimeout: 15 * time.Second,
		RetryDelay:  500 * time.Millisecond,
	}
}

// Report summarizes one replay run.
type Report struct {
	ExecutionID  string               `json:"execution_id"`
	ProjectID    string               `json:"project_id"`
	RowsTotal    int                  `json:"rows_total"`
	RowsPassed   int                  `json:"rows_passed"`
	StepsPassed  int                  `json:"steps_passed"`
	StepsFailed  int                  `json:"steps_failed"`
	StepsSkipped int                  `json:"steps_skipped"`
	Success      bool                 `json:"success"`
	Aborted      bool                 `json:"aborted"`
	LastError    *domain.ExecutionError `json:"last_error,omitempty"`
}

// Runner replays projects. One run at a time per runner.
type Runner struct {
	cfg    Config
	drv    driver.TabDriver
	errEng *recovery.Engine
	tele   *telemetry.Engine
	log    *slog.Logger

	mu     sync.Mutex
	paused bool
}

// NewRunner creates a replay runner.
func NewRunner(cfg Config, drv driver.TabDriver, errEng *recovery.Engine, tele *telemetry.Engine) *Runner {
	def := DefaultConfig()
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = def.StepTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Runner{
		cfg:    cfg,
		drv:    drv,
		errEng: errEng,
		tele:   tele,
		log:    slog.With("component", "replay"),
	}
}

// Pause suspends the run after the current step. Paused time is excluded
// from the execution's active duration.
func (r *Runner) Pause() {
	r.mu.Lock()
	if !r.paused {
		r.paused = true
		r.tele.RecordPauseStart()
	}
	r.mu.Unlock()
}

// Resume continues a paused run.
func (r *Runner) Resume() {
	r.mu.Lock()
	if r.paused {
		r.paused = false
		r.tele.RecordPauseEnd()
	}
	r.mu.Unlock()
}

// Run replays the project's steps in the given context, once per data row.
// With no rows the script runs a single pass. The returned report is valid
// even when err is non-nil.
func (r *Runner) Run(ctx context.Context, project *domain.Project, contextID string, rows []map[string]string) (*Report, error) {
	report := &Report{
		ExecutionID: uuid.New().String(),
		ProjectID:   project.ID,
	}
	if len(rows) == 0 {
		rows = []map[string]string{nil}
	}
	report.RowsTotal = len(rows)

	ok, err := r.drv.EnsureExecutor(ctx, contextID)
	if err == nil && !ok {
		err = fmt.Errorf("executor injection failed for context %s", contextID)
	}
	if err != nil {
		disp := r.errEng.Handle(err, recovery.ErrorContext{
			SessionID: report.ExecutionID,
			Data:      map[string]any{"context_id": contextID},
		})
		report.LastError = disp.Error
		return report, fmt.Errorf("replay setup failed: %w", err)
	}

	r.tele.StartExecution(report.ExecutionID, project.ID)
	r.log.Info("Replay started",
		"execution_id", report.ExecutionID, "project_id", project.ID, "rows", len(rows))

	aborted := false
	for rowIdx, row := range rows {
		if aborted {
			break
		}
		rowStart := time.Now()
		passed, failed, skipped, abort := r.runRow(ctx, project, contextID, rowIdx, row, report)
		report.StepsPassed += passed
		report.StepsFailed += failed
		report.StepsSkipped += skipped
		aborted = abort

		rowOK := failed == 0 && !abort
		if rowOK {
			report.RowsPassed++
		}
		r.tele.RecordRow(domain.RowTiming{
			RowIndex:    rowIdx,
			StepsPassed: passed,
			StepsFailed: failed,
			Duration:    time.Since(rowStart),
			Success:     rowOK,
		})
	}

	report.Aborted = aborted
	report.Success = !aborted && report.StepsFailed == 0

	r.tele.EndExecution(project.ID, domain.ExecutionResult{
		StepsExecuted: report.StepsPassed + report.StepsFailed,
		RowsProcessed: report.RowsTotal,
		Success:       report.Success,
	})
	r.log.Info("Replay finished",
		"execution_id", report.ExecutionID, "success", report.Success, "aborted", report.Aborted)

	if aborted {
		return report, ErrAborted
	}
	return report, nil
}

// runRow executes all steps for one data row. Returns per-row counters and
// whether the run must abort.
func (r *Runner) runRow(ctx context.Context, project *domain.Project, contextID string, rowIdx int, row map[string]string, report *Report) (passed, failed, skipped int, abort bool) {
	for stepIdx, step := range project.Steps {
		r.waitWhilePaused(ctx)
		if ctx.Err() != nil {
			return passed, failed, skipped, true
		}

		ok, disp := r.runStep(ctx, contextID, stepIdx, rowIdx, step, row, report.ExecutionID)
		if ok {
			passed++
			continue
		}
		failed++
		report.LastError = disp.Error

		switch {
		case disp.ShouldAbort:
			return passed, failed, skipped, true
		case disp.ShouldSkip:
			skipped += len(project.Steps) - stepIdx - 1
			return passed, failed, skipped, false
		}
		// continue: move on to the next step
	}
	return passed, failed, skipped, false
}

// runStep attempts one step, looping while the recovery engine grants
// retries. Every attempt is recorded into telemetry regardless of outcome.
func (r *Runner) runStep(ctx context.Context, contextID string, stepIdx, rowIdx int, step *domain.Step, row map[string]string, executionID string) (bool, domain.Disposition) {
	value := substitute(step.Value, row)
	retries := 0

	for {
		start := time.Now()
		execErr := r.executeOnce(ctx, contextID, step, value)
		r.tele.RecordStep(domain.StepTiming{
			StepIndex:  stepIdx,
			RowIndex:   rowIdx,
			Label:      stepLabel(step),
			Event:      step.Event,
			Duration:   time.Since(start),
			Success:    execErr == nil,
			RetryCount: retries,
		})
		if execErr == nil {
			return true, domain.Disposition{}
		}

		idx := stepIdx
		rIdx := rowIdx
		disp := r.errEng.HandleWithRecovery(ctx, execErr, recovery.ErrorContext{
			SessionID: executionID,
			StepIndex: &idx,
			RowIndex:  &rIdx,
			StepLabel: stepLabel(step),
			Data:      map[string]any{"context_id": contextID},
		})
		if !disp.ShouldRetry {
			return false, disp
		}
		retries = disp.Error.RetryCount
		r.log.Debug("Retrying step",
			"step", stepIdx, "row", rowIdx, "attempt", retries, "error", execErr)
		select {
		case <-ctx.Done():
			return false, domain.Disposition{ShouldAbort: true, Error: disp.Error}
		case <-time.After(r.cfg.RetryDelay):
		}
	}
}

// executeOnce sends one execute directive and folds transport and executor
// failures into a single error.
func (r *Runner) executeOnce(ctx context.Context, contextID string, step *domain.Step, value string) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.cfg.StepTimeout)
	defer cancel()

	resp, err := r.drv.Send(stepCtx, contextID, driver.Directive{
		Action: driver.ActionExecuteStep,
		Payload: map[string]any{
			"event":   string(step.Event),
			"locator": step.Locator,
			"value":   value,
		},
	})
	if err != nil {
		return fmt.Errorf("step dispatch failed: %w", err)
	}
	if !resp.OK {
		return errors.New(resp.Error)
	}
	return nil
}

func (r *Runner) waitWhilePaused(ctx context.Context) {
	for {
		r.mu.Lock()
		paused := r.paused
		r.mu.Unlock()
		if !paused || ctx.Err() != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// substitute replaces {{column}} placeholders with row values. Unknown
// columns are left untouched.
func substitute(value string, row map[string]string) string {
	if row == nil || value == "" {
		return value
	}
	return placeholderRe.ReplaceAllStringFunc(value, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := row[key]; ok {
			return v
		}
		return m
	})
}

func stepLabel(step *domain.Step) string {
	if step.Label != "" {
		return step.Label
	}
	return string(step.Event) + " " + step.Locator
}

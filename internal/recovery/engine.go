// Package recovery classifies step-execution failures, resolves per-category
// failure policies and tracks retry budgets. The engine never returns an
// error from Handle: every failure yields a disposition.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/webtape/internal/core/domain"
	"github.com/vietddude/webtape/internal/events"
	"github.com/vietddude/webtape/internal/metrics"
)

// Config controls retry budgets and the global failure ceiling.
type Config struct {
	MaxRetries    int                  `yaml:"max_retries"`
	MaxErrors     int                  `yaml:"max_errors"`
	StrictMode    bool                 `yaml:"strict_mode"`
	DefaultPolicy domain.FailurePolicy `yaml:"default_policy"`
}

// DefaultConfig returns the budgets used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		MaxErrors:     50,
		DefaultPolicy: domain.PolicyContinue,
	}
}

// ConfigUpdate is a partial configuration change; nil fields keep the current
// value.
type ConfigUpdate struct {
	MaxRetries    *int
	MaxErrors     *int
	StrictMode    *bool
	DefaultPolicy *domain.FailurePolicy
}

// ErrorContext carries situational data about a failure into classification.
type ErrorContext struct {
	SessionID string
	StepIndex *int
	RowIndex  *int
	StepLabel string
	Data      map[string]any
}

// RecoveryStrategy attempts to repair the condition behind a classified
// failure. Returning nil marks the error recovered.
type RecoveryStrategy func(ctx context.Context, execErr *domain.ExecutionError, ec ErrorContext) error

// Engine is the error classification and policy engine. It owns its own
// append-only history and retry-counter table, independent of any session,
// and is reusable across sessions.
type Engine struct {
	mu         sync.Mutex
	cfg        Config
	policies   map[domain.ErrorCategory]domain.FailurePolicy
	history    []*domain.ExecutionError
	retries    map[string]int
	strategies map[domain.ErrorCategory]namedStrategy
	bus        *events.Bus
	log        *slog.Logger
}

type namedStrategy struct {
	name string
	fn   RecoveryStrategy
}

// NewEngine creates an error engine. A nil bus disables event emission.
func NewEngine(cfg Config, bus *events.Bus) *Engine {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = def.MaxErrors
	}
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = def.DefaultPolicy
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Engine{
		cfg:        cfg,
		policies:   DefaultPolicies(),
		retries:    make(map[string]int),
		strategies: make(map[domain.ErrorCategory]namedStrategy),
		bus:        bus,
		log:        slog.With("component", "recovery"),
	}
}

// Subscribe registers an event subscriber and returns its unsubscribe func.
func (e *Engine) Subscribe(fn events.Subscriber) func() {
	return e.bus.Subscribe(fn)
}

// SetPolicy overrides the policy for one category at runtime.
func (e *Engine) SetPolicy(category domain.ErrorCategory, policy domain.FailurePolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[category] = policy
}

// UpdateConfig applies a partial configuration change.
func (e *Engine) UpdateConfig(upd ConfigUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if upd.MaxRetries != nil {
		e.cfg.MaxRetries = *upd.MaxRetries
	}
	if upd.MaxErrors != nil {
		e.cfg.MaxErrors = *upd.MaxErrors
	}
	if upd.StrictMode != nil {
		e.cfg.StrictMode = *upd.StrictMode
	}
	if upd.DefaultPolicy != nil {
		e.cfg.DefaultPolicy = *upd.DefaultPolicy
	}
}

// RegisterStrategy installs a recovery strategy for a category.
func (e *Engine) RegisterStrategy(category domain.ErrorCategory, name string, fn RecoveryStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[category] = namedStrategy{name: name, fn: fn}
}

// retryKey scopes retry counters to (step index, category). Errors with no
// step index (session setup failures) share one bucket per category.
func retryKey(stepIndex *int, category domain.ErrorCategory) string {
	if stepIndex == nil {
		return fmt.Sprintf("unknown:%s", category)
	}
	return fmt.Sprintf("%d:%s", *stepIndex, category)
}

// Handle classifies the failure, records it and resolves a disposition.
func (e *Engine) Handle(err error, ec ErrorContext) domain.Disposition {
	e.mu.Lock()

	execErr := &domain.ExecutionError{
		ID:        uuid.New().String(),
		Category:  Classify(err.Error()),
		Message:   err.Error(),
		Cause:     err,
		StepIndex: ec.StepIndex,
		RowIndex:  ec.RowIndex,
		Timestamp: time.Now(),
		Context:   ec.Data,
	}
	execErr.Severity = deriveSeverity(execErr.Category, e.cfg.StrictMode)

	e.history = append(e.history, execErr)
	metrics.ErrorsTotal.WithLabelValues(string(execErr.Category), string(execErr.Severity)).Inc()

	// Global failure ceiling: an unconditional circuit breaker, independent of
	// per-category policy.
	if len(e.history) >= e.cfg.MaxErrors {
		execErr.Severity = domain.SeverityFatal
		e.mu.Unlock()
		e.log.Error("Error ceiling reached, aborting", "count", len(e.history), "max", e.cfg.MaxErrors)
		e.publishError(domain.EventErrorOccurred, execErr, ec)
		e.publishError(domain.EventError, execErr, ec)
		return domain.Disposition{ShouldAbort: true, Error: execErr}
	}
	e.mu.Unlock()

	e.publishError(domain.EventErrorOccurred, execErr, ec)

	e.mu.Lock()
	policy := e.resolvePolicy(execErr.Category)
	key := retryKey(ec.StepIndex, execErr.Category)

	if policy == domain.PolicyRetry {
		if e.retries[key] < e.cfg.MaxRetries {
			e.retries[key]++
			execErr.RetryCount = e.retries[key]
			e.mu.Unlock()
			metrics.RetriesTotal.WithLabelValues(string(execErr.Category)).Inc()
			e.publishError(domain.EventRetryAttempted, execErr, ec)
			return domain.Disposition{ShouldRetry: true, Error: execErr}
		}
		// Budget exhausted: drop the counter and fall through to continue.
		delete(e.retries, key)
		e.mu.Unlock()
		e.log.Warn("Retry budget exhausted", "category", execErr.Category, "key", key)
		return domain.Disposition{ShouldContinue: true, Error: execErr}
	}

	// Any non-retry policy invalidates a stale counter for this key.
	delete(e.retries, key)

	switch policy {
	case domain.PolicySkip:
		e.mu.Unlock()
		return domain.Disposition{ShouldSkip: true, Error: execErr}
	case domain.PolicyAbort:
		execErr.Severity = domain.SeverityFatal
		e.mu.Unlock()
		e.publishError(domain.EventError, execErr, ec)
		return domain.Disposition{ShouldAbort: true, Error: execErr}
	default:
		e.mu.Unlock()
		return domain.Disposition{ShouldContinue: true, Error: execErr}
	}
}

// HandleWithRecovery handles the failure and then, unless the disposition is
// already abort, invokes the registered recovery strategy for the category.
// Recovery is best-effort: a failing strategy leaves the disposition untouched.
func (e *Engine) HandleWithRecovery(ctx context.Context, err error, ec ErrorContext) domain.Disposition {
	disp := e.Handle(err, ec)
	if disp.ShouldAbort {
		return disp
	}

	e.mu.Lock()
	strategy, ok := e.strategies[disp.Error.Category]
	e.mu.Unlock()
	if !ok {
		return disp
	}

	if recErr := e.runStrategy(ctx, strategy, disp.Error, ec); recErr != nil {
		e.log.Warn("Recovery strategy failed",
			"category", disp.Error.Category, "strategy", strategy.name, "error", recErr)
		return disp
	}

	e.mu.Lock()
	disp.Error.Recovered = true
	disp.Error.RecoveryAction = strategy.name
	e.mu.Unlock()

	// A successful recovery always downgrades the verdict to continue.
	return domain.Disposition{ShouldContinue: true, Error: disp.Error}
}

// runStrategy isolates a strategy panic so it cannot propagate past
// HandleWithRecovery.
func (e *Engine) runStrategy(ctx context.Context, s namedStrategy, execErr *domain.ExecutionError, ec ErrorContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovery strategy panicked: %v", r)
		}
	}()
	return s.fn(ctx, execErr, ec)
}

func (e *Engine) publishError(t domain.EventType, execErr *domain.ExecutionError, ec ErrorContext) {
	e.bus.Publish(domain.Event{
		Type:      t,
		SessionID: ec.SessionID,
		Data: map[string]any{
			"error_id": execErr.ID,
			"category": string(execErr.Category),
			"severity": string(execErr.Severity),
			"message":  execErr.Message,
			"retries":  execErr.RetryCount,
		},
	})
}

// Reset clears history and retry counters without touching configuration.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	e.retries = make(map[string]int)
}

// ClearErrors clears only the history, keeping retry counters.
func (e *Engine) ClearErrors() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

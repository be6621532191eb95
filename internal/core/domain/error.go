package domain

import "time"

// ErrorCategory classifies the cause of a step-execution failure.
type ErrorCategory string

const (
	CategoryElementNotFound        ErrorCategory = "element_not_found"
	CategoryElementNotVisible      ErrorCategory = "element_not_visible"
	CategoryElementNotInteractable ErrorCategory = "element_not_interactable"
	CategoryTimeout                ErrorCategory = "timeout"
	CategoryNavigation             ErrorCategory = "navigation"
	CategoryInjection              ErrorCategory = "injection"
	CategoryContextLifecycle       ErrorCategory = "context_lifecycle"
	CategoryNetwork                ErrorCategory = "network"
	CategoryValidation             ErrorCategory = "validation"
	CategoryAssertion              ErrorCategory = "assertion"
	CategoryUnknown                ErrorCategory = "unknown"
)

// ErrorSeverity ranks how serious a classified failure is.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

// FailurePolicy is the configured reaction to a failure category.
type FailurePolicy string

const (
	PolicyContinue FailurePolicy = "continue"
	PolicySkip     FailurePolicy = "skip"
	PolicyRetry    FailurePolicy = "retry"
	PolicyAbort    FailurePolicy = "abort"
)

// ExecutionError is one classified failure. It is appended to the error
// engine's history once and only mutated afterwards to stamp recovery results.
type ExecutionError struct {
	ID             string         `json:"id"`
	Category       ErrorCategory  `json:"category"`
	Severity       ErrorSeverity  `json:"severity"`
	Message        string         `json:"message"`
	Cause          error          `json:"-"`
	StepIndex      *int           `json:"step_index,omitempty"`
	RowIndex       *int           `json:"row_index,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Context        map[string]any `json:"context,omitempty"`
	Recovered      bool           `json:"recovered"`
	RecoveryAction string         `json:"recovery_action,omitempty"`
	RetryCount     int            `json:"retry_count"`
}

// Disposition is the error engine's verdict on a failure. Exactly one of the
// Should* flags is set.
type Disposition struct {
	ShouldContinue bool            `json:"should_continue"`
	ShouldSkip     bool            `json:"should_skip"`
	ShouldRetry    bool            `json:"should_retry"`
	ShouldAbort    bool            `json:"should_abort"`
	Error          *ExecutionError `json:"error"`
}

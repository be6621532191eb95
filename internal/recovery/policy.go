package recovery

import "github.com/vietddude/webtape/internal/core/domain"

// DefaultPolicies mirrors typical automation risk: missing or hidden elements
// are usually tolerable, flaky interactions and networks deserve a retry, and
// anything that breaks the page context is unrecoverable.
func DefaultPolicies() map[domain.ErrorCategory]domain.FailurePolicy {
	return map[domain.ErrorCategory]domain.FailurePolicy{
		domain.CategoryElementNotFound:        domain.PolicyContinue,
		domain.CategoryElementNotVisible:      domain.PolicyContinue,
		domain.CategoryElementNotInteractable: domain.PolicyRetry,
		domain.CategoryTimeout:                domain.PolicyRetry,
		domain.CategoryNetwork:                domain.PolicyRetry,
		domain.CategoryNavigation:             domain.PolicyAbort,
		domain.CategoryInjection:              domain.PolicyAbort,
		domain.CategoryContextLifecycle:       domain.PolicyAbort,
		domain.CategoryValidation:             domain.PolicySkip,
		domain.CategoryAssertion:              domain.PolicyContinue,
		domain.CategoryUnknown:                domain.PolicyContinue,
	}
}

// resolvePolicy looks up the category's policy, falling back to the configured
// default when no explicit entry exists. Caller must hold the engine lock.
func (e *Engine) resolvePolicy(category domain.ErrorCategory) domain.FailurePolicy {
	if p, ok := e.policies[category]; ok {
		return p
	}
	return e.cfg.DefaultPolicy
}

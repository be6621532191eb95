package recovery

import (
	"testing"

	"github.com/vietddude/webtape/internal/core/domain"
)

func TestClassify_Categories(t *testing.T) {
	cases := []struct {
		message string
		want    domain.ErrorCategory
	}{
		{"Element not found: #submit", domain.CategoryElementNotFound},
		{"no such element in frame", domain.CategoryElementNotFound},
		{"unable to locate button", domain.CategoryElementNotFound},
		{"element is not visible", domain.CategoryElementNotVisible},
		{"element has zero size", domain.CategoryElementNotVisible},
		{"element not interactable", domain.CategoryElementNotInteractable},
		{"button is covered by overlay", domain.CategoryElementNotInteractable},
		{"operation timed out after 15s", domain.CategoryTimeout},
		{"context deadline exceeded", domain.CategoryTimeout},
		{"Navigation failed", domain.CategoryNavigation},
		{"page load failed", domain.CategoryNavigation},
		{"executor not ready", domain.CategoryInjection},
		{"script injection rejected by CSP", domain.CategoryInjection},
		{"target closed", domain.CategoryContextLifecycle},
		{"tab was closed by the user", domain.CategoryContextLifecycle},
		{"net::ERR_CONNECTION_REFUSED", domain.CategoryNetwork},
		{"DNS lookup failed", domain.CategoryNetwork},
		{"invalid input for field email", domain.CategoryValidation},
		{"assertion failed: expected 3 to equal 4", domain.CategoryAssertion},
		{"value mismatch on #total", domain.CategoryAssertion},
		{"something completely different", domain.CategoryUnknown},
		{"", domain.CategoryUnknown},
	}

	for _, c := range cases {
		if got := Classify(c.message); got != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.message, got, c.want)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	msg := "Element not found after navigation timeout"
	first := Classify(msg)
	for i := 0; i < 10; i++ {
		if got := Classify(msg); got != first {
			t.Fatalf("classification changed between calls: %s vs %s", first, got)
		}
	}
	// Ordering matters: element patterns are checked before timeout.
	if first != domain.CategoryElementNotFound {
		t.Errorf("Classify = %s, want element_not_found (first match wins)", first)
	}
}

func TestDeriveSeverity(t *testing.T) {
	cases := []struct {
		category domain.ErrorCategory
		strict   bool
		want     domain.ErrorSeverity
	}{
		{domain.CategoryNavigation, false, domain.SeverityFatal},
		{domain.CategoryInjection, false, domain.SeverityFatal},
		{domain.CategoryContextLifecycle, false, domain.SeverityFatal},
		{domain.CategoryElementNotFound, false, domain.SeverityError},
		{domain.CategoryTimeout, false, domain.SeverityError},
		{domain.CategoryNetwork, false, domain.SeverityError},
		{domain.CategoryValidation, false, domain.SeverityWarning},
		{domain.CategoryAssertion, false, domain.SeverityWarning},
		{domain.CategoryValidation, true, domain.SeverityError},
		{domain.CategoryAssertion, true, domain.SeverityError},
		{domain.CategoryUnknown, false, domain.SeverityError},
	}

	for _, c := range cases {
		if got := deriveSeverity(c.category, c.strict); got != c.want {
			t.Errorf("deriveSeverity(%s, strict=%t) = %s, want %s",
				c.category, c.strict, got, c.want)
		}
	}
}

package recovery

import (
	"regexp"

	"github.com/vietddude/webtape/internal/core/domain"
)

// pattern maps a failure-message matcher to a category. Patterns are evaluated
// top to bottom; the first match wins.
type pattern struct {
	re       *regexp.Regexp
	category domain.ErrorCategory
}

// classificationPatterns is the ordered pattern list. Unmatched messages fall
// through to CategoryUnknown.
var classificationPatterns = []pattern{
	{regexp.MustCompile(`(?i)element.{0,20}not found|no such element|could not find element|unable to locate`), domain.CategoryElementNotFound},
	{regexp.MustCompile(`(?i)not visible|element.{0,20}hidden|invisible element|zero size`), domain.CategoryElementNotVisible},
	{regexp.MustCompile(`(?i)not interactable|not clickable|element.{0,20}disabled|covered by|obscured`), domain.CategoryElementNotInteractable},
	{regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded`), domain.CategoryTimeout},
	{regexp.MustCompile(`(?i)navigat|page load failed|frame.{0,20}load`), domain.CategoryNavigation},
	{regexp.MustCompile(`(?i)inject|executor.{0,20}(missing|not ready)|evaluate failed|script.{0,20}not loaded`), domain.CategoryInjection},
	{regexp.MustCompile(`(?i)context.{0,20}(closed|destroyed|lost)|tab.{0,20}closed|target.{0,20}(closed|crashed|detached)|session.{0,20}detached`), domain.CategoryContextLifecycle},
	{regexp.MustCompile(`(?i)network|connection.{0,20}(refused|reset|closed|failed)|net::err|dns`), domain.CategoryNetwork},
	{regexp.MustCompile(`(?i)validation|invalid (value|input|data)|constraint violat`), domain.CategoryValidation},
	{regexp.MustCompile(`(?i)assert|expected.{0,40}(but got|to equal|to contain)|mismatch`), domain.CategoryAssertion},
}

// Classify maps a failure message to its category. Deterministic: the same
// message always yields the same category.
func Classify(message string) domain.ErrorCategory {
	for _, p := range classificationPatterns {
		if p.re.MatchString(message) {
			return p.category
		}
	}
	return domain.CategoryUnknown
}

// deriveSeverity ranks a category. Validation and assertion failures are
// warnings unless strict mode promotes them to errors.
func deriveSeverity(category domain.ErrorCategory, strict bool) domain.ErrorSeverity {
	switch category {
	case domain.CategoryNavigation, domain.CategoryInjection, domain.CategoryContextLifecycle:
		return domain.SeverityFatal
	case domain.CategoryElementNotFound, domain.CategoryElementNotVisible,
		domain.CategoryElementNotInteractable, domain.CategoryTimeout, domain.CategoryNetwork:
		return domain.SeverityError
	case domain.CategoryValidation, domain.CategoryAssertion:
		if strict {
			return domain.SeverityError
		}
		return domain.SeverityWarning
	default:
		return domain.SeverityError
	}
}

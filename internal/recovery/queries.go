package recovery

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
)

// ErrorStats aggregates the recorded history.
type ErrorStats struct {
	Total      int                          `json:"total"`
	ByCategory map[domain.ErrorCategory]int `json:"by_category"`
	BySeverity map[domain.ErrorSeverity]int `json:"by_severity"`
	Recovered  int                          `json:"recovered"`
	Fatal      int                          `json:"fatal"`
	FirstAt    time.Time                    `json:"first_at,omitempty"`
	LastAt     time.Time                    `json:"last_at,omitempty"`
}

// Errors returns a copy of the full history, oldest first.
func (e *Engine) Errors() []*domain.ExecutionError {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.ExecutionError, len(e.history))
	copy(out, e.history)
	return out
}

// ErrorsByCategory returns recorded errors of one category.
func (e *Engine) ErrorsByCategory(category domain.ErrorCategory) []*domain.ExecutionError {
	return e.filter(func(err *domain.ExecutionError) bool { return err.Category == category })
}

// ErrorsBySeverity returns recorded errors of one severity.
func (e *Engine) ErrorsBySeverity(severity domain.ErrorSeverity) []*domain.ExecutionError {
	return e.filter(func(err *domain.ExecutionError) bool { return err.Severity == severity })
}

// FatalErrors returns the fatal subset of the history.
func (e *Engine) FatalErrors() []*domain.ExecutionError {
	return e.ErrorsBySeverity(domain.SeverityFatal)
}

// ErrorsForStep returns errors recorded against one step index.
func (e *Engine) ErrorsForStep(stepIndex int) []*domain.ExecutionError {
	return e.filter(func(err *domain.ExecutionError) bool {
		return err.StepIndex != nil && *err.StepIndex == stepIndex
	})
}

// LastError returns the most recently recorded error, or nil.
func (e *Engine) LastError() *domain.ExecutionError {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) == 0 {
		return nil
	}
	return e.history[len(e.history)-1]
}

func (e *Engine) filter(keep func(*domain.ExecutionError) bool) []*domain.ExecutionError {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.ExecutionError
	for _, err := range e.history {
		if keep(err) {
			out = append(out, err)
		}
	}
	return out
}

// Stats aggregates counts by category and severity over the history.
func (e *Engine) Stats() ErrorStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ErrorStats{
		Total:      len(e.history),
		ByCategory: make(map[domain.ErrorCategory]int),
		BySeverity: make(map[domain.ErrorSeverity]int),
	}
	for i, err := range e.history {
		stats.ByCategory[err.Category]++
		stats.BySeverity[err.Severity]++
		if err.Recovered {
			stats.Recovered++
		}
		if err.Severity == domain.SeverityFatal {
			stats.Fatal++
		}
		if i == 0 {
			stats.FirstAt = err.Timestamp
		}
		stats.LastAt = err.Timestamp
	}
	return stats
}

// SummaryText renders a human-readable digest listing the top three categories
// by frequency.
func (e *Engine) SummaryText() string {
	stats := e.Stats()
	if stats.Total == 0 {
		return "no errors recorded"
	}

	type catCount struct {
		category domain.ErrorCategory
		count    int
	}
	counts := make([]catCount, 0, len(stats.ByCategory))
	for c, n := range stats.ByCategory {
		counts = append(counts, catCount{c, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].category < counts[j].category
	})
	if len(counts) > 3 {
		counts = counts[:3]
	}

	parts := make([]string, 0, len(counts))
	for _, cc := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", cc.category, cc.count))
	}
	return fmt.Sprintf("%d errors (%d fatal, %d recovered); top: %s",
		stats.Total, stats.Fatal, stats.Recovered, strings.Join(parts, ", "))
}

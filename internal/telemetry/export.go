package telemetry

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/vietddude/webtape/internal/core/domain"
)

// exportPayload is the JSON export shape.
type exportPayload struct {
	Summary    Summary                  `json:"summary"`
	Steps      []domain.StepTiming      `json:"steps"`
	Rows       []domain.RowTiming       `json:"rows"`
	Executions []domain.ExecutionTiming `json:"executions"`
	ExportedAt time.Time                `json:"exported_at"`
}

// ExportJSON serializes the summary plus full buffered history.
func (e *Engine) ExportJSON() ([]byte, error) {
	payload := exportPayload{
		Summary:    e.Summary(),
		Steps:      e.StepTimings(),
		Rows:       e.RowTimings(),
		Executions: e.ExecutionTimings(),
		ExportedAt: time.Now(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal telemetry export: %w", err)
	}
	return data, nil
}

// ExportStepTimingsCSV renders the buffered step timings as CSV.
func (e *Engine) ExportStepTimingsCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"recorded_at", "step_index", "row_index", "label", "event", "duration_ms", "success", "retry_count"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, t := range e.StepTimings() {
		record := []string{
			t.RecordedAt.Format(time.RFC3339),
			strconv.Itoa(t.StepIndex),
			strconv.Itoa(t.RowIndex),
			t.Label,
			string(t.Event),
			strconv.FormatInt(t.Duration.Milliseconds(), 10),
			strconv.FormatBool(t.Success),
			strconv.Itoa(t.RetryCount),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

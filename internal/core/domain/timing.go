package domain

import "time"

// StepTiming is one recorded step attempt. Flat by design: no reference back to
// the Step object is retained, so ring-buffer eviction frees everything.
type StepTiming struct {
	StepIndex  int           `json:"step_index"`
	RowIndex   int           `json:"row_index"`
	Label      string        `json:"label"`
	Event      StepEvent     `json:"event"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	RetryCount int           `json:"retry_count"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// RowTiming is one processed data row during replay.
type RowTiming struct {
	RowIndex    int           `json:"row_index"`
	StepsPassed int           `json:"steps_passed"`
	StepsFailed int           `json:"steps_failed"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// ExecutionTiming is one completed replay execution.
type ExecutionTiming struct {
	ID             string        `json:"id"`
	ProjectID      string        `json:"project_id"`
	Duration       time.Duration `json:"duration"`
	ActiveDuration time.Duration `json:"active_duration"`
	StepsExecuted  int           `json:"steps_executed"`
	RowsProcessed  int           `json:"rows_processed"`
	Success        bool          `json:"success"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        time.Time     `json:"ended_at"`
}

// ExecutionResult is what the replay runner reports into EndExecution.
type ExecutionResult struct {
	StepsExecuted int  `json:"steps_executed"`
	RowsProcessed int  `json:"rows_processed"`
	Success       bool `json:"success"`
}

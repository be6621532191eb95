package domain

import "time"

// StepEvent is the kind of interaction a step records.
type StepEvent string

const (
	StepEventOpen     StepEvent = "open"
	StepEventClick    StepEvent = "click"
	StepEventInput    StepEvent = "input"
	StepEventKeyEnter StepEvent = "key_enter"
)

// Step represents one captured or replayed interaction within a session.
// Steps are ordered by slice position; no explicit sequence number is stored.
type Step struct {
	ID         string    `json:"id"`
	Event      StepEvent `json:"event"`
	Locator    string    `json:"locator,omitempty"`
	Value      string    `json:"value,omitempty"`
	Label      string    `json:"label,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// CaptureData is the raw payload delivered by the recorder for one interaction.
// The locator is opaque to this core; locator strategies live in the page executor.
type CaptureData struct {
	Event   StepEvent `json:"event"`
	Locator string    `json:"locator"`
	Value   string    `json:"value"`
	Label   string    `json:"label"`
	URL     string    `json:"url"`
}

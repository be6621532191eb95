package session

import (
	"errors"

	"github.com/vietddude/webtape/internal/core/domain"
)

var (
	// ErrSessionActive is returned when starting while a session is in progress.
	ErrSessionActive = errors.New("recording session already in progress")

	// ErrNoActiveSession is returned when an operation needs an active session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrInvalidTransition is returned on a disallowed state change.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// State is an alias for domain.SessionState for internal use.
type State = domain.SessionState

// ValidTransitions defines allowed state transitions. Key is the current
// state, value is the list of valid next states. Idle and stopped are
// terminal-but-restartable: a new session may start from either.
var ValidTransitions = map[State][]State{
	domain.SessionStateIdle:     {domain.SessionStateStarting},
	domain.SessionStateStarting: {domain.SessionStateRecording, domain.SessionStateStopped},
	domain.SessionStateRecording: {
		domain.SessionStatePaused,
		domain.SessionStateStopping,
	},
	domain.SessionStatePaused: {
		domain.SessionStateRecording,
		domain.SessionStateStopping,
	},
	domain.SessionStateStopping: {domain.SessionStateStopped},
	domain.SessionStateStopped:  {domain.SessionStateStarting},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	targets, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// isTerminal reports whether the state allows a new session to start.
func isTerminal(s State) bool {
	return s == domain.SessionStateIdle || s == domain.SessionStateStopped
}

package session

import (
	"testing"

	"github.com/vietddude/webtape/internal/core/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{domain.SessionStateIdle, domain.SessionStateStarting, true},
		{domain.SessionStateStarting, domain.SessionStateRecording, true},
		{domain.SessionStateStarting, domain.SessionStateStopped, true},
		{domain.SessionStateRecording, domain.SessionStatePaused, true},
		{domain.SessionStateRecording, domain.SessionStateStopping, true},
		{domain.SessionStatePaused, domain.SessionStateRecording, true},
		{domain.SessionStatePaused, domain.SessionStateStopping, true},
		{domain.SessionStateStopping, domain.SessionStateStopped, true},
		{domain.SessionStateStopped, domain.SessionStateStarting, true},

		{domain.SessionStateIdle, domain.SessionStateRecording, false},
		{domain.SessionStateRecording, domain.SessionStateStarting, false},
		{domain.SessionStateRecording, domain.SessionStateStopped, false},
		{domain.SessionStatePaused, domain.SessionStatePaused, false},
		{domain.SessionStateStopped, domain.SessionStateRecording, false},
		{domain.SessionStateStopping, domain.SessionStateRecording, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %t, want %t", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !isTerminal(domain.SessionStateIdle) || !isTerminal(domain.SessionStateStopped) {
		t.Error("idle and stopped must allow a new session")
	}
	for _, s := range []State{
		domain.SessionStateStarting,
		domain.SessionStateRecording,
		domain.SessionStatePaused,
		domain.SessionStateStopping,
	} {
		if isTerminal(s) {
			t.Errorf("%s must not allow a new session", s)
		}
	}
}

package disclosure

import (
	"testing"
	"time"
)

var start = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestSession_Countdown(t *testing.T) {
	s := &Session{StartedAt: start, Budget: SessionBudget}
	tests := []struct {
		elapsed   time.Duration
		remaining time.Duration
		state     State
		leave     bool
	}{
		{0, 300 * time.Second, StateActive, false},
		{299 * time.Second, time.Second, StateActive, false},
		{300 * time.Second, 0, StateExpired, false},
		{304 * time.Second, 0, StateExpired, false},
		{305 * time.Second, 0, StateExpired, true},
		{time.Hour, 0, StateExpired, true},
	}
	for _, tt := range tests {
		now := start.Add(tt.elapsed)
		if got := s.Remaining(now); got != tt.remaining {
			t.Errorf("%s: expected remaining %s, got %s", tt.elapsed, tt.remaining, got)
		}
		if got := s.State(now); got != tt.state {
			t.Errorf("%s: expected %s, got %s", tt.elapsed, tt.state, got)
		}
		if got := s.MustLeave(now); got != tt.leave {
			t.Errorf("%s: expected must leave %v, got %v", tt.elapsed, tt.leave, got)
		}
	}
}

func TestSession_DefaultBudget(t *testing.T) {
	s := &Session{StartedAt: start}
	if !s.ExpiresAt().Equal(start.Add(SessionBudget)) {
		t.Errorf("expected default budget, got expiry %s", s.ExpiresAt())
	}
}

// Package disclosure runs the timed session in which a patient views a result
// after redeeming an access code.
package disclosure

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SessionBudget is how long a patient may view a result per session.
	SessionBudget = 300 * time.Second
	// GracePeriod is the delay between expiry and the forced exit.
	GracePeriod = 5 * time.Second
)

type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Session is one timed viewing. Remaining time is always derived from
// StartedAt, never from a stored countdown.
type Session struct {
	ID         string        `json:"id"`
	AccessCode string        `json:"access_code"`
	ResultID   uuid.UUID     `json:"result_id"`
	TenantID   string        `json:"tenant_id"`
	StartedAt  time.Time     `json:"started_at"`
	Budget     time.Duration `json:"budget"`
}

func (s *Session) budget() time.Duration {
	if s.Budget <= 0 {
		return SessionBudget
	}
	return s.Budget
}

// Remaining is the viewing time left at now, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	left := s.budget() - now.Sub(s.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// State is active while any time remains and expired from the budget onward.
func (s *Session) State(now time.Time) State {
	if s.Remaining(now) > 0 {
		return StateActive
	}
	return StateExpired
}

func (s *Session) ExpiresAt() time.Time {
	return s.StartedAt.Add(s.budget())
}

// LeaveAt is when the patient is sent away from an expired session.
func (s *Session) LeaveAt() time.Time {
	return s.ExpiresAt().Add(GracePeriod)
}

func (s *Session) MustLeave(now time.Time) bool {
	return !now.Before(s.LeaveAt())
}

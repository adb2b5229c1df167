package eligibility

import (
	"context"
	"time"

	"github.com/buckneer/beastie-club/wheel"
)

// Update is a point-in-time eligibility snapshot pushed to a subscriber.
type Update struct {
	Subject          string     `json:"subject"`
	Eligible         bool       `json:"eligible"`
	RemainingSeconds int64      `json:"remainingSeconds"`
	Hours            int64      `json:"hours"`
	Minutes          int64      `json:"minutes"`
	Message          string     `json:"message,omitempty"`
	NextSpinAt       *time.Time `json:"nextSpinAt,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// UpdateFrom builds an Update from an evaluated eligibility.
func UpdateFrom(identity wheel.Identity, e wheel.Eligibility, now time.Time) Update {
	u := Update{
		Subject:   identity.String(),
		Eligible:  e.Eligible,
		Timestamp: now,
	}
	if !e.Eligible {
		u.RemainingSeconds = int64(e.Remaining.Seconds())
		u.Hours = int64(e.WholeHours())
		u.Minutes = int64(e.WholeMinutes())
		u.Message = e.WaitMessage()
		next := e.NextSpinAt
		u.NextSpinAt = &next
	}
	return u
}

// Evaluator computes the current eligibility of an identity. The spin
// service implements this.
type Evaluator interface {
	Eligibility(ctx context.Context, identity wheel.Identity) (wheel.Eligibility, error)
}

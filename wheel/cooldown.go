package wheel

import (
	"fmt"
	"time"
)

// DefaultCooldownWindow is how long an identity waits between spins.
const DefaultCooldownWindow = 72 * time.Hour

// Eligibility is the outcome of a cooldown evaluation. When blocked, Remaining
// carries the exact wait and NextSpinAt the moment it expires.
type Eligibility struct {
	Eligible   bool          `json:"eligible"`
	Remaining  time.Duration `json:"-"`
	NextSpinAt time.Time     `json:"nextSpinAt,omitempty"`
}

// WholeHours returns the remaining wait floored to hours, for display.
func (e Eligibility) WholeHours() int {
	return int(e.Remaining / time.Hour)
}

// WholeMinutes returns the minutes left after WholeHours, floored.
func (e Eligibility) WholeMinutes() int {
	return int((e.Remaining % time.Hour) / time.Minute)
}

// WaitMessage formats the user-facing wait string.
func (e Eligibility) WaitMessage() string {
	return fmt.Sprintf("%d hours and %d minutes", e.WholeHours(), e.WholeMinutes())
}

// CooldownPolicy computes spin eligibility from a last-spin timestamp. Pure;
// carries only the window length.
type CooldownPolicy struct {
	Window time.Duration
}

// NewCooldownPolicy returns a policy with the given window, defaulting to
// DefaultCooldownWindow when zero or negative.
func NewCooldownPolicy(window time.Duration) CooldownPolicy {
	if window <= 0 {
		window = DefaultCooldownWindow
	}
	return CooldownPolicy{Window: window}
}

// Evaluate returns Eligible when lastSpinAt is nil or the window has elapsed
// by now; otherwise Blocked with the remaining wait.
func (p CooldownPolicy) Evaluate(lastSpinAt *time.Time, now time.Time) Eligibility {
	if lastSpinAt == nil {
		return Eligibility{Eligible: true}
	}
	next := lastSpinAt.Add(p.Window)
	if !now.Before(next) {
		return Eligibility{Eligible: true}
	}
	return Eligibility{
		Eligible:   false,
		Remaining:  next.Sub(now),
		NextSpinAt: next,
	}
}

// NotEligibleError reports a spin attempt inside the cooldown window. It is an
// expected outcome rather than a failure: no record was mutated and no draw
// was consumed.
type NotEligibleError struct {
	Eligibility Eligibility
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("spin not available, wait %s", e.Eligibility.WaitMessage())
}

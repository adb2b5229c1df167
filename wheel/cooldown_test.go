package wheel

import (
	"testing"
	"time"
)

func TestCooldownEvaluate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	policy := NewCooldownPolicy(72 * time.Hour)

	spinAt := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name         string
		lastSpinAt   *time.Time
		wantEligible bool
		wantHours    int
		wantMinutes  int
	}{
		{
			name:         "never spun",
			lastSpinAt:   nil,
			wantEligible: true,
		},
		{
			name:         "window exactly elapsed",
			lastSpinAt:   spinAt(-72 * time.Hour),
			wantEligible: true,
		},
		{
			name:         "window long elapsed",
			lastSpinAt:   spinAt(-200 * time.Hour),
			wantEligible: true,
		},
		{
			name:         "one millisecond short",
			lastSpinAt:   spinAt(-72*time.Hour + time.Millisecond),
			wantEligible: false,
			wantHours:    0,
			wantMinutes:  0,
		},
		{
			name:         "just spun",
			lastSpinAt:   spinAt(0),
			wantEligible: false,
			wantHours:    72,
			wantMinutes:  0,
		},
		{
			name:         "partway through",
			lastSpinAt:   spinAt(-24*time.Hour - 30*time.Minute),
			wantEligible: false,
			wantHours:    47,
			wantMinutes:  30,
		},
		{
			name:         "sub-minute remainder floors to zero",
			lastSpinAt:   spinAt(-71*time.Hour - 59*time.Minute - 30*time.Second),
			wantEligible: false,
			wantHours:    0,
			wantMinutes:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Evaluate(tt.lastSpinAt, now)
			if got.Eligible != tt.wantEligible {
				t.Fatalf("Eligible = %v, want %v", got.Eligible, tt.wantEligible)
			}
			if got.Eligible {
				if got.Remaining != 0 {
					t.Errorf("eligible result carries Remaining = %v, want 0", got.Remaining)
				}
				return
			}
			if got.WholeHours() != tt.wantHours {
				t.Errorf("WholeHours() = %d, want %d", got.WholeHours(), tt.wantHours)
			}
			if got.WholeMinutes() != tt.wantMinutes {
				t.Errorf("WholeMinutes() = %d, want %d", got.WholeMinutes(), tt.wantMinutes)
			}
			wantNext := tt.lastSpinAt.Add(72 * time.Hour)
			if !got.NextSpinAt.Equal(wantNext) {
				t.Errorf("NextSpinAt = %v, want %v", got.NextSpinAt, wantNext)
			}
		})
	}
}

func TestWaitMessage(t *testing.T) {
	e := Eligibility{Remaining: 47*time.Hour + 30*time.Minute + 59*time.Second}
	if got, want := e.WaitMessage(), "47 hours and 30 minutes"; got != want {
		t.Errorf("WaitMessage() = %q, want %q", got, want)
	}

	e = Eligibility{Remaining: 45 * time.Second}
	if got, want := e.WaitMessage(), "0 hours and 0 minutes"; got != want {
		t.Errorf("WaitMessage() = %q, want %q", got, want)
	}
}

func TestNewCooldownPolicyDefaultWindow(t *testing.T) {
	if got := NewCooldownPolicy(0).Window; got != DefaultCooldownWindow {
		t.Errorf("zero window defaulted to %v, want %v", got, DefaultCooldownWindow)
	}
	if got := NewCooldownPolicy(-time.Hour).Window; got != DefaultCooldownWindow {
		t.Errorf("negative window defaulted to %v, want %v", got, DefaultCooldownWindow)
	}
	if got := NewCooldownPolicy(time.Hour).Window; got != time.Hour {
		t.Errorf("explicit window = %v, want 1h", got)
	}
}

package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/buckneer/beastie-club/wheel"
	"github.com/rs/zerolog"
)

// stubEvaluator returns a canned eligibility per subject.
type stubEvaluator struct {
	results map[string]wheel.Eligibility
}

func (s *stubEvaluator) Eligibility(ctx context.Context, identity wheel.Identity) (wheel.Eligibility, error) {
	return s.results[identity.String()], nil
}

func newTestService(t *testing.T, evaluator Evaluator) *Service {
	t.Helper()
	// A long tick keeps the loop quiet; tests drive updates explicitly.
	s := NewService(ServiceConfig{
		Evaluator:    evaluator,
		Logger:       zerolog.Nop(),
		TickInterval: time.Hour,
	})
	t.Cleanup(s.Stop)
	return s
}

func receiveUpdate(t *testing.T, sub *Subscription) Update {
	t.Helper()
	select {
	case u := <-sub.Channel:
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestSubscribePushesImmediateSnapshot(t *testing.T) {
	identity := wheel.GuestIdentity("device-1")
	evaluator := &stubEvaluator{results: map[string]wheel.Eligibility{
		identity.String(): {Eligible: true},
	}}
	s := newTestService(t, evaluator)

	sub := s.Subscribe(context.Background(), identity)
	defer s.Unsubscribe(sub)

	u := receiveUpdate(t, sub)
	if !u.Eligible {
		t.Error("snapshot should report eligible")
	}
	if u.Subject != identity.String() {
		t.Errorf("Subject = %q, want %q", u.Subject, identity.String())
	}
}

func TestInvalidatePushesBlockedUpdate(t *testing.T) {
	identity := wheel.AccountIdentity("acct-1")
	next := time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC)
	evaluator := &stubEvaluator{results: map[string]wheel.Eligibility{
		identity.String(): {Eligible: true},
	}}
	s := newTestService(t, evaluator)

	sub := s.Subscribe(context.Background(), identity)
	defer s.Unsubscribe(sub)
	receiveUpdate(t, sub) // drain the subscribe snapshot

	// The identity just spun: flip the evaluator and invalidate.
	evaluator.results[identity.String()] = wheel.Eligibility{
		Eligible:   false,
		Remaining:  71*time.Hour + 30*time.Minute,
		NextSpinAt: next,
	}
	s.Invalidate(context.Background(), identity)

	u := receiveUpdate(t, sub)
	if u.Eligible {
		t.Fatal("update should report blocked")
	}
	if u.Hours != 71 || u.Minutes != 30 {
		t.Errorf("remaining = %dh %dm, want 71h 30m", u.Hours, u.Minutes)
	}
	if u.Message != "71 hours and 30 minutes" {
		t.Errorf("Message = %q", u.Message)
	}
	if u.NextSpinAt == nil || !u.NextSpinAt.Equal(next) {
		t.Errorf("NextSpinAt = %v, want %v", u.NextSpinAt, next)
	}
}

func TestUpdateNotDeliveredAcrossSubjects(t *testing.T) {
	a := wheel.GuestIdentity("device-a")
	b := wheel.GuestIdentity("device-b")
	evaluator := &stubEvaluator{results: map[string]wheel.Eligibility{
		a.String(): {Eligible: true},
		b.String(): {Eligible: true},
	}}
	s := newTestService(t, evaluator)

	subA := s.Subscribe(context.Background(), a)
	subB := s.Subscribe(context.Background(), b)
	defer s.Unsubscribe(subA)
	defer s.Unsubscribe(subB)
	receiveUpdate(t, subA)
	receiveUpdate(t, subB)

	s.Invalidate(context.Background(), a)
	receiveUpdate(t, subA)

	select {
	case u := <-subB.Channel:
		t.Errorf("subject b received an update for subject a: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	identity := wheel.GuestIdentity("device-1")
	evaluator := &stubEvaluator{results: map[string]wheel.Eligibility{
		identity.String(): {Eligible: true},
	}}
	s := newTestService(t, evaluator)

	sub := s.Subscribe(context.Background(), identity)
	receiveUpdate(t, sub)
	s.Unsubscribe(sub)

	if _, open := <-sub.Channel; open {
		t.Error("channel still open after unsubscribe")
	}
}

func TestBroadcasterDropsWhenChannelFull(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	sub := b.Subscribe("subject")

	// Fill the buffer and then some; the extra sends must not block.
	for i := 0; i < cap(sub.Channel)+5; i++ {
		b.Publish(Update{Subject: "subject"})
	}

	if got := len(sub.Channel); got != cap(sub.Channel) {
		t.Errorf("buffered updates = %d, want %d", got, cap(sub.Channel))
	}
	b.Unsubscribe(sub)
}

package server

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	apperrors "github.com/buckneer/beastie-club/errors"
	"github.com/buckneer/beastie-club/pkg/providers"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/rs/zerolog"
)

// memGuestStore is an in-memory providers.GuestStore.
type memGuestStore struct {
	records map[string]wheel.SpinRecord
	saves   int
}

func newMemGuestStore() *memGuestStore {
	return &memGuestStore{records: make(map[string]wheel.SpinRecord)}
}

func (m *memGuestStore) Load(ctx context.Context, deviceID string) (wheel.SpinRecord, error) {
	return m.records[deviceID], nil
}

func (m *memGuestStore) Save(ctx context.Context, deviceID string, record wheel.SpinRecord) error {
	m.saves++
	m.records[deviceID] = record
	return nil
}

func (m *memGuestStore) Clear(ctx context.Context, deviceID string) error {
	delete(m.records, deviceID)
	return nil
}

// memAccountStore is an in-memory providers.AccountStore.
type memAccountStore struct {
	records     map[string]wheel.SpinRecord
	redemptions map[string]*wheel.PrizeRedemption
	nextCode    int
	now         func() time.Time
	onIssue     func() // runs at the top of IssueRedemption when set
}

func newMemAccountStore(now func() time.Time) *memAccountStore {
	return &memAccountStore{
		records:     make(map[string]wheel.SpinRecord),
		redemptions: make(map[string]*wheel.PrizeRedemption),
		now:         now,
	}
}

func (m *memAccountStore) Load(ctx context.Context, accountID string) (wheel.SpinRecord, error) {
	return m.records[accountID], nil
}

func (m *memAccountStore) Save(ctx context.Context, accountID string, record wheel.SpinRecord) error {
	m.records[accountID] = record
	return nil
}

func (m *memAccountStore) IssueRedemption(ctx context.Context, accountID, prizeLabel string) (*wheel.PrizeRedemption, error) {
	if m.onIssue != nil {
		m.onIssue()
	}
	m.nextCode++
	now := m.now()
	r := &wheel.PrizeRedemption{
		Code:       fmt.Sprintf("%08x", m.nextCode),
		AccountID:  accountID,
		PrizeLabel: prizeLabel,
		IssuedAt:   now,
	}
	m.redemptions[r.Code] = r
	m.records[accountID] = wheel.SpinRecord{
		LastSpinAt:     &now,
		LastPrizeLabel: &r.PrizeLabel,
		RedemptionCode: &r.Code,
	}
	return r, nil
}

func (m *memAccountStore) LookupRedemption(ctx context.Context, code string) (*wheel.PrizeRedemption, error) {
	r, ok := m.redemptions[code]
	if !ok {
		return nil, apperrors.New(apperrors.ErrRedemptionNotFound, "redemption not found")
	}
	return r, nil
}

func (m *memAccountStore) MarkRedeemed(ctx context.Context, code string) error {
	r, ok := m.redemptions[code]
	if !ok {
		return apperrors.New(apperrors.ErrRedemptionNotFound, "redemption not found")
	}
	r.Redeemed = true
	return nil
}

type capturingNotifier struct {
	issued []*wheel.PrizeRedemption
}

func (c *capturingNotifier) NotifyPrizeIssued(ctx context.Context, redemption *wheel.PrizeRedemption) error {
	c.issued = append(c.issued, redemption)
	return nil
}

type capturingAuditor struct {
	spins     []*providers.SpinEvent
	transfers []*providers.TransferEvent
}

func (c *capturingAuditor) AuditSpin(ctx context.Context, event *providers.SpinEvent) error {
	c.spins = append(c.spins, event)
	return nil
}

func (c *capturingAuditor) AuditTransfer(ctx context.Context, event *providers.TransferEvent) error {
	c.transfers = append(c.transfers, event)
	return nil
}

// rewardRand always draws the first slot (FREE BURGER on the default table).
type rewardRand struct{}

func (rewardRand) Float64() float64 { return 0 }

// blankRand always draws the last slot (NO REWARD on the default table).
type blankRand struct{}

func (blankRand) Float64() float64 { return 0.9999999 }

type testHarness struct {
	service  *SpinService
	guests   *memGuestStore
	accounts *memAccountStore
	notifier *capturingNotifier
	auditor  *capturingAuditor
	now      time.Time
}

func newHarness(t *testing.T, rng wheel.RandFloat64) *testHarness {
	t.Helper()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	table := wheel.MustDefaultTable()
	h := &testHarness{
		guests:   newMemGuestStore(),
		accounts: newMemAccountStore(clock),
		notifier: &capturingNotifier{},
		auditor:  &capturingAuditor{},
		now:      now,
	}
	h.service = NewSpinService(
		table,
		wheel.NewSelector(table, rng),
		wheel.NewCooldownPolicy(72*time.Hour),
		h.guests,
		h.accounts,
		h.auditor,
		h.notifier,
		zerolog.Nop(),
	)
	h.service.now = clock
	return h
}

func TestGuestSpinSavesRecord(t *testing.T) {
	h := newHarness(t, blankRand{})
	identity := wheel.GuestIdentity("device-1")

	result, err := h.service.Spin(context.Background(), identity)
	if err != nil {
		t.Fatalf("Spin() error: %v", err)
	}
	if result.Slot.Label != wheel.NoRewardLabel {
		t.Fatalf("drew %q, fixture expects NO REWARD", result.Slot.Label)
	}
	if result.Redemption != nil {
		t.Error("guest spin must never issue a redemption")
	}

	saved := h.guests.records["device-1"]
	if saved.LastSpinAt == nil || !saved.LastSpinAt.Equal(h.now) {
		t.Errorf("saved record timestamp = %v, want %v", saved.LastSpinAt, h.now)
	}
	if saved.LastPrizeLabel == nil || *saved.LastPrizeLabel != wheel.NoRewardLabel {
		t.Errorf("saved record label = %v", saved.LastPrizeLabel)
	}
	if len(h.auditor.spins) != 1 {
		t.Errorf("expected 1 spin audit event, got %d", len(h.auditor.spins))
	}
}

func TestGuestRewardSpinHoldsPrizeLocally(t *testing.T) {
	h := newHarness(t, rewardRand{})
	identity := wheel.GuestIdentity("device-1")

	result, err := h.service.Spin(context.Background(), identity)
	if err != nil {
		t.Fatalf("Spin() error: %v", err)
	}
	if result.Slot.Label != "FREE BURGER" {
		t.Fatalf("drew %q, fixture expects FREE BURGER", result.Slot.Label)
	}
	// The prize waits on the device until transfer; no code yet.
	if result.Redemption != nil {
		t.Error("guest prize must not mint a redemption")
	}
	if len(h.notifier.issued) != 0 {
		t.Error("guest prize must not notify the admin backend")
	}

	saved := h.guests.records["device-1"]
	if !saved.HasPendingPrize() {
		t.Errorf("guest record should hold a pending prize: %+v", saved)
	}
}

func TestAccountRewardSpinIssuesRedemption(t *testing.T) {
	h := newHarness(t, rewardRand{})
	identity := wheel.AccountIdentity("acct-1")

	result, err := h.service.Spin(context.Background(), identity)
	if err != nil {
		t.Fatalf("Spin() error: %v", err)
	}
	if result.Redemption == nil {
		t.Fatal("account reward spin must issue a redemption")
	}
	if result.Redemption.PrizeLabel != "FREE BURGER" {
		t.Errorf("redemption label = %q", result.Redemption.PrizeLabel)
	}
	if result.Record.RedemptionCode == nil || *result.Record.RedemptionCode != result.Redemption.Code {
		t.Errorf("result record does not carry the code: %+v", result.Record)
	}
	if len(h.notifier.issued) != 1 {
		t.Fatalf("expected 1 admin notification, got %d", len(h.notifier.issued))
	}
	if len(h.auditor.spins) != 1 || h.auditor.spins[0].Code != result.Redemption.Code {
		t.Errorf("spin audit event missing code: %+v", h.auditor.spins)
	}
}

func TestAccountBlankSpinIssuesNothing(t *testing.T) {
	h := newHarness(t, blankRand{})
	identity := wheel.AccountIdentity("acct-1")

	result, err := h.service.Spin(context.Background(), identity)
	if err != nil {
		t.Fatalf("Spin() error: %v", err)
	}
	if result.Redemption != nil {
		t.Error("NO REWARD spin must not issue a redemption")
	}
	if len(h.notifier.issued) != 0 {
		t.Error("NO REWARD spin must not notify the admin backend")
	}
	if len(h.accounts.redemptions) != 0 {
		t.Errorf("redemption store should be empty, got %d", len(h.accounts.redemptions))
	}
}

func TestBlockedSpinLeavesRecordUntouched(t *testing.T) {
	h := newHarness(t, blankRand{})
	identity := wheel.GuestIdentity("device-1")
	ctx := context.Background()

	if _, err := h.service.Spin(ctx, identity); err != nil {
		t.Fatalf("first Spin() error: %v", err)
	}
	h.service.Tick(identity)
	savesAfterFirst := h.guests.saves

	_, err := h.service.Spin(ctx, identity)
	if err == nil {
		t.Fatal("expected second spin inside the window to be rejected")
	}
	if apperrors.GetCode(err) != apperrors.ErrNotEligible {
		t.Errorf("error code = %d, want ErrNotEligible", apperrors.GetCode(err))
	}
	if h.guests.saves != savesAfterFirst {
		t.Error("blocked spin mutated the stored record")
	}
	// A rejected spin must not leave the session stuck.
	if got := h.service.Session(identity); got != SessionIdle {
		t.Errorf("session after blocked spin = %v, want idle", got)
	}
}

func TestEligibilityAfterSpin(t *testing.T) {
	h := newHarness(t, blankRand{})
	identity := wheel.GuestIdentity("device-1")
	ctx := context.Background()

	e, err := h.service.Eligibility(ctx, identity)
	if err != nil {
		t.Fatalf("Eligibility() error: %v", err)
	}
	if !e.Eligible {
		t.Fatal("fresh identity should be eligible")
	}

	if _, err := h.service.Spin(ctx, identity); err != nil {
		t.Fatalf("Spin() error: %v", err)
	}

	e, err = h.service.Eligibility(ctx, identity)
	if err != nil {
		t.Fatalf("Eligibility() error: %v", err)
	}
	if e.Eligible {
		t.Fatal("identity should be blocked right after spinning")
	}
	if e.WholeHours() != 72 || e.WholeMinutes() != 0 {
		t.Errorf("remaining = %dh %dm, want 72h 0m", e.WholeHours(), e.WholeMinutes())
	}
	if want := h.now.Add(72 * time.Hour); !e.NextSpinAt.Equal(want) {
		t.Errorf("NextSpinAt = %v, want %v", e.NextSpinAt, want)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t, blankRand{})
	identity := wheel.GuestIdentity("device-1")
	ctx := context.Background()

	if got := h.service.Session(identity); got != SessionIdle {
		t.Fatalf("initial session = %v, want idle", got)
	}

	if _, err := h.service.Spin(ctx, identity); err != nil {
		t.Fatalf("Spin() error: %v", err)
	}
	if got := h.service.Session(identity); got != SessionResolved {
		t.Fatalf("session after spin = %v, want resolved", got)
	}

	// Eligibility settles a resolved session back to idle.
	if _, err := h.service.Eligibility(ctx, identity); err != nil {
		t.Fatalf("Eligibility() error: %v", err)
	}
	if got := h.service.Session(identity); got != SessionIdle {
		t.Errorf("session after eligibility = %v, want idle", got)
	}
}

func TestSpinInFlightRejected(t *testing.T) {
	h := newHarness(t, blankRand{})
	identity := wheel.GuestIdentity("device-1")

	// Force the spinning state as a concurrent request would.
	if err := h.service.beginSpin(identity); err != nil {
		t.Fatalf("beginSpin() error: %v", err)
	}

	_, err := h.service.Spin(context.Background(), identity)
	if err == nil {
		t.Fatal("expected concurrent spin to be rejected")
	}
	if apperrors.GetCode(err) != apperrors.ErrSpinInFlight {
		t.Errorf("error code = %d, want ErrSpinInFlight", apperrors.GetCode(err))
	}
}

func TestTransferNoGuestRecordIsNoop(t *testing.T) {
	h := newHarness(t, blankRand{})
	ctx := context.Background()

	result, err := h.service.Transfer(ctx, "device-1", "acct-1")
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if result.Transferred {
		t.Error("transfer of an empty device should be a no-op")
	}
	if len(h.auditor.transfers) != 0 {
		t.Error("no-op transfer must not emit an audit event")
	}
}

func TestTransferPendingPrizeIssuesRedemption(t *testing.T) {
	h := newHarness(t, rewardRand{})
	ctx := context.Background()
	guest := wheel.GuestIdentity("device-1")

	if _, err := h.service.Spin(ctx, guest); err != nil {
		t.Fatalf("guest Spin() error: %v", err)
	}

	result, err := h.service.Transfer(ctx, "device-1", "acct-1")
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if !result.Transferred {
		t.Fatal("expected a transfer")
	}
	if result.Redemption == nil || result.Redemption.PrizeLabel != "FREE BURGER" {
		t.Fatalf("expected FREE BURGER redemption, got %+v", result.Redemption)
	}
	if len(h.notifier.issued) != 1 {
		t.Errorf("expected 1 admin notification, got %d", len(h.notifier.issued))
	}

	// Guest storage is cleared only after the account write landed.
	if got := h.guests.records["device-1"]; !got.IsZero() {
		t.Errorf("guest record not cleared: %+v", got)
	}
	if len(h.auditor.transfers) != 1 || h.auditor.transfers[0].Code != result.Redemption.Code {
		t.Errorf("transfer audit event missing code: %+v", h.auditor.transfers)
	}
}

func TestTransferSerializesConcurrentCalls(t *testing.T) {
	h := newHarness(t, rewardRand{})
	ctx := context.Background()
	guest := wheel.GuestIdentity("device-1")

	if _, err := h.service.Spin(ctx, guest); err != nil {
		t.Fatalf("guest Spin() error: %v", err)
	}

	// Hold the first transfer open inside the redemption write so the
	// competing calls below arrive while it is in flight.
	started := make(chan struct{})
	release := make(chan struct{})
	h.accounts.onIssue = func() {
		close(started)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.service.Transfer(ctx, "device-1", "acct-1")
		done <- err
	}()
	<-started

	if _, err := h.service.Transfer(ctx, "device-1", "acct-1"); apperrors.GetCode(err) != apperrors.ErrSpinInFlight {
		t.Errorf("competing transfer error = %v, want ErrSpinInFlight", err)
	}
	if _, err := h.service.Spin(ctx, wheel.AccountIdentity("acct-1")); apperrors.GetCode(err) != apperrors.ErrSpinInFlight {
		t.Errorf("spin during transfer error = %v, want ErrSpinInFlight", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if len(h.accounts.redemptions) != 1 {
		t.Errorf("expected exactly 1 redemption, got %d", len(h.accounts.redemptions))
	}
	if got := h.guests.records["device-1"]; !got.IsZero() {
		t.Errorf("guest record not cleared: %+v", got)
	}
}

func TestTransferCarriesCooldownOver(t *testing.T) {
	h := newHarness(t, blankRand{})
	ctx := context.Background()
	guest := wheel.GuestIdentity("device-1")

	if _, err := h.service.Spin(ctx, guest); err != nil {
		t.Fatalf("guest Spin() error: %v", err)
	}

	result, err := h.service.Transfer(ctx, "device-1", "acct-1")
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if !result.Transferred {
		t.Fatal("expected a transfer")
	}
	if result.Redemption != nil {
		t.Error("NO REWARD history must not mint a redemption")
	}

	// The account is now on cooldown from the guest spin.
	e, err := h.service.Eligibility(ctx, wheel.AccountIdentity("acct-1"))
	if err != nil {
		t.Fatalf("Eligibility() error: %v", err)
	}
	if e.Eligible {
		t.Error("account should inherit the guest cooldown")
	}
}

func TestTransferKeepsLaterAccountSpin(t *testing.T) {
	h := newHarness(t, blankRand{})
	ctx := context.Background()

	older := h.now.Add(-48 * time.Hour)
	newer := h.now.Add(-2 * time.Hour)
	blank := wheel.NoRewardLabel
	h.guests.records["device-1"] = wheel.SpinRecord{LastSpinAt: &older, LastPrizeLabel: &blank}
	h.accounts.records["acct-1"] = wheel.SpinRecord{LastSpinAt: &newer, LastPrizeLabel: &blank}

	result, err := h.service.Transfer(ctx, "device-1", "acct-1")
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if result.Record.LastSpinAt == nil || !result.Record.LastSpinAt.Equal(newer) {
		t.Errorf("merged record kept %v, want the later account spin %v", result.Record.LastSpinAt, newer)
	}
}

func TestTransferIsIdempotent(t *testing.T) {
	h := newHarness(t, rewardRand{})
	ctx := context.Background()

	if _, err := h.service.Spin(ctx, wheel.GuestIdentity("device-1")); err != nil {
		t.Fatalf("guest Spin() error: %v", err)
	}

	first, err := h.service.Transfer(ctx, "device-1", "acct-1")
	if err != nil {
		t.Fatalf("first Transfer() error: %v", err)
	}
	second, err := h.service.Transfer(ctx, "device-1", "acct-1")
	if err != nil {
		t.Fatalf("replayed Transfer() error: %v", err)
	}

	if !first.Transferred || second.Transferred {
		t.Errorf("Transferred flags = %v, %v; want true, false", first.Transferred, second.Transferred)
	}
	if len(h.accounts.redemptions) != 1 {
		t.Errorf("replay minted extra redemptions: %d", len(h.accounts.redemptions))
	}
	// The replay reports the account's existing state.
	if second.Record.RedemptionCode == nil || *second.Record.RedemptionCode != first.Redemption.Code {
		t.Errorf("replay record = %+v, want existing redemption %s", second.Record, first.Redemption.Code)
	}
}

func TestRandomDrawAlwaysLandsOnDrawnSlot(t *testing.T) {
	h := newHarness(t, rand.New(rand.NewSource(3)))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		identity := wheel.GuestIdentity(fmt.Sprintf("device-%d", i))
		result, err := h.service.Spin(ctx, identity)
		if err != nil {
			t.Fatalf("Spin() error: %v", err)
		}
		if got := h.service.Table().OutcomeForAngle(result.Angle); got.Label != result.Slot.Label {
			t.Fatalf("angle %v maps to %q, outcome was %q", result.Angle, got.Label, result.Slot.Label)
		}
	}
}

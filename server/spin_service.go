package server

import (
	"context"
	"sync"
	"time"

	"github.com/buckneer/beastie-club/errors"
	"github.com/buckneer/beastie-club/pkg/providers"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/rs/zerolog"
)

// SessionState tracks where an identity is in the spin lifecycle.
type SessionState int

const (
	// SessionIdle means no spin is in progress.
	SessionIdle SessionState = iota
	// SessionSpinning means a spin is being resolved; further spins are rejected.
	SessionSpinning
	// SessionResolved means the outcome is known and the client animation
	// has not acknowledged it yet.
	SessionResolved
)

func (s SessionState) String() string {
	switch s {
	case SessionSpinning:
		return "spinning"
	case SessionResolved:
		return "resolved"
	default:
		return "idle"
	}
}

// SpinResult is the resolved outcome of a single spin.
type SpinResult struct {
	Slot       wheel.PrizeSlot
	Angle      float64
	Record     wheel.SpinRecord
	Redemption *wheel.PrizeRedemption
}

// TransferResult describes what a guest-to-account transfer produced.
type TransferResult struct {
	Transferred bool
	Redemption  *wheel.PrizeRedemption
	Record      wheel.SpinRecord
}

// SpinService orchestrates the full spin flow
//
// Flow: wheelRoutes -> WheelHandler -> SpinService -> stores
//
// The service:
// 1. Serializes spins per identity through the session table
// 2. Checks cooldown eligibility against the stored record
// 3. Draws a weighted outcome and landing angle
// 4. Persists the record (guest) or issues a redemption (account)
// 5. Publishes audit events
type SpinService struct {
	table        *wheel.Table
	selector     *wheel.Selector
	cooldown     wheel.CooldownPolicy
	guestStore   providers.GuestStore
	accountStore providers.AccountStore
	auditor      providers.SpinAuditor
	notifier     providers.AdminNotifier
	logger       zerolog.Logger
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]SessionState
}

// NewSpinService creates a new spin service
func NewSpinService(
	table *wheel.Table,
	selector *wheel.Selector,
	cooldown wheel.CooldownPolicy,
	guestStore providers.GuestStore,
	accountStore providers.AccountStore,
	auditor providers.SpinAuditor,
	notifier providers.AdminNotifier,
	logger zerolog.Logger,
) *SpinService {
	return &SpinService{
		table:        table,
		selector:     selector,
		cooldown:     cooldown,
		guestStore:   guestStore,
		accountStore: accountStore,
		auditor:      auditor,
		notifier:     notifier,
		logger:       logger.With().Str("service", "spin").Logger(),
		now:          time.Now,
		sessions:     make(map[string]SessionState),
	}
}

// Table returns the active prize table
func (s *SpinService) Table() *wheel.Table {
	return s.table
}

// Session returns the current session state for an identity
func (s *SpinService) Session(identity wheel.Identity) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[identity.String()]
}

// Tick acknowledges a delivered outcome, returning the session to idle.
// Clients call this when the wheel animation finishes.
func (s *SpinService) Tick(identity wheel.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[identity.String()] == SessionResolved {
		delete(s.sessions, identity.String())
	}
}

// beginSpin transitions the session to spinning, rejecting concurrent spins.
func (s *SpinService) beginSpin(identity wheel.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[identity.String()] == SessionSpinning {
		return errors.New(errors.ErrSpinInFlight, "spin already in progress")
	}
	s.sessions[identity.String()] = SessionSpinning
	return nil
}

func (s *SpinService) endSpin(identity wheel.Identity, resolved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resolved {
		s.sessions[identity.String()] = SessionResolved
	} else {
		delete(s.sessions, identity.String())
	}
}

// loadRecord loads the spin record for either kind of identity
func (s *SpinService) loadRecord(ctx context.Context, identity wheel.Identity) (wheel.SpinRecord, error) {
	if identity.IsAccount() {
		return s.accountStore.Load(ctx, identity.AccountID)
	}
	return s.guestStore.Load(ctx, identity.DeviceID)
}

// Eligibility evaluates the cooldown for an identity. It never mutates
// the stored record; it only settles a resolved session back to idle.
func (s *SpinService) Eligibility(ctx context.Context, identity wheel.Identity) (wheel.Eligibility, error) {
	s.Tick(identity)

	record, err := s.loadRecord(ctx, identity)
	if err != nil {
		return wheel.Eligibility{}, err
	}
	return s.cooldown.Evaluate(record.LastSpinAt, s.now()), nil
}

// RedemptionStatus looks up a redemption by code for the prize display.
func (s *SpinService) RedemptionStatus(ctx context.Context, code string) (*wheel.PrizeRedemption, error) {
	return s.accountStore.LookupRedemption(ctx, code)
}

// Spin resolves one spin end to end. A blocked or failed spin leaves the
// stored record untouched.
func (s *SpinService) Spin(ctx context.Context, identity wheel.Identity) (*SpinResult, error) {
	if err := s.beginSpin(identity); err != nil {
		return nil, err
	}

	result, err := s.resolveSpin(ctx, identity)
	s.endSpin(identity, err == nil)
	return result, err
}

func (s *SpinService) resolveSpin(ctx context.Context, identity wheel.Identity) (*SpinResult, error) {
	record, err := s.loadRecord(ctx, identity)
	if err != nil {
		return nil, err
	}

	now := s.now()
	eligibility := s.cooldown.Evaluate(record.LastSpinAt, now)
	if !eligibility.Eligible {
		return nil, errors.WrapWithDebug(&wheel.NotEligibleError{Eligibility: eligibility},
			errors.ErrNotEligible, eligibility.WaitMessage(),
			"next spin at "+eligibility.NextSpinAt.Format(time.RFC3339))
	}

	slot, angle := s.selector.SelectLanding()

	result := &SpinResult{
		Slot:  slot,
		Angle: angle,
	}

	if identity.IsAccount() && slot.GrantsReward() {
		redemption, err := s.accountStore.IssueRedemption(ctx, identity.AccountID, slot.Label)
		if err != nil {
			return nil, err
		}
		result.Redemption = redemption
		result.Record = wheel.SpinRecord{
			LastSpinAt:     &redemption.IssuedAt,
			LastPrizeLabel: &redemption.PrizeLabel,
			RedemptionCode: &redemption.Code,
		}
		s.notifyPrizeIssued(ctx, redemption)
	} else {
		label := slot.Label
		newRecord := wheel.SpinRecord{
			LastSpinAt:     &now,
			LastPrizeLabel: &label,
		}
		if err := s.saveRecord(ctx, identity, newRecord); err != nil {
			return nil, err
		}
		result.Record = newRecord
	}

	s.auditSpin(ctx, identity, result)

	s.logger.Info().
		Str("identity", identity.String()).
		Str("prize", slot.Label).
		Float64("angle", angle).
		Msg("Spin resolved")

	return result, nil
}

func (s *SpinService) saveRecord(ctx context.Context, identity wheel.Identity, record wheel.SpinRecord) error {
	if identity.IsAccount() {
		return s.accountStore.Save(ctx, identity.AccountID, record)
	}
	return s.guestStore.Save(ctx, identity.DeviceID, record)
}

// Transfer moves a guest device record onto an account. A pending guest
// prize becomes a real redemption; a device with no record is a no-op, so
// replays after sign-in are harmless.
func (s *SpinService) Transfer(ctx context.Context, deviceID, accountID string) (*TransferResult, error) {
	// A transfer occupies both sessions so no spin or second transfer can
	// interleave with it and double-mint the guest prize.
	guest := wheel.GuestIdentity(deviceID)
	if err := s.beginSpin(guest); err != nil {
		return nil, err
	}
	defer s.endSpin(guest, false)
	account := wheel.AccountIdentity(accountID)
	if err := s.beginSpin(account); err != nil {
		return nil, err
	}
	defer s.endSpin(account, false)

	guestRecord, err := s.guestStore.Load(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if guestRecord.IsZero() {
		record, err := s.accountStore.Load(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return &TransferResult{Transferred: false, Record: record}, nil
	}

	result := &TransferResult{Transferred: true}

	if guestRecord.HasPendingPrize() {
		redemption, err := s.accountStore.IssueRedemption(ctx, accountID, *guestRecord.LastPrizeLabel)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTransferFailed, "failed to issue redemption for transferred prize")
		}
		result.Redemption = redemption
		result.Record = wheel.SpinRecord{
			LastSpinAt:     &redemption.IssuedAt,
			LastPrizeLabel: &redemption.PrizeLabel,
			RedemptionCode: &redemption.Code,
		}
		s.notifyPrizeIssued(ctx, redemption)
	} else {
		accountRecord, err := s.accountStore.Load(ctx, accountID)
		if err != nil {
			return nil, err
		}
		// Carry the cooldown over: keep whichever last spin is later.
		merged := accountRecord
		if merged.LastSpinAt == nil ||
			(guestRecord.LastSpinAt != nil && guestRecord.LastSpinAt.After(*merged.LastSpinAt)) {
			merged.LastSpinAt = guestRecord.LastSpinAt
			merged.LastPrizeLabel = guestRecord.LastPrizeLabel
		}
		if err := s.accountStore.Save(ctx, accountID, merged); err != nil {
			return nil, errors.Wrap(err, errors.ErrTransferFailed, "failed to merge transferred record")
		}
		result.Record = merged
	}

	// Clearing last makes the transfer idempotent: a failure before this
	// point leaves the guest record intact for a retry.
	if err := s.guestStore.Clear(ctx, deviceID); err != nil {
		return nil, errors.Wrap(err, errors.ErrTransferFailed, "failed to clear guest record")
	}

	s.auditTransfer(ctx, deviceID, accountID, result)

	s.logger.Info().
		Str("device_id", deviceID).
		Str("account_id", accountID).
		Bool("redemption_issued", result.Redemption != nil).
		Msg("Guest record transferred")

	return result, nil
}

func (s *SpinService) notifyPrizeIssued(ctx context.Context, redemption *wheel.PrizeRedemption) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPrizeIssued(ctx, redemption); err != nil {
		s.logger.Warn().Err(err).Str("code", redemption.Code).Msg("Failed to notify admin backend")
	}
}

func (s *SpinService) auditSpin(ctx context.Context, identity wheel.Identity, result *SpinResult) {
	if s.auditor == nil {
		return
	}
	event := &providers.SpinEvent{
		Identity:   identity.String(),
		PrizeLabel: result.Slot.Label,
		Angle:      result.Angle,
		Timestamp:  s.now().UTC(),
	}
	if result.Redemption != nil {
		event.Code = result.Redemption.Code
	}
	if err := s.auditor.AuditSpin(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to audit spin")
	}
}

func (s *SpinService) auditTransfer(ctx context.Context, deviceID, accountID string, result *TransferResult) {
	if s.auditor == nil {
		return
	}
	event := &providers.TransferEvent{
		DeviceID:  deviceID,
		AccountID: accountID,
		Timestamp: s.now().UTC(),
	}
	if result.Redemption != nil {
		event.Code = result.Redemption.Code
		event.PrizeLabel = result.Redemption.PrizeLabel
	}
	if err := s.auditor.AuditTransfer(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to audit transfer")
	}
}

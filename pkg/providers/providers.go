package providers

import (
	"context"
	"time"

	"github.com/buckneer/beastie-club/wheel"
)

// GuestStore persists the spin record of an unauthenticated installation.
// Loading a device that never spun returns a zero record, not an error.
type GuestStore interface {
	Load(ctx context.Context, deviceID string) (wheel.SpinRecord, error)
	Save(ctx context.Context, deviceID string, record wheel.SpinRecord) error
	Clear(ctx context.Context, deviceID string) error
}

// AccountStore persists spin records and prize redemptions for signed-in
// accounts. Loading an account with no record returns a zero record.
type AccountStore interface {
	Load(ctx context.Context, accountID string) (wheel.SpinRecord, error)
	Save(ctx context.Context, accountID string, record wheel.SpinRecord) error

	// IssueRedemption creates a redemption document for prizeLabel and
	// mirrors it onto the account record. The returned redemption carries
	// the generated code.
	IssueRedemption(ctx context.Context, accountID, prizeLabel string) (*wheel.PrizeRedemption, error)

	// LookupRedemption finds a redemption by its code.
	LookupRedemption(ctx context.Context, code string) (*wheel.PrizeRedemption, error)

	// MarkRedeemed flips the redeemed flag on a redemption. The flag is
	// monotonic; marking an already redeemed code is a no-op.
	MarkRedeemed(ctx context.Context, code string) error
}

// SpinEvent is the audit record emitted for every resolved spin
type SpinEvent struct {
	Identity   string    `json:"identity"`
	PrizeLabel string    `json:"prizeLabel"`
	Angle      float64   `json:"angle"`
	Code       string    `json:"code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TransferEvent is the audit record emitted when a guest record moves to
// an account
type TransferEvent struct {
	DeviceID   string    `json:"deviceId"`
	AccountID  string    `json:"accountId"`
	PrizeLabel string    `json:"prizeLabel,omitempty"`
	Code       string    `json:"code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SpinAuditor publishes spin and transfer events for downstream consumers.
// Audit failures never fail the spin itself.
type SpinAuditor interface {
	AuditSpin(ctx context.Context, event *SpinEvent) error
	AuditTransfer(ctx context.Context, event *TransferEvent) error
}

// AdminNotifier pushes a notification to the operator backend when a
// reward prize is issued
type AdminNotifier interface {
	NotifyPrizeIssued(ctx context.Context, redemption *wheel.PrizeRedemption) error
}

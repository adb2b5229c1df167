package wheel

import (
	"encoding/json"
	"fmt"
	"time"
)

// NoRewardLabel marks a slot that grants nothing. Label matching is exact and
// case-sensitive, mirroring the prize catalog.
const NoRewardLabel = "NO REWARD"

// PrizeSlot is one weighted entry on the wheel, covering an angle range.
// Slots partition [0, 360) with no gaps or overlaps; the wrap-around slot
// (AngleFrom > AngleTo) is allowed.
type PrizeSlot struct {
	Label       string  `mapstructure:"label" json:"label"`
	AngleFrom   float64 `mapstructure:"angle_from" json:"angleFrom"`
	AngleTo     float64 `mapstructure:"angle_to" json:"angleTo"`
	AngleCenter float64 `mapstructure:"angle_center" json:"angleCenter"`
	Weight      float64 `mapstructure:"weight" json:"weight"`
}

// GrantsReward reports whether landing on this slot entitles the player to a
// redemption.
func (s PrizeSlot) GrantsReward() bool {
	return s.Label != NoRewardLabel
}

// Contains reports whether angle falls inside the slot's half-open range,
// wrapping across 0 when AngleFrom > AngleTo.
func (s PrizeSlot) Contains(angle float64) bool {
	if s.AngleFrom > s.AngleTo {
		return angle >= s.AngleFrom || angle < s.AngleTo
	}
	return angle >= s.AngleFrom && angle < s.AngleTo
}

// IdentityKind distinguishes guest and account identities.
type IdentityKind int

const (
	// IdentityGuest is an unauthenticated, device-local identity.
	IdentityGuest IdentityKind = iota
	// IdentityAccount is an authenticated identity with a durable remote record.
	IdentityAccount
)

func (k IdentityKind) String() string {
	if k == IdentityAccount {
		return "account"
	}
	return "guest"
}

// Identity names the subject of a spin: either a guest keyed by device, or a
// signed-in account. An identity moves from guest to account exactly once, at
// sign-in; signing out yields a fresh guest with no restored record.
type Identity struct {
	Kind      IdentityKind
	AccountID string
	DeviceID  string
}

// GuestIdentity builds a guest identity for a device.
func GuestIdentity(deviceID string) Identity {
	return Identity{Kind: IdentityGuest, DeviceID: deviceID}
}

// AccountIdentity builds an account identity.
func AccountIdentity(accountID string) Identity {
	return Identity{Kind: IdentityAccount, AccountID: accountID}
}

// IsAccount reports whether the identity is a signed-in account.
func (id Identity) IsAccount() bool {
	return id.Kind == IdentityAccount
}

// Subject returns the identifying string for logging and audit events.
func (id Identity) Subject() string {
	if id.Kind == IdentityAccount {
		return id.AccountID
	}
	return id.DeviceID
}

func (id Identity) String() string {
	return fmt.Sprintf("%s:%s", id.Kind, id.Subject())
}

// SpinRecord is the per-identity spin state. The zero value means "never spun"
// and is what stores return when no record exists.
type SpinRecord struct {
	LastSpinAt     *time.Time `json:"lastSpinAt,omitempty"`
	LastPrizeLabel *string    `json:"lastPrizeLabel,omitempty"`
	RedemptionCode *string    `json:"redemptionCode,omitempty"`
}

// IsZero reports whether the record carries no spin history.
func (r SpinRecord) IsZero() bool {
	return r.LastSpinAt == nil && r.LastPrizeLabel == nil && r.RedemptionCode == nil
}

// HasPendingPrize reports whether the record holds a transferable prize: a
// last prize that actually grants something.
func (r SpinRecord) HasPendingPrize() bool {
	return r.LastPrizeLabel != nil && *r.LastPrizeLabel != NoRewardLabel
}

// ToJSON serializes the record for storage.
func (r SpinRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// SpinRecordFromJSON deserializes a stored record.
func SpinRecordFromJSON(data []byte) (SpinRecord, error) {
	var r SpinRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return SpinRecord{}, err
	}
	return r, nil
}

// PrizeRedemption is a claimable prize entry, minted once per winning
// authenticated spin (or guest transfer). Code is globally unique; Redeemed is
// monotonic and never reverts to false.
type PrizeRedemption struct {
	Code       string    `json:"uniqueCode"`
	AccountID  string    `json:"accountId"`
	PrizeLabel string    `json:"prizeLabel"`
	IssuedAt   time.Time `json:"issuedAt"`
	Redeemed   bool      `json:"redeemed"`
}

// ToJSON serializes the redemption for storage.
func (p *PrizeRedemption) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// RedemptionFromJSON deserializes a stored redemption.
func RedemptionFromJSON(data []byte) (*PrizeRedemption, error) {
	var p PrizeRedemption
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	coreredis "github.com/buckneer/beastie-club/db/redis"
	apperrors "github.com/buckneer/beastie-club/errors"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/rs/zerolog"
)

const codeAttempts = 5

// redisKV is the subset of the Redis client the store needs. Tests swap in
// an in-memory implementation.
type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// AccountStore implements providers.AccountStore on Redis.
//
// Layout:
//
//	users:<accountID>        spin record document (JSON)
//	prizes:<code>            redemption document (JSON), created with SETNX
//	prizes:latest:<accountID> code of the most recently issued redemption
//
// The redemption document is the source of truth; the account record only
// mirrors it. If the mirror write is lost, the latest-code index recovers
// the pending prize on the next load.
type AccountStore struct {
	kv     redisKV
	logger zerolog.Logger
	now    func() time.Time
}

// NewAccountStore creates a new Redis-backed account store
func NewAccountStore(redisClient *coreredis.Client, logger zerolog.Logger) *AccountStore {
	return newAccountStore(redisClient, logger)
}

func newAccountStore(kv redisKV, logger zerolog.Logger) *AccountStore {
	return &AccountStore{
		kv:     kv,
		logger: logger.With().Str("component", "account_store").Logger(),
		now:    time.Now,
	}
}

func (p *AccountStore) recordKey(accountID string) string {
	return fmt.Sprintf("users:%s", accountID)
}

func (p *AccountStore) redemptionKey(code string) string {
	return fmt.Sprintf("prizes:%s", code)
}

func (p *AccountStore) latestKey(accountID string) string {
	return fmt.Sprintf("prizes:latest:%s", accountID)
}

// Load retrieves the account spin record
func (p *AccountStore) Load(ctx context.Context, accountID string) (wheel.SpinRecord, error) {
	var record wheel.SpinRecord
	data, err := p.kv.Get(ctx, p.recordKey(accountID))
	switch {
	case err == nil:
		record, err = wheel.SpinRecordFromJSON([]byte(data))
		if err != nil {
			return wheel.SpinRecord{}, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "corrupt account record")
		}
	case errors.Is(err, coreredis.ErrNotFound):
		// A missing record still goes through recovery below.
	default:
		return wheel.SpinRecord{}, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to load account record")
	}

	// A redemption exists but the mirror write was lost: recover the
	// pending prize from the latest-code index.
	if record.RedemptionCode == nil {
		p.recoverPendingPrize(ctx, accountID, &record)
	}

	return record, nil
}

func (p *AccountStore) recoverPendingPrize(ctx context.Context, accountID string, record *wheel.SpinRecord) {
	code, err := p.kv.Get(ctx, p.latestKey(accountID))
	if err != nil {
		return
	}

	redemption, err := p.LookupRedemption(ctx, code)
	if err != nil || redemption.Redeemed {
		return
	}

	// A record saved by a spin after the indexed redemption legitimately
	// has no code (the spin landed on nothing); only a record older than
	// the redemption can have lost the mirror write.
	if record.LastSpinAt != nil && record.LastSpinAt.After(redemption.IssuedAt) {
		return
	}

	p.logger.Warn().
		Str("account_id", accountID).
		Str("code", code).
		Msg("Recovered pending prize from redemption index")

	record.RedemptionCode = &redemption.Code
	record.LastPrizeLabel = &redemption.PrizeLabel
	if record.LastSpinAt == nil {
		issuedAt := redemption.IssuedAt
		record.LastSpinAt = &issuedAt
	}
}

// Save stores the account spin record
func (p *AccountStore) Save(ctx context.Context, accountID string, record wheel.SpinRecord) error {
	data, err := record.ToJSON()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to marshal account record")
	}
	if err := p.kv.Set(ctx, p.recordKey(accountID), data, 0); err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to save account record")
	}
	return nil
}

// IssueRedemption creates a redemption document for the prize and mirrors
// it onto the account record
func (p *AccountStore) IssueRedemption(ctx context.Context, accountID, prizeLabel string) (*wheel.PrizeRedemption, error) {
	now := p.now()

	redemption, err := p.reserveCode(ctx, accountID, prizeLabel, now)
	if err != nil {
		return nil, err
	}

	// Point the index at the new code before the mirror write so a crash
	// in between still leaves the prize recoverable.
	if err := p.kv.Set(ctx, p.latestKey(accountID), redemption.Code, 0); err != nil {
		p.logger.Warn().Err(err).
			Str("account_id", accountID).
			Str("code", redemption.Code).
			Msg("Failed to update latest redemption index")
	}

	record := wheel.SpinRecord{
		LastSpinAt:     &now,
		LastPrizeLabel: &redemption.PrizeLabel,
		RedemptionCode: &redemption.Code,
	}
	if err := p.Save(ctx, accountID, record); err != nil {
		// The redemption document exists and is indexed; the prize is
		// safe even though the mirror is stale.
		p.logger.Warn().Err(err).
			Str("account_id", accountID).
			Str("code", redemption.Code).
			Msg("Failed to mirror redemption onto account record")
	}

	return redemption, nil
}

func (p *AccountStore) reserveCode(ctx context.Context, accountID, prizeLabel string, issuedAt time.Time) (*wheel.PrizeRedemption, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeCollision, "failed to generate redemption code")
		}

		redemption := &wheel.PrizeRedemption{
			Code:       code,
			AccountID:  accountID,
			PrizeLabel: prizeLabel,
			IssuedAt:   issuedAt,
			Redeemed:   false,
		}

		data, err := redemption.ToJSON()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to marshal redemption")
		}

		ok, err := p.kv.SetNX(ctx, p.redemptionKey(code), data, 0)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to reserve redemption code")
		}
		if ok {
			return redemption, nil
		}

		p.logger.Debug().
			Str("code", code).
			Int("attempt", attempt+1).
			Msg("Redemption code collision, retrying")
	}

	return nil, apperrors.New(apperrors.ErrCodeCollision, "exhausted redemption code attempts")
}

// LookupRedemption finds a redemption by code
func (p *AccountStore) LookupRedemption(ctx context.Context, code string) (*wheel.PrizeRedemption, error) {
	data, err := p.kv.Get(ctx, p.redemptionKey(code))
	if err != nil {
		if errors.Is(err, coreredis.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrRedemptionNotFound, "redemption not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to load redemption")
	}

	redemption, err := wheel.RedemptionFromJSON([]byte(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "corrupt redemption document")
	}
	return redemption, nil
}

// MarkRedeemed flips the redeemed flag on a redemption. Already redeemed
// codes are left untouched.
func (p *AccountStore) MarkRedeemed(ctx context.Context, code string) error {
	redemption, err := p.LookupRedemption(ctx, code)
	if err != nil {
		return err
	}
	if redemption.Redeemed {
		return nil
	}

	redemption.Redeemed = true
	data, err := redemption.ToJSON()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to marshal redemption")
	}
	if err := p.kv.Set(ctx, p.redemptionKey(code), data, 0); err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to mark redemption")
	}

	p.logger.Info().
		Str("code", code).
		Str("account_id", redemption.AccountID).
		Msg("Redemption marked as redeemed")
	return nil
}

// generateCode returns an 8 character lowercase hex code
func generateCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

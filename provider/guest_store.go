package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/buckneer/beastie-club/db/localkv"
	apperrors "github.com/buckneer/beastie-club/errors"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/rs/zerolog"
)

// GuestStore implements providers.GuestStore on the local SQLite
// key-value store, one record per device installation.
type GuestStore struct {
	store  *localkv.Store
	logger zerolog.Logger
}

// NewGuestStore creates a new local guest store
func NewGuestStore(store *localkv.Store, logger zerolog.Logger) *GuestStore {
	return &GuestStore{
		store:  store,
		logger: logger.With().Str("component", "guest_store").Logger(),
	}
}

func (p *GuestStore) recordKey(deviceID string) string {
	return fmt.Sprintf("guest_spin:%s", deviceID)
}

// Load retrieves the guest spin record for a device
func (p *GuestStore) Load(ctx context.Context, deviceID string) (wheel.SpinRecord, error) {
	data, err := p.store.GetItem(ctx, p.recordKey(deviceID))
	if err != nil {
		if errors.Is(err, localkv.ErrNotFound) {
			return wheel.SpinRecord{}, nil
		}
		return wheel.SpinRecord{}, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to load guest record")
	}

	record, err := wheel.SpinRecordFromJSON([]byte(data))
	if err != nil {
		return wheel.SpinRecord{}, apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "corrupt guest record")
	}
	return record, nil
}

// Save stores the guest spin record for a device
func (p *GuestStore) Save(ctx context.Context, deviceID string, record wheel.SpinRecord) error {
	data, err := record.ToJSON()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to marshal guest record")
	}
	if err := p.store.SetItem(ctx, p.recordKey(deviceID), string(data)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to save guest record")
	}
	return nil
}

// Clear removes the guest spin record for a device
func (p *GuestStore) Clear(ctx context.Context, deviceID string) error {
	if err := p.store.RemoveItem(ctx, p.recordKey(deviceID)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable, "failed to clear guest record")
	}
	p.logger.Debug().Str("device_id", deviceID).Msg("Guest record cleared")
	return nil
}

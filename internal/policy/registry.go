package policy

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// Registry is the per-app LED profile store. Profiles are decoded from the
// preference store on every Get; nothing is cached across calls.
type Registry struct {
	store       domain.PreferenceStore
	broadcaster domain.Broadcaster
	logger      *zap.Logger
}

// NewRegistry creates a profile store over store. broadcaster may be nil.
func NewRegistry(store domain.PreferenceStore, broadcaster domain.Broadcaster, logger *zap.Logger) *Registry {
	return &Registry{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Get resolves the profile for appID.
// An app without a record gets the default profile, disabled.
func (r *Registry) Get(appID string) (domain.LedProfile, error) {
	records, err := r.store.GetStringSet(appID)
	if err != nil {
		return domain.NewLedProfile(appID), fmt.Errorf("failed to read profile %s: %w", appID, err)
	}

	if records == nil {
		if appID == domain.DefaultAppID {
			return domain.NewLedProfile(appID), nil
		}
		def, err := r.Get(domain.DefaultAppID)
		def.AppID = appID
		def.Enabled = false
		return def, err
	}

	p, errs := DecodeProfile(appID, records)
	for _, e := range errs {
		r.logger.Warn("dropped malformed profile field",
			zap.String("app", appID),
			zap.Error(e))
	}
	return p, nil
}

// Save validates p, writes its records and broadcasts the change.
func (r *Registry) Save(ctx context.Context, p domain.LedProfile) error {
	if err := Validate(p); err != nil {
		return err
	}
	if err := r.store.PutStringSet(p.AppID, EncodeProfile(p)); err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.AppID, err)
	}
	r.logger.Info("profile saved", zap.String("app", p.AppID))
	r.notify(ctx, p.AppID)
	return nil
}

// Delete removes the record for appID.
func (r *Registry) Delete(ctx context.Context, appID string) error {
	if err := r.store.DeleteStringSet(appID); err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", appID, err)
	}
	r.notify(ctx, appID)
	return nil
}

// List returns app IDs that have a persisted record.
func (r *Registry) List() ([]string, error) {
	return r.store.ListStringSets()
}

// SetLocked sets the global lock flag that makes quiet hours inert.
func (r *Registry) SetLocked(ctx context.Context, locked bool) error {
	if err := r.store.PutString(KeyLocked, strconv.FormatBool(locked)); err != nil {
		return fmt.Errorf("failed to set lock: %w", err)
	}
	r.notify(ctx, KeyLocked)
	return nil
}

// notify logs broadcast failures instead of returning them.
func (r *Registry) notify(ctx context.Context, key string) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.SettingsChanged(ctx, key); err != nil {
		r.logger.Warn("settings broadcast failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// Ensure Registry implements domain.ProfileStore.
var _ domain.ProfileStore = (*Registry)(nil)

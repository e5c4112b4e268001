package ports

import (
	"context"
	"orion/internal/models"
)

// IKeyBundleRepository is durable, race-safe storage of prekey material.
type IKeyBundleRepository interface {
	// PutIdentity upserts the identity for identity.UserID, overwriting
	// any previous registration.
	PutIdentity(ctx context.Context, identity *models.Identity) error

	// PutPreKeys replaces the user's signed prekey and one-time prekey
	// pool. All previously stored prekeys for the user are cleared
	// before the new material is written, so stale keys are never
	// issued after a client re-synchronizes its batch.
	PutPreKeys(ctx context.Context, userID string, signed models.SignedPreKey, oneTime []models.OneTimePreKey) error

	// GetBundle assembles a bundle for userID, consuming at most one
	// one-time prekey in the same logical operation. When two
	// requesters race for the last one-time prekey, at most one
	// receives it.
	GetBundle(ctx context.Context, userID string) (*models.KeyBundle, error)
}

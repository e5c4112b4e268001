package repositories

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"orion/internal/models"
)

//go:embed migrations/001_create_signal_identities_up.sql
var createIdentitiesTableQuery string

//go:embed migrations/002_create_signal_prekeys_up.sql
var createPreKeysTableQuery string

// ErrIdentityNotFound is returned by GetBundle when no identity has
// been registered for the requested user.
var ErrIdentityNotFound = errors.New("identity not found")

type KeyBundleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewKeyBundleRepository(db *sql.DB, logger *slog.Logger) (*KeyBundleRepository, error) {
	repo := KeyBundleRepository{db: db, logger: logger}
	if _, err := repo.db.Exec(createIdentitiesTableQuery); err != nil {
		return nil, err
	}
	if _, err := repo.db.Exec(createPreKeysTableQuery); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (r *KeyBundleRepository) PutIdentity(ctx context.Context, identity *models.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signal_identities (user_id, public_key, signing_key, registration_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			public_key = excluded.public_key,
			signing_key = excluded.signing_key,
			registration_id = excluded.registration_id,
			updated_at = now()`,
		identity.UserID, identity.PublicKey, identity.SigningKey, identity.RegistrationID)
	return err
}

func (r *KeyBundleRepository) PutPreKeys(ctx context.Context, userID string, signed models.SignedPreKey, oneTime []models.OneTimePreKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Stale prekeys must never be issued after a client re-uploads its
	// batch, so the old pool goes first.
	if _, err := tx.ExecContext(ctx, "DELETE FROM signal_prekeys WHERE user_id = $1", userID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO signal_prekeys (user_id, key_id, public_key, signature, kind)
		VALUES ($1, $2, $3, $4, 'signed')`,
		userID, signed.KeyID, signed.PublicKey, signed.Signature)
	if err != nil {
		return err
	}

	for _, pk := range oneTime {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO signal_prekeys (user_id, key_id, public_key, kind)
			VALUES ($1, $2, $3, 'one_time')`,
			userID, pk.KeyID, pk.PublicKey)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *KeyBundleRepository) GetBundle(ctx context.Context, userID string) (*models.KeyBundle, error) {
	var bundle models.KeyBundle

	err := r.db.QueryRowContext(ctx,
		"SELECT public_key, signing_key, registration_id FROM signal_identities WHERE user_id = $1",
		userID).Scan(&bundle.IdentityKey, &bundle.SigningKey, &bundle.RegistrationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	err = r.db.QueryRowContext(ctx,
		"SELECT key_id, public_key, signature FROM signal_prekeys WHERE user_id = $1 AND kind = 'signed'",
		userID).Scan(&bundle.SignedPreKey.KeyID, &bundle.SignedPreKey.PublicKey, &bundle.SignedPreKey.Signature)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	// Select-then-delete in one statement so concurrent requesters can
	// never be handed the same one-time prekey. SKIP LOCKED makes the
	// loser of a race move on to the next candidate (or none) instead
	// of blocking.
	var oneTime models.OneTimePreKey
	err = r.db.QueryRowContext(ctx, `
		WITH candidate AS (
			SELECT id FROM signal_prekeys
			WHERE user_id = $1 AND kind = 'one_time'
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		DELETE FROM signal_prekeys p USING candidate c
		WHERE p.id = c.id
		RETURNING p.key_id, p.public_key`,
		userID).Scan(&oneTime.KeyID, &oneTime.PublicKey)
	switch {
	case err == sql.ErrNoRows:
		// Pool exhausted; a bundle without one-time material is a
		// supported degraded mode.
	case err != nil:
		return nil, fmt.Errorf("consume one-time prekey: %w", err)
	default:
		bundle.OneTimePreKey = &oneTime
	}

	return &bundle, nil
}

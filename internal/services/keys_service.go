package services

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Orion Messenger.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Orion Messenger. All rights reserved.

import (
	"context"
	"errors"
	"log/slog"
	"orion/internal/models"
	"orion/internal/ports"
	"orion/internal/repositories"
)

const (
	curveKeySize   = 32
	signingKeySize = 32
	signatureSize  = 64
)

// KeyBundleService fronts the key distribution store: identity
// registration, prekey uploads and bundle issuance.
type KeyBundleService struct {
	repo   ports.IKeyBundleRepository
	logger *slog.Logger
}

func NewKeyBundleService(repo ports.IKeyBundleRepository, logger *slog.Logger) *KeyBundleService {
	return &KeyBundleService{repo: repo, logger: logger}
}

func (s *KeyBundleService) RegisterIdentity(ctx context.Context, identity *models.Identity) error {
	if identity == nil || identity.UserID == "" || identity.RegistrationID == 0 {
		return ErrInvalidInput
	}
	if len(identity.PublicKey) != curveKeySize || len(identity.SigningKey) != signingKeySize {
		s.logger.Warn("rejected identity with malformed key material", "userID", identity.UserID)
		return ErrInvalidInput
	}

	if err := s.repo.PutIdentity(ctx, identity); err != nil {
		s.logger.Error("failed to store identity", "userID", identity.UserID, "error", err)
		return err
	}

	s.logger.Info("identity registered", "userID", identity.UserID, "registrationID", identity.RegistrationID)
	return nil
}

func (s *KeyBundleService) UploadPreKeys(ctx context.Context, userID string, signed models.SignedPreKey, oneTime []models.OneTimePreKey) error {
	if userID == "" {
		return ErrInvalidInput
	}
	if len(signed.PublicKey) != curveKeySize || len(signed.Signature) != signatureSize {
		s.logger.Warn("rejected malformed signed prekey", "userID", userID)
		return ErrInvalidInput
	}
	for _, pk := range oneTime {
		if len(pk.PublicKey) != curveKeySize {
			return ErrInvalidInput
		}
	}

	if err := s.repo.PutPreKeys(ctx, userID, signed, oneTime); err != nil {
		s.logger.Error("failed to store prekeys", "userID", userID, "error", err)
		return err
	}

	s.logger.Info("prekeys uploaded", "userID", userID, "oneTimeCount", len(oneTime))
	return nil
}

// GetBundle issues a bundle for userID. An identity without a signed
// prekey never yields a usable bundle.
func (s *KeyBundleService) GetBundle(ctx context.Context, userID string) (*models.KeyBundle, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}

	bundle, err := s.repo.GetBundle(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrIdentityNotFound) {
			return nil, ErrNotFound
		}
		s.logger.Error("failed to assemble bundle", "userID", userID, "error", err)
		return nil, err
	}

	if len(bundle.SignedPreKey.PublicKey) == 0 {
		s.logger.Warn("bundle request for user without signed prekey", "userID", userID)
		return nil, ErrBundleIncomplete
	}

	outcome := "without_one_time"
	if bundle.OneTimePreKey != nil {
		outcome = "with_one_time"
	}
	bundleRequestsTotal.WithLabelValues(outcome).Inc()

	s.logger.Debug("bundle issued", "userID", userID, "outcome", outcome)
	return bundle, nil
}

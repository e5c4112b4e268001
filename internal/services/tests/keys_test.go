package services_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"orion/app/tests"
	"orion/internal/models"
	"orion/internal/repositories"
	"orion/internal/services"
)

func validIdentity() *models.Identity {
	return &models.Identity{
		UserID:         "alice",
		PublicKey:      bytes.Repeat([]byte{1}, 32),
		SigningKey:     bytes.Repeat([]byte{2}, 32),
		RegistrationID: 4711,
	}
}

func TestKeyBundleService_RegisterIdentity(t *testing.T) {
	logger := tests.DiscardLogger()
	ctx := context.Background()

	ts := []struct {
		name          string
		identity      *models.Identity
		setupMocks    func(repo *tests.MockKeyBundleRepository)
		expectedError error
	}{
		{
			name:     "Successful registration",
			identity: validIdentity(),
			setupMocks: func(repo *tests.MockKeyBundleRepository) {
				repo.On("PutIdentity", ctx, validIdentity()).Return(nil)
			},
			expectedError: nil,
		},
		{
			name:          "Missing user id",
			identity:      &models.Identity{PublicKey: bytes.Repeat([]byte{1}, 32), SigningKey: bytes.Repeat([]byte{2}, 32), RegistrationID: 1},
			setupMocks:    func(repo *tests.MockKeyBundleRepository) {},
			expectedError: services.ErrInvalidInput,
		},
		{
			name: "Malformed public key",
			identity: &models.Identity{
				UserID:         "alice",
				PublicKey:      []byte{1, 2, 3},
				SigningKey:     bytes.Repeat([]byte{2}, 32),
				RegistrationID: 1,
			},
			setupMocks:    func(repo *tests.MockKeyBundleRepository) {},
			expectedError: services.ErrInvalidInput,
		},
		{
			name:          "Zero registration id",
			identity:      &models.Identity{UserID: "alice", PublicKey: bytes.Repeat([]byte{1}, 32), SigningKey: bytes.Repeat([]byte{2}, 32)},
			setupMocks:    func(repo *tests.MockKeyBundleRepository) {},
			expectedError: services.ErrInvalidInput,
		},
		{
			name:     "Repository failure",
			identity: validIdentity(),
			setupMocks: func(repo *tests.MockKeyBundleRepository) {
				repo.On("PutIdentity", ctx, validIdentity()).Return(errors.New("db error"))
			},
			expectedError: errors.New("db error"),
		},
	}

	for _, tt := range ts {
		t.Run(tt.name, func(t *testing.T) {
			repo := &tests.MockKeyBundleRepository{}
			tt.setupMocks(repo)

			service := services.NewKeyBundleService(repo, logger)
			err := service.RegisterIdentity(ctx, tt.identity)

			assert.Equal(t, tt.expectedError, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestKeyBundleService_UploadPreKeys(t *testing.T) {
	logger := tests.DiscardLogger()
	ctx := context.Background()

	validSigned := models.SignedPreKey{
		KeyID:     1,
		PublicKey: bytes.Repeat([]byte{3}, 32),
		Signature: bytes.Repeat([]byte{4}, 64),
	}
	oneTime := []models.OneTimePreKey{
		{KeyID: 1, PublicKey: bytes.Repeat([]byte{5}, 32)},
		{KeyID: 2, PublicKey: bytes.Repeat([]byte{6}, 32)},
	}

	ts := []struct {
		name          string
		userID        string
		signed        models.SignedPreKey
		oneTime       []models.OneTimePreKey
		setupMocks    func(repo *tests.MockKeyBundleRepository)
		expectedError error
	}{
		{
			name:    "Successful upload",
			userID:  "alice",
			signed:  validSigned,
			oneTime: oneTime,
			setupMocks: func(repo *tests.MockKeyBundleRepository) {
				repo.On("PutPreKeys", ctx, "alice", validSigned, oneTime).Return(nil)
			},
			expectedError: nil,
		},
		{
			name:          "Missing user id",
			userID:        "",
			signed:        validSigned,
			setupMocks:    func(repo *tests.MockKeyBundleRepository) {},
			expectedError: services.ErrInvalidInput,
		},
		{
			name:   "Truncated signature",
			userID: "alice",
			signed: models.SignedPreKey{
				KeyID:     1,
				PublicKey: bytes.Repeat([]byte{3}, 32),
				Signature: bytes.Repeat([]byte{4}, 12),
			},
			setupMocks:    func(repo *tests.MockKeyBundleRepository) {},
			expectedError: services.ErrInvalidInput,
		},
		{
			name:    "Malformed one-time prekey",
			userID:  "alice",
			signed:  validSigned,
			oneTime: []models.OneTimePreKey{{KeyID: 9, PublicKey: []byte{1}}},
			setupMocks: func(repo *tests.MockKeyBundleRepository) {
			},
			expectedError: services.ErrInvalidInput,
		},
	}

	for _, tt := range ts {
		t.Run(tt.name, func(t *testing.T) {
			repo := &tests.MockKeyBundleRepository{}
			tt.setupMocks(repo)

			service := services.NewKeyBundleService(repo, logger)
			err := service.UploadPreKeys(ctx, tt.userID, tt.signed, tt.oneTime)

			assert.Equal(t, tt.expectedError, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestKeyBundleService_GetBundle(t *testing.T) {
	logger := tests.DiscardLogger()
	ctx := context.Background()

	complete := &models.KeyBundle{
		IdentityKey:    bytes.Repeat([]byte{1}, 32),
		SigningKey:     bytes.Repeat([]byte{2}, 32),
		RegistrationID: 4711,
		SignedPreKey: models.SignedPreKey{
			KeyID:     1,
			PublicKey: bytes.Repeat([]byte{3}, 32),
			Signature: bytes.Repeat([]byte{4}, 64),
		},
		OneTimePreKey: &models.OneTimePreKey{KeyID: 7, PublicKey: bytes.Repeat([]byte{5}, 32)},
	}

	ts := []struct {
		name           string
		userID         string
		setupMocks     func(repo *tests.MockKeyBundleRepository)
		expectedBundle *models.KeyBundle
		expectedError  error
	}{
		{
			name:   "Complete bundle with one-time prekey",
			userID: "bob",
			setupMocks: func(repo *tests.MockKeyBundleRepository) {
				repo.On("GetBundle", ctx, "bob").Return(complete, nil)
			},
			expectedBundle: complete,
			expectedError:  nil,
		},
		{
			name:   "Unknown user",
			userID: "ghost",
			setupMocks: func(repo *tests.MockKeyBundleRepository) {
				repo.On("GetBundle", ctx, "ghost").Return(nil, repositories.ErrIdentityNotFound)
			},
			expectedBundle: nil,
			expectedError:  services.ErrNotFound,
		},
		{
			name:   "Identity without signed prekey",
			userID: "bob",
			setupMocks: func(repo *tests.MockKeyBundleRepository) {
				repo.On("GetBundle", ctx, "bob").Return(&models.KeyBundle{
					IdentityKey:    bytes.Repeat([]byte{1}, 32),
					SigningKey:     bytes.Repeat([]byte{2}, 32),
					RegistrationID: 4711,
				}, nil)
			},
			expectedBundle: nil,
			expectedError:  services.ErrBundleIncomplete,
		},
		{
			name:           "Empty user id",
			userID:         "",
			setupMocks:     func(repo *tests.MockKeyBundleRepository) {},
			expectedBundle: nil,
			expectedError:  services.ErrInvalidInput,
		},
	}

	for _, tt := range ts {
		t.Run(tt.name, func(t *testing.T) {
			repo := &tests.MockKeyBundleRepository{}
			tt.setupMocks(repo)

			service := services.NewKeyBundleService(repo, logger)
			bundle, err := service.GetBundle(ctx, tt.userID)

			assert.Equal(t, tt.expectedBundle, bundle)
			assert.Equal(t, tt.expectedError, err)
			repo.AssertExpectations(t)
		})
	}
}

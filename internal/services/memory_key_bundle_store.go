package services

import (
	"context"
	"orion/internal/models"
	"orion/internal/repositories"
	"sync"
)

// MemoryKeyBundleStore is an in-memory IKeyBundleRepository used by the
// development profile and tests. The mutex around GetBundle gives the
// same exactly-once one-time-prekey guarantee the SQL store gets from
// its conditional delete.
type MemoryKeyBundleStore struct {
	identities map[string]models.Identity
	signed     map[string]models.SignedPreKey
	oneTime    map[string][]models.OneTimePreKey
	mu         sync.Mutex
}

func NewMemoryKeyBundleStore() *MemoryKeyBundleStore {
	return &MemoryKeyBundleStore{
		identities: make(map[string]models.Identity),
		signed:     make(map[string]models.SignedPreKey),
		oneTime:    make(map[string][]models.OneTimePreKey),
	}
}

func (s *MemoryKeyBundleStore) PutIdentity(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.UserID] = *identity
	return nil
}

func (s *MemoryKeyBundleStore) PutPreKeys(ctx context.Context, userID string, signed models.SignedPreKey, oneTime []models.OneTimePreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signed[userID] = signed
	s.oneTime[userID] = append([]models.OneTimePreKey(nil), oneTime...)
	return nil
}

func (s *MemoryKeyBundleStore) GetBundle(ctx context.Context, userID string) (*models.KeyBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[userID]
	if !ok {
		return nil, repositories.ErrIdentityNotFound
	}

	bundle := models.KeyBundle{
		IdentityKey:    identity.PublicKey,
		SigningKey:     identity.SigningKey,
		RegistrationID: identity.RegistrationID,
	}
	if signed, ok := s.signed[userID]; ok {
		bundle.SignedPreKey = signed
	}

	if pool := s.oneTime[userID]; len(pool) > 0 {
		consumed := pool[0]
		s.oneTime[userID] = pool[1:]
		bundle.OneTimePreKey = &consumed
	}

	return &bundle, nil
}

// OneTimeCount reports the remaining pool size for a user.
func (s *MemoryKeyBundleStore) OneTimeCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.oneTime[userID])
}

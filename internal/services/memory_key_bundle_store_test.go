package services_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orion/internal/models"
	"orion/internal/repositories"
	"orion/internal/services"
)

func seedUser(t *testing.T, store *services.MemoryKeyBundleStore, userID string, oneTimeCount int) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.PutIdentity(ctx, &models.Identity{
		UserID:         userID,
		PublicKey:      bytes.Repeat([]byte{1}, 32),
		SigningKey:     bytes.Repeat([]byte{2}, 32),
		RegistrationID: 1000,
	}))

	oneTime := make([]models.OneTimePreKey, 0, oneTimeCount)
	for i := 0; i < oneTimeCount; i++ {
		oneTime = append(oneTime, models.OneTimePreKey{
			KeyID:     uint32(i + 1),
			PublicKey: bytes.Repeat([]byte{byte(i + 10)}, 32),
		})
	}
	require.NoError(t, store.PutPreKeys(ctx, userID, models.SignedPreKey{
		KeyID:     1,
		PublicKey: bytes.Repeat([]byte{3}, 32),
		Signature: bytes.Repeat([]byte{4}, 64),
	}, oneTime))
}

func TestMemoryStore_UnknownUser(t *testing.T) {
	store := services.NewMemoryKeyBundleStore()
	_, err := store.GetBundle(context.Background(), "ghost")
	assert.ErrorIs(t, err, repositories.ErrIdentityNotFound)
}

func TestMemoryStore_PreKeyUploadReplacesPool(t *testing.T) {
	store := services.NewMemoryKeyBundleStore()
	seedUser(t, store, "bob", 5)
	assert.Equal(t, 5, store.OneTimeCount("bob"))

	// A re-synchronized batch replaces the pool, it does not append.
	seedUser(t, store, "bob", 3)
	assert.Equal(t, 3, store.OneTimeCount("bob"))
}

// Every one-time prekey is issued to at most one requester, and every
// requester past the pool still gets a usable bundle without one.
func TestMemoryStore_OneTimePreKeyExactlyOnce(t *testing.T) {
	const poolSize = 8
	const requesters = 64

	store := services.NewMemoryKeyBundleStore()
	seedUser(t, store, "bob", poolSize)

	var issued int64
	var wg sync.WaitGroup
	seen := sync.Map{}

	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle, err := store.GetBundle(context.Background(), "bob")
			if !assert.NoError(t, err) {
				return
			}
			assert.NotEmpty(t, bundle.SignedPreKey.PublicKey)

			if bundle.OneTimePreKey != nil {
				atomic.AddInt64(&issued, 1)
				_, dup := seen.LoadOrStore(bundle.OneTimePreKey.KeyID, true)
				assert.False(t, dup, "one-time prekey issued twice")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(poolSize), issued)
	assert.Equal(t, 0, store.OneTimeCount("bob"))
}

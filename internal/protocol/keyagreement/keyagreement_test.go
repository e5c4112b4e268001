package keyagreement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orion/internal/crypto"
	"orion/internal/protocol/keyagreement"
)

func TestSharedSecretWithOneTimePreKey(t *testing.T) {
	alice, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bob, err := crypto.GenerateX25519()
	require.NoError(t, err)
	spk, err := crypto.GenerateX25519()
	require.NoError(t, err)
	opk, err := crypto.GenerateX25519()
	require.NoError(t, err)

	root, ephPub, err := keyagreement.InitiatorSecret(alice, bob.Public, spk.Public, &opk.Public)
	require.NoError(t, err)
	assert.Len(t, root, 32)

	peerRoot, err := keyagreement.ResponderSecret(bob, spk.Private, &opk.Private, alice.Public, ephPub)
	require.NoError(t, err)
	assert.Equal(t, root, peerRoot)
}

func TestSharedSecretWithoutOneTimePreKey(t *testing.T) {
	alice, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bob, err := crypto.GenerateX25519()
	require.NoError(t, err)
	spk, err := crypto.GenerateX25519()
	require.NoError(t, err)

	root, ephPub, err := keyagreement.InitiatorSecret(alice, bob.Public, spk.Public, nil)
	require.NoError(t, err)

	peerRoot, err := keyagreement.ResponderSecret(bob, spk.Private, nil, alice.Public, ephPub)
	require.NoError(t, err)
	assert.Equal(t, root, peerRoot)
}

func TestMismatchedOneTimePreKeyDiverges(t *testing.T) {
	alice, _ := crypto.GenerateX25519()
	bob, _ := crypto.GenerateX25519()
	spk, _ := crypto.GenerateX25519()
	opk, _ := crypto.GenerateX25519()

	root, ephPub, err := keyagreement.InitiatorSecret(alice, bob.Public, spk.Public, &opk.Public)
	require.NoError(t, err)

	// Responder thinks no one-time prekey was used.
	peerRoot, err := keyagreement.ResponderSecret(bob, spk.Private, nil, alice.Public, ephPub)
	require.NoError(t, err)
	assert.NotEqual(t, root, peerRoot)
}

func TestVerifySignedPreKey(t *testing.T) {
	signing, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	spk, err := crypto.GenerateX25519()
	require.NoError(t, err)

	sig := crypto.Sign(signing.Private, spk.Public[:])
	assert.True(t, keyagreement.VerifySignedPreKey(signing.Public, spk.Public[:], sig))

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0xff
	assert.False(t, keyagreement.VerifySignedPreKey(signing.Public, spk.Public[:], tampered))

	other, _ := crypto.GenerateEd25519()
	assert.False(t, keyagreement.VerifySignedPreKey(other.Public, spk.Public[:], sig))
}

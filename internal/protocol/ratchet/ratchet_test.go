package ratchet_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orion/internal/crypto"
	"orion/internal/protocol/ratchet"
)

func newSessionPair(t *testing.T) (ratchet.State, ratchet.State) {
	t.Helper()

	root := make([]byte, 32)
	for i := range root {
		root[i] = byte(i)
	}
	bob, err := crypto.GenerateX25519()
	require.NoError(t, err)

	alice, err := ratchet.InitAsInitiator(root, bob.Public)
	require.NoError(t, err)

	// Bob learns Alice's ratchet key from her first header.
	var alicePub [32]byte
	copy(alicePub[:], alice.SendPub[:])
	bobState, err := ratchet.InitAsResponder(append([]byte(nil), root...), bob.Private, alicePub)
	require.NoError(t, err)

	return alice, bobState
}

func TestRoundTrip(t *testing.T) {
	alice, bob := newSessionPair(t)
	ad := []byte("alice->bob")

	h, ct, err := ratchet.Encrypt(&alice, ad, []byte("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("hello"), ct)

	pt, err := ratchet.Decrypt(&bob, ad, h, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)
}

func TestBidirectionalConversation(t *testing.T) {
	alice, bob := newSessionPair(t)
	ad := []byte("chat-7")

	for i := 0; i < 6; i++ {
		msg := []byte(fmt.Sprintf("ping %d", i))
		h, ct, err := ratchet.Encrypt(&alice, ad, msg)
		require.NoError(t, err)
		pt, err := ratchet.Decrypt(&bob, ad, h, ct)
		require.NoError(t, err)
		assert.Equal(t, msg, pt)

		reply := []byte(fmt.Sprintf("pong %d", i))
		h, ct, err = ratchet.Encrypt(&bob, ad, reply)
		require.NoError(t, err)
		pt, err = ratchet.Decrypt(&alice, ad, h, ct)
		require.NoError(t, err)
		assert.Equal(t, reply, pt)
	}
}

func TestOutOfOrderDelivery(t *testing.T) {
	alice, bob := newSessionPair(t)
	ad := []byte("ooo")

	h1, ct1, err := ratchet.Encrypt(&alice, ad, []byte("first"))
	require.NoError(t, err)
	h2, ct2, err := ratchet.Encrypt(&alice, ad, []byte("second"))
	require.NoError(t, err)
	h3, ct3, err := ratchet.Encrypt(&alice, ad, []byte("third"))
	require.NoError(t, err)
	h4, ct4, err := ratchet.Encrypt(&alice, ad, []byte("fourth"))
	require.NoError(t, err)

	pt, err := ratchet.Decrypt(&bob, ad, h3, ct3)
	require.NoError(t, err)
	assert.Equal(t, []byte("third"), pt)

	pt, err = ratchet.Decrypt(&bob, ad, h1, ct1)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), pt)

	pt, err = ratchet.Decrypt(&bob, ad, h2, ct2)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), pt)

	// The chain must keep advancing cleanly after the delayed messages
	// were drained from the skipped-key store.
	pt, err = ratchet.Decrypt(&bob, ad, h4, ct4)
	require.NoError(t, err)
	assert.Equal(t, []byte("fourth"), pt)
}

// A message delayed past a full DH ratchet round must still open from
// its stored key, without disturbing the chains that replaced it.
func TestDelayedAcrossRatchetStep(t *testing.T) {
	alice, bob := newSessionPair(t)
	ad := []byte("delayed")

	hOld, ctOld, err := ratchet.Encrypt(&alice, ad, []byte("stuck in transit"))
	require.NoError(t, err)
	h1, ct1, err := ratchet.Encrypt(&alice, ad, []byte("arrives first"))
	require.NoError(t, err)

	pt, err := ratchet.Decrypt(&bob, ad, h1, ct1)
	require.NoError(t, err)
	assert.Equal(t, []byte("arrives first"), pt)

	// A reply and its answer rotate both sides' ratchet keys.
	hr, ctr, err := ratchet.Encrypt(&bob, ad, []byte("reply"))
	require.NoError(t, err)
	pt, err = ratchet.Decrypt(&alice, ad, hr, ctr)
	require.NoError(t, err)
	assert.Equal(t, []byte("reply"), pt)

	ha, cta, err := ratchet.Encrypt(&alice, ad, []byte("answer"))
	require.NoError(t, err)
	pt, err = ratchet.Decrypt(&bob, ad, ha, cta)
	require.NoError(t, err)
	assert.Equal(t, []byte("answer"), pt)

	// The delayed message carries a ratchet key Bob no longer tracks.
	pt, err = ratchet.Decrypt(&bob, ad, hOld, ctOld)
	require.NoError(t, err)
	assert.Equal(t, []byte("stuck in transit"), pt)

	// And the live session is unharmed.
	h2, ct2, err := ratchet.Encrypt(&alice, ad, []byte("still going"))
	require.NoError(t, err)
	pt, err = ratchet.Decrypt(&bob, ad, h2, ct2)
	require.NoError(t, err)
	assert.Equal(t, []byte("still going"), pt)
}

func TestTamperedCiphertextRejected(t *testing.T) {
	alice, bob := newSessionPair(t)
	ad := []byte("ad")

	h, ct, err := ratchet.Encrypt(&alice, ad, []byte("secret"))
	require.NoError(t, err)
	ct[0] ^= 0x01

	_, err = ratchet.Decrypt(&bob, ad, h, ct)
	assert.Error(t, err)
}

func TestWrongAssociatedDataRejected(t *testing.T) {
	alice, bob := newSessionPair(t)

	h, ct, err := ratchet.Encrypt(&alice, []byte("chat-1"), []byte("secret"))
	require.NoError(t, err)

	_, err = ratchet.Decrypt(&bob, []byte("chat-2"), h, ct)
	assert.Error(t, err)
}

// Package keyagreement derives the shared root key that seeds a
// ratchet session, following the X3DH pattern: a static/static DH, two
// static/ephemeral DHs and an optional fourth DH against a one-time
// prekey for stronger forward secrecy.
package keyagreement

import (
	"crypto/ed25519"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"orion/internal/crypto"
)

const rootKeySize = 32

var kdfInfo = []byte("orion/keyagreement")

// InitiatorSecret derives the root key on the initiating side and
// returns the ephemeral public key the responder needs to mirror the
// derivation. peerOneTime is nil when the peer's pool was exhausted;
// the session is still valid, with weaker forward secrecy.
func InitiatorSecret(
	ourIdentity crypto.KeyPair,
	peerIdentity [32]byte,
	peerSignedPreKey [32]byte,
	peerOneTime *[32]byte,
) (root []byte, ephemeralPub [32]byte, err error) {
	ephemeral, err := crypto.GenerateX25519()
	if err != nil {
		return nil, ephemeralPub, err
	}

	dh1, err := crypto.DH(ourIdentity.Private, peerSignedPreKey)
	if err != nil {
		return nil, ephemeralPub, err
	}
	dh2, err := crypto.DH(ephemeral.Private, peerIdentity)
	if err != nil {
		return nil, ephemeralPub, err
	}
	dh3, err := crypto.DH(ephemeral.Private, peerSignedPreKey)
	if err != nil {
		return nil, ephemeralPub, err
	}

	concat := make([]byte, 0, 32*4)
	concat = append(concat, dh1[:]...)
	concat = append(concat, dh2[:]...)
	concat = append(concat, dh3[:]...)

	if peerOneTime != nil {
		dh4, err := crypto.DH(ephemeral.Private, *peerOneTime)
		if err != nil {
			return nil, ephemeralPub, err
		}
		concat = append(concat, dh4[:]...)
		crypto.Wipe(dh4[:])
	}

	root = deriveRoot(concat)
	crypto.Wipe(concat)
	crypto.Wipe(dh1[:])
	crypto.Wipe(dh2[:])
	crypto.Wipe(dh3[:])
	crypto.Wipe(ephemeral.Private[:])

	return root, ephemeral.Public, nil
}

// ResponderSecret mirrors InitiatorSecret on the receiving side using
// the private halves of the prekeys the initiator targeted.
func ResponderSecret(
	ourIdentity crypto.KeyPair,
	ourSignedPreKeyPriv [32]byte,
	ourOneTimePriv *[32]byte,
	peerIdentity [32]byte,
	peerEphemeral [32]byte,
) ([]byte, error) {
	dh1, err := crypto.DH(ourSignedPreKeyPriv, peerIdentity)
	if err != nil {
		return nil, err
	}
	dh2, err := crypto.DH(ourIdentity.Private, peerEphemeral)
	if err != nil {
		return nil, err
	}
	dh3, err := crypto.DH(ourSignedPreKeyPriv, peerEphemeral)
	if err != nil {
		return nil, err
	}

	concat := make([]byte, 0, 32*4)
	concat = append(concat, dh1[:]...)
	concat = append(concat, dh2[:]...)
	concat = append(concat, dh3[:]...)

	if ourOneTimePriv != nil {
		dh4, err := crypto.DH(*ourOneTimePriv, peerEphemeral)
		if err != nil {
			return nil, err
		}
		concat = append(concat, dh4[:]...)
		crypto.Wipe(dh4[:])
	}

	root := deriveRoot(concat)
	crypto.Wipe(concat)
	crypto.Wipe(dh1[:])
	crypto.Wipe(dh2[:])
	crypto.Wipe(dh3[:])

	return root, nil
}

// VerifySignedPreKey checks the signed prekey's attestation before any
// DH involving it. A failed check is fatal to session establishment.
func VerifySignedPreKey(signingKey []byte, signedPreKey, signature []byte) bool {
	return crypto.Verify(ed25519.PublicKey(signingKey), signedPreKey, signature)
}

func deriveRoot(secret []byte) []byte {
	r := hkdf.New(sha256.New, secret, nil, kdfInfo)
	root := make([]byte, rootKeySize)
	_, _ = io.ReadFull(r, root)
	return root
}

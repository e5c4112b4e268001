// Package crypto wraps the curve and signature primitives the
// encryption subsystem is built on. Key agreement and ratcheting live
// in internal/protocol; nothing here carries protocol state.
package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// KeyPair is an X25519 key pair. The private scalar is clamped per
// RFC 7748.
type KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

func GenerateX25519() (KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return KeyPair{}, err
	}
	Clamp(&kp.Private)

	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// PublicKey derives the public point for a private scalar. Used when
// only the private half was persisted.
func PublicKey(priv [32]byte) ([32]byte, error) {
	var out [32]byte
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return out, err
	}
	copy(out[:], pub)
	return out, nil
}

// DH computes the X25519 shared secret.
func DH(priv, pub [32]byte) ([32]byte, error) {
	var out [32]byte
	secret, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	return out, nil
}

func Clamp(k *[32]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

package models

// Identity is the public half of a device's long-lived key material as
// registered with the key distribution service. Re-registering silently
// replaces the previous identity for the user.
type Identity struct {
	UserID         string
	PublicKey      []byte // X25519 public key, 32 bytes
	SigningKey     []byte // Ed25519 public key, 32 bytes
	RegistrationID uint32
}

// SignedPreKey is the public half of the medium-lived prekey, attested
// by a signature from the identity signing key. One active instance per
// user.
type SignedPreKey struct {
	KeyID     uint32
	PublicKey []byte
	Signature []byte
}

// OneTimePreKey is issued to at most one bundle requester and then
// permanently deleted.
type OneTimePreKey struct {
	KeyID     uint32
	PublicKey []byte
}

// KeyBundle is assembled on demand for a session initiator. It is never
// stored as its own entity. OneTimePreKey is nil when the pool for the
// user is exhausted; the session can still be established with weaker
// forward secrecy.
type KeyBundle struct {
	IdentityKey    []byte
	SigningKey     []byte
	RegistrationID uint32
	SignedPreKey   SignedPreKey
	OneTimePreKey  *OneTimePreKey
}

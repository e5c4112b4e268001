package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"orion/internal/crypto"
	"orion/internal/protocol/ratchet"
)

// Namespaces map to storage tiers: identity material is the most
// sensitive, sessions the largest.
const (
	nsIdentity      = "identity"
	nsPreKeys       = "prekeys"
	nsSignedPreKeys = "signed_prekeys"
	nsSessions      = "sessions"
	nsTrust         = "trust"
)

const (
	keyDHPrivate      = "dh_private"
	keyDHPublic       = "dh_public"
	keySigningPrivate = "signing_private"
	keySigningPublic  = "signing_public"
	keyRegistrationID = "registration_id"
	keyActiveSignedID = "active_signed_prekey"
	keyUploaded       = "uploaded"
)

// LocalIdentity is the device's long-lived key material. Created once
// at first run; the private halves never leave the store.
type LocalIdentity struct {
	DH             crypto.KeyPair
	Signing        crypto.SigningKeyPair
	RegistrationID uint32
}

// Session is the established state for one peer address.
type Session struct {
	PeerAddress     string        `json:"peer_address"`
	PeerIdentityKey []byte        `json:"peer_identity_key"`
	Ratchet         ratchet.State `json:"ratchet"`
	CreatedAt       time.Time     `json:"created_at"`
}

// SessionStore is the typed facade over a Store backend.
type SessionStore struct {
	backend Store
}

func NewSessionStore(backend Store) *SessionStore {
	return &SessionStore{backend: backend}
}

func (s *SessionStore) SaveIdentity(id LocalIdentity) error {
	puts := []struct {
		key string
		rec Record
	}{
		{keyDHPrivate, BytesRecord(id.DH.Private[:])},
		{keyDHPublic, BytesRecord(id.DH.Public[:])},
		{keySigningPrivate, BytesRecord(id.Signing.Private)},
		{keySigningPublic, BytesRecord(id.Signing.Public)},
		{keyRegistrationID, IntRecord(int64(id.RegistrationID))},
	}
	for _, p := range puts {
		if err := s.backend.Put(nsIdentity, p.key, p.rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionStore) LoadIdentity() (LocalIdentity, error) {
	var id LocalIdentity

	dhPriv, err := s.bytesAt(nsIdentity, keyDHPrivate)
	if err != nil {
		return LocalIdentity{}, err
	}
	dhPub, err := s.bytesAt(nsIdentity, keyDHPublic)
	if err != nil {
		return LocalIdentity{}, err
	}
	copy(id.DH.Private[:], dhPriv)
	copy(id.DH.Public[:], dhPub)

	if id.Signing.Private, err = s.bytesAt(nsIdentity, keySigningPrivate); err != nil {
		return LocalIdentity{}, err
	}
	if id.Signing.Public, err = s.bytesAt(nsIdentity, keySigningPublic); err != nil {
		return LocalIdentity{}, err
	}

	rec, err := s.backend.Get(nsIdentity, keyRegistrationID)
	if err != nil {
		return LocalIdentity{}, err
	}
	regID, err := rec.Int()
	if err != nil {
		return LocalIdentity{}, err
	}
	id.RegistrationID = uint32(regID)

	return id, nil
}

// HasIdentity reports whether first-run key generation already ran.
func (s *SessionStore) HasIdentity() (bool, error) {
	_, err := s.backend.Get(nsIdentity, keyDHPrivate)
	if err == nil {
		return true, nil
	}
	if err == ErrNotFound {
		return false, nil
	}
	return false, err
}

// MarkUploaded records that the public key material reached the server,
// so initialization retries only the upload step.
func (s *SessionStore) MarkUploaded() error {
	return s.backend.Put(nsIdentity, keyUploaded, IntRecord(1))
}

func (s *SessionStore) Uploaded() (bool, error) {
	rec, err := s.backend.Get(nsIdentity, keyUploaded)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	v, err := rec.Int()
	return v == 1, err
}

func (s *SessionStore) StorePreKey(keyID uint32, priv [32]byte) error {
	return s.backend.Put(nsPreKeys, formatKeyID(keyID), BytesRecord(priv[:]))
}

func (s *SessionStore) LoadPreKey(keyID uint32) ([32]byte, error) {
	var priv [32]byte
	b, err := s.bytesAt(nsPreKeys, formatKeyID(keyID))
	if err != nil {
		return priv, err
	}
	copy(priv[:], b)
	return priv, nil
}

func (s *SessionStore) RemovePreKey(keyID uint32) error {
	return s.backend.Delete(nsPreKeys, formatKeyID(keyID))
}

// PreKeyCount reports the size of the local one-time prekey pool, used
// to decide when to generate a fresh batch.
func (s *SessionStore) PreKeyCount() (int, error) {
	all, err := s.backend.List(nsPreKeys)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *SessionStore) StoreSignedPreKey(keyID uint32, priv [32]byte) error {
	if err := s.backend.Put(nsSignedPreKeys, formatKeyID(keyID), BytesRecord(priv[:])); err != nil {
		return err
	}
	return s.backend.Put(nsIdentity, keyActiveSignedID, IntRecord(int64(keyID)))
}

func (s *SessionStore) LoadSignedPreKey(keyID uint32) ([32]byte, error) {
	var priv [32]byte
	b, err := s.bytesAt(nsSignedPreKeys, formatKeyID(keyID))
	if err != nil {
		return priv, err
	}
	copy(priv[:], b)
	return priv, nil
}

func (s *SessionStore) RemoveSignedPreKey(keyID uint32) error {
	return s.backend.Delete(nsSignedPreKeys, formatKeyID(keyID))
}

func (s *SessionStore) ActiveSignedPreKeyID() (uint32, error) {
	rec, err := s.backend.Get(nsIdentity, keyActiveSignedID)
	if err != nil {
		return 0, err
	}
	id, err := rec.Int()
	return uint32(id), err
}

func (s *SessionStore) StoreSession(sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.backend.Put(nsSessions, sess.PeerAddress, BytesRecord(raw))
}

func (s *SessionStore) LoadSession(address string) (*Session, error) {
	raw, err := s.bytesAt(nsSessions, address)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record: %v", ErrStorage, err)
	}
	return &sess, nil
}

// RemoveSession drops the session for an address ("reset session"). The
// trust entry is kept so a key change still signals.
func (s *SessionStore) RemoveSession(address string) error {
	return s.backend.Delete(nsSessions, address)
}

// IsTrustedIdentity applies trust-on-first-use: an unknown address
// records the key and is trusted; a known address must present the
// exact same key. A false return is a hard stop for the caller.
func (s *SessionStore) IsTrustedIdentity(address string, key []byte) (bool, error) {
	known, err := s.bytesAt(nsTrust, address)
	if err == ErrNotFound {
		if err := s.backend.Put(nsTrust, address, BytesRecord(key)); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(known, key), nil
}

func (s *SessionStore) bytesAt(namespace, key string) ([]byte, error) {
	rec, err := s.backend.Get(namespace, key)
	if err != nil {
		return nil, err
	}
	return rec.Bytes()
}

func formatKeyID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

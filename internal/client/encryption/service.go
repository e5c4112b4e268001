// Package encryption is the only component that produces ciphertext or
// consumes plaintext. It hides session bootstrap behind EncryptMessage
// and DecryptMessage; callers never touch key material directly.
package encryption

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Orion Messenger.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Orion Messenger. All rights reserved.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"orion/internal/client/api"
	"orion/internal/client/store"
	"orion/internal/crypto"
	"orion/internal/protocol/keyagreement"
	"orion/internal/protocol/ratchet"
)

const (
	// EnvelopeTypeCiphertext marks an ordinary ratcheted message.
	EnvelopeTypeCiphertext = 1
	// EnvelopeTypePreKey marks a handshake message carrying the key
	// material the recipient needs to establish the session.
	EnvelopeTypePreKey = 3
)

const oneTimePreKeyBatch = 20

var (
	ErrPeerNotFound      = errors.New("peer has no registered key bundle")
	ErrBundleIncomplete  = errors.New("peer bundle is missing a signed prekey")
	ErrNoSession         = errors.New("no session established with peer")
	ErrUntrustedIdentity = errors.New("peer identity key changed")
	ErrBadSignature      = errors.New("signed prekey signature is invalid")
)

// Envelope is the typed ciphertext container handed to the transport.
// Body is the base64-encoded wire message.
type Envelope struct {
	Type int    `json:"type"`
	Body string `json:"body"`
}

type handshakePayload struct {
	IdentityKey     string  `json:"identityKey"`
	RegistrationID  uint32  `json:"registrationId"`
	EphemeralKey    string  `json:"ephemeralKey"`
	SignedPreKeyID  uint32  `json:"signedPreKeyId"`
	OneTimePreKeyID *uint32 `json:"oneTimePreKeyId,omitempty"`
}

type wireMessage struct {
	Handshake  *handshakePayload `json:"handshake,omitempty"`
	Header     ratchet.Header    `json:"header"`
	Ciphertext string            `json:"ciphertext"`
}

// KeyDirectory is the network-facing collaborator distributing public
// key material. api.Client implements it against the HTTP endpoints.
type KeyDirectory interface {
	RegisterIdentity(ctx context.Context, req api.RegisterIdentityRequest) error
	UploadPreKeys(ctx context.Context, req api.UploadPreKeysRequest) error
	FetchBundle(ctx context.Context, userID string) (*api.BundleResponse, error)
}

type Service struct {
	userID    string
	store     *store.SessionStore
	directory KeyDirectory
	logger    *slog.Logger

	mu    sync.Mutex
	peers map[string]*sync.Mutex
}

func NewService(userID string, st *store.SessionStore, directory KeyDirectory, logger *slog.Logger) *Service {
	return &Service{
		userID:    userID,
		store:     st,
		directory: directory,
		logger:    logger,
		peers:     make(map[string]*sync.Mutex),
	}
}

// Initialize runs first-run key generation and uploads the public
// material. Generation is idempotent: when local keys already exist
// only the upload is retried, so a failed upload heals on the next
// start.
func (s *Service) Initialize(ctx context.Context) error {
	has, err := s.store.HasIdentity()
	if err != nil {
		return fmt.Errorf("check identity: %w", err)
	}
	if !has {
		if err := s.generateKeys(); err != nil {
			return err
		}
		s.logger.Info("generated local key material", "user_id", s.userID)
	}

	uploaded, err := s.store.Uploaded()
	if err != nil {
		return fmt.Errorf("check upload state: %w", err)
	}
	if uploaded {
		return nil
	}

	if err := s.uploadKeys(ctx); err != nil {
		return fmt.Errorf("upload key material: %w", err)
	}
	if err := s.store.MarkUploaded(); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	s.logger.Info("uploaded public key material", "user_id", s.userID)
	return nil
}

func (s *Service) generateKeys() error {
	dh, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	signing, err := crypto.GenerateEd25519()
	if err != nil {
		return err
	}
	regID, err := randomRegistrationID()
	if err != nil {
		return err
	}
	if err := s.store.SaveIdentity(store.LocalIdentity{DH: dh, Signing: signing, RegistrationID: regID}); err != nil {
		return err
	}

	spk, err := crypto.GenerateX25519()
	if err != nil {
		return err
	}
	if err := s.store.StoreSignedPreKey(1, spk.Private); err != nil {
		return err
	}

	for i := uint32(1); i <= oneTimePreKeyBatch; i++ {
		opk, err := crypto.GenerateX25519()
		if err != nil {
			return err
		}
		if err := s.store.StorePreKey(i, opk.Private); err != nil {
			return err
		}
	}
	return nil
}

// uploadKeys rebuilds the full public payload from stored private
// halves so a retry after restart needs no extra state.
func (s *Service) uploadKeys(ctx context.Context) error {
	identity, err := s.store.LoadIdentity()
	if err != nil {
		return err
	}

	if err := s.directory.RegisterIdentity(ctx, api.RegisterIdentityRequest{
		UserID:         s.userID,
		PublicKey:      b64(identity.DH.Public[:]),
		SigningKey:     b64(identity.Signing.Public),
		RegistrationID: identity.RegistrationID,
	}); err != nil {
		return err
	}

	spkID, err := s.store.ActiveSignedPreKeyID()
	if err != nil {
		return err
	}
	spkPriv, err := s.store.LoadSignedPreKey(spkID)
	if err != nil {
		return err
	}
	spkPub, err := crypto.PublicKey(spkPriv)
	if err != nil {
		return err
	}

	req := api.UploadPreKeysRequest{
		UserID: s.userID,
		SignedPreKey: api.SignedPreKeyDTO{
			KeyID:     spkID,
			PublicKey: b64(spkPub[:]),
			Signature: b64(crypto.Sign(identity.Signing.Private, spkPub[:])),
		},
	}

	for i := uint32(1); i <= oneTimePreKeyBatch; i++ {
		opkPriv, err := s.store.LoadPreKey(i)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		opkPub, err := crypto.PublicKey(opkPriv)
		if err != nil {
			return err
		}
		req.OneTimePreKeys = append(req.OneTimePreKeys, api.OneTimePreKeyDTO{
			KeyID:     i,
			PublicKey: b64(opkPub[:]),
		})
	}

	return s.directory.UploadPreKeys(ctx, req)
}

// EncryptMessage encrypts plaintext for a peer, fetching and consuming
// a key bundle on first contact. The first envelope to a new peer is a
// handshake; every later one is an ordinary ratchet message.
func (s *Service) EncryptMessage(ctx context.Context, peerID string, plaintext []byte) (Envelope, error) {
	lock := s.peerLock(peerID)
	lock.Lock()
	defer lock.Unlock()

	identity, err := s.store.LoadIdentity()
	if err != nil {
		return Envelope{}, fmt.Errorf("load identity: %w", err)
	}

	sess, err := s.store.LoadSession(peerID)
	if errors.Is(err, store.ErrNotFound) {
		return s.bootstrapAndEncrypt(ctx, peerID, identity, plaintext)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("load session: %w", err)
	}

	ad := associatedData(identity.DH.Public[:], sess.PeerIdentityKey)
	header, ct, err := ratchet.Encrypt(&sess.Ratchet, ad, plaintext)
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypt: %w", err)
	}
	if err := s.store.StoreSession(sess); err != nil {
		return Envelope{}, fmt.Errorf("persist session: %w", err)
	}

	return sealEnvelope(EnvelopeTypeCiphertext, wireMessage{Header: header, Ciphertext: b64(ct)})
}

func (s *Service) bootstrapAndEncrypt(ctx context.Context, peerID string, identity store.LocalIdentity, plaintext []byte) (Envelope, error) {
	bundle, err := s.directory.FetchBundle(ctx, peerID)
	if errors.Is(err, api.ErrUserNotFound) {
		return Envelope{}, ErrPeerNotFound
	}
	if errors.Is(err, api.ErrBundleIncomplete) {
		return Envelope{}, ErrBundleIncomplete
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("fetch bundle: %w", err)
	}

	peerIdentity, err := decode32(bundle.IdentityKey)
	if err != nil {
		return Envelope{}, fmt.Errorf("bundle identity key: %w", err)
	}
	signingKey, err := base64.StdEncoding.DecodeString(bundle.SigningKey)
	if err != nil {
		return Envelope{}, fmt.Errorf("bundle signing key: %w", err)
	}
	if bundle.SignedPreKey.PublicKey == "" {
		return Envelope{}, ErrBundleIncomplete
	}
	spkPub, err := decode32(bundle.SignedPreKey.PublicKey)
	if err != nil {
		return Envelope{}, fmt.Errorf("bundle signed prekey: %w", err)
	}
	signature, err := base64.StdEncoding.DecodeString(bundle.SignedPreKey.Signature)
	if err != nil {
		return Envelope{}, fmt.Errorf("bundle signature: %w", err)
	}
	if !keyagreement.VerifySignedPreKey(signingKey, spkPub[:], signature) {
		return Envelope{}, ErrBadSignature
	}

	trusted, err := s.store.IsTrustedIdentity(peerID, peerIdentity[:])
	if err != nil {
		return Envelope{}, fmt.Errorf("trust check: %w", err)
	}
	if !trusted {
		return Envelope{}, ErrUntrustedIdentity
	}

	var oneTimePub *[32]byte
	var oneTimeID *uint32
	if bundle.OneTimePreKey != nil {
		pub, err := decode32(bundle.OneTimePreKey.PublicKey)
		if err != nil {
			return Envelope{}, fmt.Errorf("bundle one-time prekey: %w", err)
		}
		oneTimePub = &pub
		id := bundle.OneTimePreKey.KeyID
		oneTimeID = &id
	} else {
		s.logger.Warn("peer one-time prekey pool exhausted, continuing without", "peer_id", peerID)
	}

	root, ephemeralPub, err := keyagreement.InitiatorSecret(identity.DH, peerIdentity, spkPub, oneTimePub)
	if err != nil {
		return Envelope{}, fmt.Errorf("key agreement: %w", err)
	}
	state, err := ratchet.InitAsInitiator(root, peerIdentity)
	crypto.Wipe(root)
	if err != nil {
		return Envelope{}, fmt.Errorf("init ratchet: %w", err)
	}

	sess := &store.Session{
		PeerAddress:     peerID,
		PeerIdentityKey: peerIdentity[:],
		Ratchet:         state,
		CreatedAt:       time.Now().UTC(),
	}

	ad := associatedData(identity.DH.Public[:], sess.PeerIdentityKey)
	header, ct, err := ratchet.Encrypt(&sess.Ratchet, ad, plaintext)
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypt: %w", err)
	}
	if err := s.store.StoreSession(sess); err != nil {
		return Envelope{}, fmt.Errorf("persist session: %w", err)
	}
	s.logger.Info("established session", "peer_id", peerID, "one_time_prekey", oneTimeID != nil)

	return sealEnvelope(EnvelopeTypePreKey, wireMessage{
		Handshake: &handshakePayload{
			IdentityKey:     b64(identity.DH.Public[:]),
			RegistrationID:  identity.RegistrationID,
			EphemeralKey:    b64(ephemeralPub[:]),
			SignedPreKeyID:  bundle.SignedPreKey.KeyID,
			OneTimePreKeyID: oneTimeID,
		},
		Header:     header,
		Ciphertext: b64(ct),
	})
}

// DecryptMessage decrypts an envelope from a peer. A handshake
// envelope establishes the session as a side effect before decrypting;
// a ciphertext envelope without a standing session is a protocol
// violation and fails with ErrNoSession.
func (s *Service) DecryptMessage(ctx context.Context, peerID string, env Envelope) ([]byte, error) {
	lock := s.peerLock(peerID)
	lock.Lock()
	defer lock.Unlock()

	var msg wireMessage
	raw, err := base64.StdEncoding.DecodeString(env.Body)
	if err != nil {
		return nil, fmt.Errorf("envelope body: %w", err)
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("envelope body: %w", err)
	}

	identity, err := s.store.LoadIdentity()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	sess, err := s.store.LoadSession(peerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if env.Type != EnvelopeTypePreKey {
			return nil, ErrNoSession
		}
		return s.bootstrapAndDecrypt(peerID, identity, msg)
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}

	ct, err := base64.StdEncoding.DecodeString(msg.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ciphertext: %w", err)
	}
	ad := associatedData(sess.PeerIdentityKey, identity.DH.Public[:])
	pt, err := ratchet.Decrypt(&sess.Ratchet, ad, msg.Header, ct)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	if err := s.store.StoreSession(sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return pt, nil
}

func (s *Service) bootstrapAndDecrypt(peerID string, identity store.LocalIdentity, msg wireMessage) ([]byte, error) {
	if msg.Handshake == nil {
		return nil, fmt.Errorf("%w: handshake envelope without key material", ErrNoSession)
	}
	hs := msg.Handshake

	peerIdentity, err := decode32(hs.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("handshake identity key: %w", err)
	}
	trusted, err := s.store.IsTrustedIdentity(peerID, peerIdentity[:])
	if err != nil {
		return nil, fmt.Errorf("trust check: %w", err)
	}
	if !trusted {
		return nil, ErrUntrustedIdentity
	}

	ephemeral, err := decode32(hs.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("handshake ephemeral key: %w", err)
	}
	spkPriv, err := s.store.LoadSignedPreKey(hs.SignedPreKeyID)
	if err != nil {
		return nil, fmt.Errorf("signed prekey %d: %w", hs.SignedPreKeyID, err)
	}

	var oneTimePriv *[32]byte
	if hs.OneTimePreKeyID != nil {
		priv, err := s.store.LoadPreKey(*hs.OneTimePreKeyID)
		if err != nil {
			return nil, fmt.Errorf("one-time prekey %d: %w", *hs.OneTimePreKeyID, err)
		}
		oneTimePriv = &priv
	}

	root, err := keyagreement.ResponderSecret(identity.DH, spkPriv, oneTimePriv, peerIdentity, ephemeral)
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}

	var senderRatchet [32]byte
	copy(senderRatchet[:], msg.Header.RatchetKey)
	state, err := ratchet.InitAsResponder(root, identity.DH.Private, senderRatchet)
	crypto.Wipe(root)
	if err != nil {
		return nil, fmt.Errorf("init ratchet: %w", err)
	}

	sess := &store.Session{
		PeerAddress:     peerID,
		PeerIdentityKey: peerIdentity[:],
		Ratchet:         state,
		CreatedAt:       time.Now().UTC(),
	}

	ct, err := base64.StdEncoding.DecodeString(msg.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ciphertext: %w", err)
	}
	ad := associatedData(sess.PeerIdentityKey, identity.DH.Public[:])
	pt, err := ratchet.Decrypt(&sess.Ratchet, ad, msg.Header, ct)
	if err != nil {
		return nil, fmt.Errorf("decrypt handshake message: %w", err)
	}

	// Only commit state once the handshake actually decrypted.
	if err := s.store.StoreSession(sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	if hs.OneTimePreKeyID != nil {
		if err := s.store.RemovePreKey(*hs.OneTimePreKeyID); err != nil {
			s.logger.Warn("failed to remove consumed one-time prekey",
				"key_id", *hs.OneTimePreKeyID, "error", err)
		}
	}
	s.logger.Info("established session from inbound handshake", "peer_id", peerID)
	return pt, nil
}

// ResetSession drops the standing session for a peer, forcing a fresh
// handshake on next contact. The trust entry survives so an identity
// change still signals.
func (s *Service) ResetSession(peerID string) error {
	lock := s.peerLock(peerID)
	lock.Lock()
	defer lock.Unlock()
	return s.store.RemoveSession(peerID)
}

// Fingerprint returns the short hex fingerprint of the local identity
// key for out-of-band verification.
func (s *Service) Fingerprint() (string, error) {
	identity, err := s.store.LoadIdentity()
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(identity.DH.Public[:]), nil
}

func (s *Service) peerLock(peerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.peers[peerID]
	if !ok {
		lock = &sync.Mutex{}
		s.peers[peerID] = lock
	}
	return lock
}

// associatedData binds every ciphertext to the sender and recipient
// identity keys, in that order.
func associatedData(senderIK, recipientIK []byte) []byte {
	ad := make([]byte, 0, len(senderIK)+len(recipientIK))
	ad = append(ad, senderIK...)
	ad = append(ad, recipientIK...)
	return ad
}

func sealEnvelope(typ int, msg wireMessage) (Envelope, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Body: base64.StdEncoding.EncodeToString(raw)}, nil
}

func randomRegistrationID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	// Avoid zero so "unset" stays distinguishable.
	id := binary.BigEndian.Uint32(b[:])%0x3FFF + 1
	return id, nil
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func decode32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32-byte key, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

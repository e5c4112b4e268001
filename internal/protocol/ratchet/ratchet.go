// Package ratchet implements a double ratchet over X25519, HKDF-SHA256
// and ChaCha20-Poly1305. Every encrypt or decrypt mutates the state, so
// callers must serialize access per session and persist the state after
// each operation.
package ratchet

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"orion/internal/crypto"
)

const (
	keySize        = 32
	maxSkippedKeys = 1000
)

var ErrChainUninitialized = errors.New("ratchet chain key is uninitialized")

// Header accompanies every ciphertext and carries the sender's current
// ratchet public key plus the counters needed to handle reordering.
type Header struct {
	RatchetKey []byte `json:"ratchet_key"`
	PrevCount  uint32 `json:"prev_count"`
	Count      uint32 `json:"count"`
}

// State is the per-peer session state. It is serialized into the
// session store between operations.
type State struct {
	RootKey []byte `json:"root_key"`

	SendPriv [32]byte `json:"send_priv"`
	SendPub  [32]byte `json:"send_pub"`
	PeerPub  [32]byte `json:"peer_pub"`

	SendChain []byte `json:"send_chain,omitempty"`
	RecvChain []byte `json:"recv_chain,omitempty"`

	SendCount uint32 `json:"send_count"`
	RecvCount uint32 `json:"recv_count"`
	PrevCount uint32 `json:"prev_count"`

	Skipped map[string][]byte `json:"skipped,omitempty"`
}

// InitAsInitiator seeds the sending chain. peerAnchor is the peer's
// identity public key; the responder mirrors the derivation with its
// identity private key when the first message arrives.
func InitAsInitiator(root []byte, peerAnchor [32]byte) (State, error) {
	pair, err := generateRatchetKey()
	if err != nil {
		return State{}, err
	}

	dh, err := crypto.DH(pair.Private, peerAnchor)
	if err != nil {
		return State{}, err
	}
	newRoot, sendChain := kdfRoot(root, dh[:])
	crypto.Wipe(dh[:])

	return State{
		RootKey:   newRoot,
		SendPriv:  pair.Private,
		SendPub:   pair.Public,
		PeerPub:   peerAnchor,
		SendChain: sendChain,
		Skipped:   make(map[string][]byte),
	}, nil
}

// InitAsResponder seeds the receiving chain from the first inbound
// header. anchorPriv is our identity private key, matching the
// initiator's use of our identity public key as the first DH anchor.
func InitAsResponder(root []byte, anchorPriv [32]byte, senderRatchetPub [32]byte) (State, error) {
	pair, err := generateRatchetKey()
	if err != nil {
		return State{}, err
	}

	dh, err := crypto.DH(anchorPriv, senderRatchetPub)
	if err != nil {
		return State{}, err
	}
	newRoot, recvChain := kdfRoot(root, dh[:])
	crypto.Wipe(dh[:])

	return State{
		RootKey:   newRoot,
		SendPriv:  pair.Private,
		SendPub:   pair.Public,
		PeerPub:   senderRatchetPub,
		RecvChain: recvChain,
		Skipped:   make(map[string][]byte),
	}, nil
}

// Encrypt produces a header and ciphertext, stepping the DH ratchet
// first when this side has no sending chain yet (responder's first
// reply).
func Encrypt(st *State, ad, plaintext []byte) (Header, []byte, error) {
	if len(st.SendChain) == 0 {
		if err := stepSendRatchet(st); err != nil {
			return Header{}, nil, err
		}
	}

	key, err := nextKey(&st.SendChain)
	if err != nil {
		return Header{}, nil, err
	}
	header := Header{RatchetKey: st.SendPub[:], PrevCount: st.PrevCount, Count: st.SendCount}

	ct, err := seal(key, header, ad, plaintext)
	crypto.Wipe(key)
	if err != nil {
		return Header{}, nil, err
	}
	st.SendCount++
	return header, ct, nil
}

// Decrypt consumes skipped keys, performs a DH ratchet step when the
// header carries a new remote ratchet key, then opens the message.
func Decrypt(st *State, ad []byte, header Header, ciphertext []byte) ([]byte, error) {
	// A delayed message is opened with its stored key, keyed by the
	// ratchet key it was sent under. This must run before any ratchet
	// decision: the chain that produced the key may be long gone, and
	// the live counters must not move for a message from the past.
	var sentUnder [32]byte
	copy(sentUnder[:], header.RatchetKey)
	id := skippedKeyID(sentUnder, header.Count)
	if key, ok := st.Skipped[id]; ok {
		delete(st.Skipped, id)
		pt, err := open(key, header, ad, ciphertext)
		crypto.Wipe(key)
		if err != nil {
			return nil, err
		}
		return pt, nil
	}

	if !equal32(st.PeerPub[:], header.RatchetKey) {
		skipUntil(st, header.PrevCount)
		if err := stepRecvRatchet(st, header.RatchetKey); err != nil {
			return nil, err
		}
	}
	skipUntil(st, header.Count)

	key, err := nextKey(&st.RecvChain)
	if err != nil {
		return nil, err
	}
	pt, err := open(key, header, ad, ciphertext)
	crypto.Wipe(key)
	if err != nil {
		return nil, err
	}
	st.RecvCount++
	return pt, nil
}

// stepSendRatchet advances the root with a fresh key pair against the
// peer's current ratchet key and starts a new sending chain.
func stepSendRatchet(st *State) error {
	pair, err := generateRatchetKey()
	if err != nil {
		return err
	}

	dh, err := crypto.DH(pair.Private, st.PeerPub)
	if err != nil {
		return err
	}
	newRoot, sendChain := kdfRoot(st.RootKey, dh[:])
	crypto.Wipe(dh[:])

	st.PrevCount = st.SendCount
	st.SendCount = 0
	st.RootKey = newRoot
	st.SendPriv, st.SendPub = pair.Private, pair.Public
	st.SendChain = sendChain
	return nil
}

// stepRecvRatchet installs a new remote ratchet key: derive the new
// receiving chain, then immediately rotate our own pair and the sending
// chain so the next reply rides the fresh root.
func stepRecvRatchet(st *State, remote []byte) error {
	var peer [32]byte
	copy(peer[:], remote)

	dh, err := crypto.DH(st.SendPriv, peer)
	if err != nil {
		return err
	}
	rootAfterRecv, recvChain := kdfRoot(st.RootKey, dh[:])
	crypto.Wipe(dh[:])

	pair, err := generateRatchetKey()
	if err != nil {
		return err
	}
	dh2, err := crypto.DH(pair.Private, peer)
	if err != nil {
		return err
	}
	rootAfterSend, sendChain := kdfRoot(rootAfterRecv, dh2[:])
	crypto.Wipe(dh2[:])

	st.PrevCount = st.SendCount
	st.SendCount, st.RecvCount = 0, 0
	st.RootKey = rootAfterSend
	st.SendPriv, st.SendPub = pair.Private, pair.Public
	st.PeerPub = peer
	st.SendChain, st.RecvChain = sendChain, recvChain
	return nil
}

// --- helpers ---

func generateRatchetKey() (crypto.KeyPair, error) {
	var pair crypto.KeyPair
	if _, err := rand.Read(pair.Private[:]); err != nil {
		return crypto.KeyPair{}, err
	}
	crypto.Clamp(&pair.Private)
	pub, err := curve25519.X25519(pair.Private[:], curve25519.Basepoint)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	copy(pair.Public[:], pub)
	return pair, nil
}

func seal(key []byte, header Header, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:keySize])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[len(nonce)-4:], header.Count)
	return aead.Seal(nil, nonce, plaintext, append(ad, headerBytes(header)...)), nil
}

func open(key []byte, header Header, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:keySize])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[len(nonce)-4:], header.Count)
	return aead.Open(nil, nonce, ciphertext, append(ad, headerBytes(header)...))
}

func headerBytes(h Header) []byte {
	out := make([]byte, 0, len(h.RatchetKey)+8)
	out = append(out, h.RatchetKey...)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], h.PrevCount)
	out = append(out, b[:]...)
	binary.BigEndian.PutUint32(b[:], h.Count)
	out = append(out, b[:]...)
	return out
}

func kdfRoot(root, dh []byte) (newRoot, chain []byte) {
	r := hkdf.New(sha256.New, dh, root, []byte("orion/dr-root"))
	newRoot = make([]byte, keySize)
	chain = make([]byte, keySize)
	_, _ = io.ReadFull(r, newRoot)
	_, _ = io.ReadFull(r, chain)
	return
}

func nextKey(chain *[]byte) ([]byte, error) {
	if len(*chain) == 0 {
		return nil, ErrChainUninitialized
	}
	r := hkdf.New(sha256.New, *chain, nil, []byte("orion/dr-chain"))
	next := make([]byte, keySize)
	key := make([]byte, keySize)
	_, _ = io.ReadFull(r, next)
	_, _ = io.ReadFull(r, key)
	*chain = next
	return key, nil
}

func skippedKeyID(peer [32]byte, n uint32) string {
	b := make([]byte, 32+4)
	copy(b, peer[:])
	binary.BigEndian.PutUint32(b[32:], n)
	return string(b)
}

// skipUntil derives and stores message keys up to target with a hard
// cap on retained keys.
func skipUntil(st *State, target uint32) {
	if len(st.RecvChain) == 0 {
		return
	}
	for st.RecvCount < target {
		key, err := nextKey(&st.RecvChain)
		if err != nil {
			return
		}
		if len(st.Skipped) >= maxSkippedKeys {
			for k := range st.Skipped {
				delete(st.Skipped, k)
				break
			}
		}
		if st.Skipped == nil {
			st.Skipped = make(map[string][]byte)
		}
		st.Skipped[skippedKeyID(st.PeerPub, st.RecvCount)] = key
		st.RecvCount++
	}
}

func equal32(a, b []byte) bool {
	if len(a) != 32 || len(b) != 32 {
		return false
	}
	var v byte
	for i := 0; i < 32; i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

package encryption_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orion/internal/client/api"
	"orion/internal/client/encryption"
	"orion/internal/client/store"
	"orion/internal/models"
	"orion/internal/repositories"
	"orion/internal/services"
)

// memoryDirectory adapts the in-memory key bundle store to the
// KeyDirectory interface, so client tests run against the same bundle
// semantics the server enforces, without HTTP in the way.
type memoryDirectory struct {
	bundles *services.MemoryKeyBundleStore
}

func (d *memoryDirectory) RegisterIdentity(ctx context.Context, req api.RegisterIdentityRequest) error {
	pub, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		return err
	}
	signing, err := base64.StdEncoding.DecodeString(req.SigningKey)
	if err != nil {
		return err
	}
	return d.bundles.PutIdentity(ctx, &models.Identity{
		UserID:         req.UserID,
		PublicKey:      pub,
		SigningKey:     signing,
		RegistrationID: req.RegistrationID,
	})
}

func (d *memoryDirectory) UploadPreKeys(ctx context.Context, req api.UploadPreKeysRequest) error {
	spkPub, err := base64.StdEncoding.DecodeString(req.SignedPreKey.PublicKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(req.SignedPreKey.Signature)
	if err != nil {
		return err
	}
	signed := models.SignedPreKey{KeyID: req.SignedPreKey.KeyID, PublicKey: spkPub, Signature: sig}

	oneTime := make([]models.OneTimePreKey, 0, len(req.OneTimePreKeys))
	for _, o := range req.OneTimePreKeys {
		pub, err := base64.StdEncoding.DecodeString(o.PublicKey)
		if err != nil {
			return err
		}
		oneTime = append(oneTime, models.OneTimePreKey{KeyID: o.KeyID, PublicKey: pub})
	}
	return d.bundles.PutPreKeys(ctx, req.UserID, signed, oneTime)
}

func (d *memoryDirectory) FetchBundle(ctx context.Context, userID string) (*api.BundleResponse, error) {
	bundle, err := d.bundles.GetBundle(ctx, userID)
	if errors.Is(err, repositories.ErrIdentityNotFound) {
		return nil, api.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(bundle.SignedPreKey.PublicKey) == 0 {
		return nil, api.ErrBundleIncomplete
	}

	resp := &api.BundleResponse{
		IdentityKey:    base64.StdEncoding.EncodeToString(bundle.IdentityKey),
		SigningKey:     base64.StdEncoding.EncodeToString(bundle.SigningKey),
		RegistrationID: bundle.RegistrationID,
		SignedPreKey: api.SignedPreKeyDTO{
			KeyID:     bundle.SignedPreKey.KeyID,
			PublicKey: base64.StdEncoding.EncodeToString(bundle.SignedPreKey.PublicKey),
			Signature: base64.StdEncoding.EncodeToString(bundle.SignedPreKey.Signature),
		},
	}
	if bundle.OneTimePreKey != nil {
		resp.OneTimePreKey = &api.OneTimePreKeyDTO{
			KeyID:     bundle.OneTimePreKey.KeyID,
			PublicKey: base64.StdEncoding.EncodeToString(bundle.OneTimePreKey.PublicKey),
		}
	}
	return resp, nil
}

type failOnceDirectory struct {
	encryption.KeyDirectory
	failed bool
}

func (f *failOnceDirectory) RegisterIdentity(ctx context.Context, req api.RegisterIdentityRequest) error {
	if !f.failed {
		f.failed = true
		return errors.New("network unreachable")
	}
	return f.KeyDirectory.RegisterIdentity(ctx, req)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPeer(t *testing.T, userID string, dir encryption.KeyDirectory) (*encryption.Service, *store.SessionStore) {
	t.Helper()
	ss := store.NewSessionStore(store.NewMemoryStore())
	svc := encryption.NewService(userID, ss, dir, testLogger())
	require.NoError(t, svc.Initialize(context.Background()))
	return svc, ss
}

func TestFirstContactRoundTrip(t *testing.T) {
	dir := &memoryDirectory{bundles: services.NewMemoryKeyBundleStore()}
	alice, _ := newPeer(t, "alice", dir)
	bob, _ := newPeer(t, "bob", dir)
	ctx := context.Background()

	env, err := alice.EncryptMessage(ctx, "bob", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, encryption.EnvelopeTypePreKey, env.Type)

	pt, err := bob.DecryptMessage(ctx, "alice", env)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), pt)
}

func TestEstablishedSessionUsesCiphertextEnvelopes(t *testing.T) {
	dir := &memoryDirectory{bundles: services.NewMemoryKeyBundleStore()}
	alice, _ := newPeer(t, "alice", dir)
	bob, _ := newPeer(t, "bob", dir)
	ctx := context.Background()

	env, err := alice.EncryptMessage(ctx, "bob", []byte("first"))
	require.NoError(t, err)
	_, err = bob.DecryptMessage(ctx, "alice", env)
	require.NoError(t, err)

	env, err = alice.EncryptMessage(ctx, "bob", []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, encryption.EnvelopeTypeCiphertext, env.Type)

	pt, err := bob.DecryptMessage(ctx, "alice", env)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), pt)

	// Replies flow over the same session.
	env, err = bob.EncryptMessage(ctx, "alice", []byte("ack"))
	require.NoError(t, err)
	assert.Equal(t, encryption.EnvelopeTypeCiphertext, env.Type)

	pt, err = alice.DecryptMessage(ctx, "bob", env)
	require.NoError(t, err)
	assert.Equal(t, []byte("ack"), pt)
}

func TestDecryptWithoutSession(t *testing.T) {
	dir := &memoryDirectory{bundles: services.NewMemoryKeyBundleStore()}
	alice, _ := newPeer(t, "alice", dir)
	bob, _ := newPeer(t, "bob", dir)
	ctx := context.Background()

	env, err := alice.EncryptMessage(ctx, "bob", []byte("hello"))
	require.NoError(t, err)
	_, err = bob.DecryptMessage(ctx, "alice", env)
	require.NoError(t, err)

	env, err = alice.EncryptMessage(ctx, "bob", []byte("again"))
	require.NoError(t, err)

	// A third party with no session cannot branch on a plain
	// ciphertext envelope.
	carol, _ := newPeer(t, "carol", dir)
	_, err = carol.DecryptMessage(ctx, "alice", env)
	assert.ErrorIs(t, err, encryption.ErrNoSession)
}

func TestEncryptForUnknownPeer(t *testing.T) {
	dir := &memoryDirectory{bundles: services.NewMemoryKeyBundleStore()}
	alice, _ := newPeer(t, "alice", dir)

	_, err := alice.EncryptMessage(context.Background(), "nobody", []byte("hi"))
	assert.ErrorIs(t, err, encryption.ErrPeerNotFound)
}

func TestEncryptWithIncompleteBundle(t *testing.T) {
	bundles := services.NewMemoryKeyBundleStore()
	dir := &memoryDirectory{bundles: bundles}
	alice, _ := newPeer(t, "alice", dir)

	// Identity registered but prekeys never uploaded.
	require.NoError(t, bundles.PutIdentity(context.Background(), &models.Identity{
		UserID:         "bob",
		PublicKey:      make([]byte, 32),
		SigningKey:     make([]byte, 32),
		RegistrationID: 7,
	}))

	_, err := alice.EncryptMessage(context.Background(), "bob", []byte("hi"))
	assert.ErrorIs(t, err, encryption.ErrBundleIncomplete)
}

func TestInitializeRetriesUploadOnly(t *testing.T) {
	dir := &memoryDirectory{bundles: services.NewMemoryKeyBundleStore()}
	flaky := &failOnceDirectory{KeyDirectory: dir}

	ss := store.NewSessionStore(store.NewMemoryStore())
	svc := encryption.NewService("alice", ss, flaky, testLogger())

	err := svc.Initialize(context.Background())
	require.Error(t, err)

	// Keys were generated despite the failed upload.
	first, err := ss.LoadIdentity()
	require.NoError(t, err)

	require.NoError(t, svc.Initialize(context.Background()))

	second, err := ss.LoadIdentity()
	require.NoError(t, err)
	assert.Equal(t, first, second, "retry must not regenerate keys")

	uploaded, err := ss.Uploaded()
	require.NoError(t, err)
	assert.True(t, uploaded)
}

func TestInitializeIsNoOpOnceUploaded(t *testing.T) {
	dir := &memoryDirectory{bundles: services.NewMemoryKeyBundleStore()}
	ss := store.NewSessionStore(store.NewMemoryStore())
	svc := encryption.NewService("alice", ss, dir, testLogger())

	require.NoError(t, svc.Initialize(context.Background()))
	before, err := ss.LoadIdentity()
	require.NoError(t, err)

	require.NoError(t, svc.Initialize(context.Background()))
	after, err := ss.LoadIdentity()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHandshakeConsumesOneTimePreKey(t *testing.T) {
	bundles := services.NewMemoryKeyBundleStore()
	dir := &memoryDirectory{bundles: bundles}
	alice, _ := newPeer(t, "alice", dir)
	bob, bobStore := newPeer(t, "bob", dir)
	ctx := context.Background()

	serverBefore := bundles.OneTimeCount("bob")
	localBefore, err := bobStore.PreKeyCount()
	require.NoError(t, err)

	env, err := alice.EncryptMessage(ctx, "bob", []byte("hi"))
	require.NoError(t, err)
	_, err = bob.DecryptMessage(ctx, "alice", env)
	require.NoError(t, err)

	assert.Equal(t, serverBefore-1, bundles.OneTimeCount("bob"))

	localAfter, err := bobStore.PreKeyCount()
	require.NoError(t, err)
	assert.Equal(t, localBefore-1, localAfter, "consumed prekey must be deleted locally")
}

func TestExhaustedPoolDegradesGracefully(t *testing.T) {
	bundles := services.NewMemoryKeyBundleStore()
	dir := &memoryDirectory{bundles: bundles}
	alice, _ := newPeer(t, "alice", dir)
	bob, _ := newPeer(t, "bob", dir)
	ctx := context.Background()

	for bundles.OneTimeCount("bob") > 0 {
		_, err := dir.FetchBundle(ctx, "bob")
		require.NoError(t, err)
	}

	env, err := alice.EncryptMessage(ctx, "bob", []byte("still works"))
	require.NoError(t, err)
	assert.Equal(t, encryption.EnvelopeTypePreKey, env.Type)

	var msg struct {
		Handshake struct {
			OneTimePreKeyID *uint32 `json:"oneTimePreKeyId"`
		} `json:"handshake"`
	}
	raw, err := base64.StdEncoding.DecodeString(env.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Nil(t, msg.Handshake.OneTimePreKeyID)

	pt, err := bob.DecryptMessage(ctx, "alice", env)
	require.NoError(t, err)
	assert.Equal(t, []byte("still works"), pt)
}

func TestIdentityChangeIsRejected(t *testing.T) {
	bundles := services.NewMemoryKeyBundleStore()
	dir := &memoryDirectory{bundles: bundles}
	alice, _ := newPeer(t, "alice", dir)
	bob, _ := newPeer(t, "bob", dir)
	ctx := context.Background()

	env, err := alice.EncryptMessage(ctx, "bob", []byte("hi"))
	require.NoError(t, err)
	_, err = bob.DecryptMessage(ctx, "alice", env)
	require.NoError(t, err)

	// Bob reinstalls: fresh local store, new identity, same user id.
	_, _ = newPeer(t, "bob", dir)

	require.NoError(t, alice.ResetSession("bob"))
	_, err = alice.EncryptMessage(ctx, "bob", []byte("hello?"))
	assert.ErrorIs(t, err, encryption.ErrUntrustedIdentity)
}

func TestFingerprintStable(t *testing.T) {
	dir := &memoryDirectory{bundles: services.NewMemoryKeyBundleStore()}
	alice, _ := newPeer(t, "alice", dir)

	a, err := alice.Fingerprint()
	require.NoError(t, err)
	b, err := alice.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 20)
}

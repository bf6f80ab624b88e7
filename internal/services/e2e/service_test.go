package e2e_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convokey/internal/crypto"
	"convokey/internal/domain"
	"convokey/internal/domain/mocks"
	"convokey/internal/keydir"
	"convokey/internal/services/e2e"
	"convokey/internal/store"
)

type session struct {
	svc   *e2e.Service
	pairs *store.KeyPairStore
}

func newSession(t *testing.T, dir domain.Directory) session {
	t.Helper()
	pairs := store.NewKeyPairStore(store.NewMemorySecureStore())
	return newSessionWith(t, dir, pairs)
}

func newSessionWith(t *testing.T, dir domain.Directory, pairs *store.KeyPairStore) session {
	t.Helper()
	svc := e2e.New(pairs, dir, e2e.Options{})
	t.Cleanup(func() { _ = svc.Close() })
	return session{svc: svc, pairs: pairs}
}

// splitDir lets a mocked KeyDirectory sit next to a real GroupKeyStore.
type splitDir struct {
	domain.KeyDirectory
	domain.GroupKeyStore
}

// flakyDir fails selected writes.
type flakyDir struct {
	*keydir.Memory
	insertErr error

	mu      sync.Mutex
	rowsErr error
}

func (d *flakyDir) InsertPublicKey(ctx context.Context, rec domain.PublishedPublicKey) error {
	if d.insertErr != nil {
		return d.insertErr
	}
	return d.Memory.InsertPublicKey(ctx, rec)
}

// InsertGroupKeyRows fails once with rowsErr.
func (d *flakyDir) InsertGroupKeyRows(ctx context.Context, rows []domain.GroupKeyRow) error {
	d.mu.Lock()
	err := d.rowsErr
	d.rowsErr = nil
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return d.Memory.InsertGroupKeyRows(ctx, rows)
}

func TestEnsureUserKeyPair_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := keydir.NewMemory()
	alice := newSession(t, dir)

	state, err := alice.svc.KeyState("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.NoKeyPair, state)

	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
	first, ok, err := alice.pairs.LoadKeyPair("alice")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
	second, _, err := alice.pairs.LoadKeyPair("alice")
	require.NoError(t, err)
	assert.Equal(t, first.PrivateKey, second.PrivateKey)

	rec, ok, err := dir.FetchPublicKey(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.PublicKey, rec.PublicKey)

	state, err = alice.svc.KeyState("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.PublicKeyPublished, state)
}

func TestEnsureUserKeyPair_PublishFailureKeepsLocalPair(t *testing.T) {
	ctx := context.Background()
	dir := &flakyDir{Memory: keydir.NewMemory(), insertErr: errors.New("directory down")}
	alice := newSession(t, dir)

	err := alice.svc.EnsureUserKeyPair(ctx, "alice")
	require.ErrorIs(t, err, e2e.ErrPublishFailed)

	state, err := alice.svc.KeyState("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.KeyPairGenerated, state)

	dir.insertErr = nil
	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"), "a later call retries the publish")
	state, err = alice.svc.KeyState("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.PublicKeyPublished, state)
}

func TestEnsureUserKeyPair_InsertFallsBackToRecordID(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	keys := mocks.NewMockKeyDirectory(ctrl)
	alice := newSession(t, splitDir{KeyDirectory: keys, GroupKeyStore: keydir.NewMemory()})

	keys.EXPECT().FetchPublicKey(gomock.Any(), domain.UserID("alice")).
		Return(domain.PublishedPublicKey{}, false, nil)
	gomock.InOrder(
		keys.EXPECT().InsertPublicKey(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec domain.PublishedPublicKey) error {
				assert.Empty(t, rec.ID)
				return domain.ErrSchemaConstraint
			}),
		keys.EXPECT().InsertPublicKey(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec domain.PublishedPublicKey) error {
				assert.NotEmpty(t, rec.ID)
				assert.Equal(t, domain.UserID("alice"), rec.UserID)
				return nil
			}),
	)

	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
}

func TestEnsureUserKeyPair_SkipsWriteWhenDirectoryIsCurrent(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	keys := mocks.NewMockKeyDirectory(ctrl)
	alice := newSession(t, splitDir{KeyDirectory: keys, GroupKeyStore: keydir.NewMemory()})

	pair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, alice.pairs.SaveKeyPair("alice", pair))

	keys.EXPECT().FetchPublicKey(gomock.Any(), domain.UserID("alice")).
		Return(domain.PublishedPublicKey{ID: "rec-1", UserID: "alice", PublicKey: pair.PublicKey}, true, nil)

	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
}

func TestEnsureUserKeyPair_UpdatesStaleDirectoryKey(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	keys := mocks.NewMockKeyDirectory(ctrl)
	alice := newSession(t, splitDir{KeyDirectory: keys, GroupKeyStore: keydir.NewMemory()})

	keys.EXPECT().FetchPublicKey(gomock.Any(), domain.UserID("alice")).
		Return(domain.PublishedPublicKey{ID: "rec-1", UserID: "alice", PublicKey: "old"}, true, nil)
	keys.EXPECT().UpdatePublicKey(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec domain.PublishedPublicKey) error {
			assert.Equal(t, "rec-1", rec.ID)
			assert.NotEqual(t, "old", rec.PublicKey)
			return nil
		})

	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
}

func TestConversation_FreshOneToOne(t *testing.T) {
	ctx := context.Background()
	dir := keydir.NewMemory()
	alice := newSession(t, dir)
	bob := newSession(t, dir)

	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
	require.NoError(t, bob.svc.EnsureUserKeyPair(ctx, "bob"))

	ka, err := alice.svc.GetOrCreateConversationKey(ctx, "alice", "bob")
	require.NoError(t, err)
	kb, err := bob.svc.GetOrCreateConversationKey(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	enc, err := alice.svc.EncryptMessageContent(ctx, "hello", domain.Individual{UserID: "alice", PeerID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, domain.FormatE2E, enc.Format)
	assert.NotEqual(t, "hello", enc.Content)

	got := bob.svc.DecryptMessageContent(ctx, enc.Content, enc.Format, domain.Individual{UserID: "bob", PeerID: "alice"})
	assert.Equal(t, "hello", got)
}

func TestConversation_MissingPeerKey(t *testing.T) {
	ctx := context.Background()
	alice := newSession(t, keydir.NewMemory())
	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))

	_, err := alice.svc.GetOrCreateConversationKey(ctx, "alice", "bob")
	require.ErrorIs(t, err, e2e.ErrPeerKeyNotPublished)

	_, err = alice.svc.EncryptMessageContent(ctx, "hi", domain.Individual{UserID: "alice", PeerID: "bob"})
	require.ErrorIs(t, err, e2e.ErrKeyUnavailable)
	assert.ErrorIs(t, err, e2e.ErrPeerKeyNotPublished)
}

func TestConversation_NoLocalKeyPair(t *testing.T) {
	alice := newSession(t, keydir.NewMemory())
	_, err := alice.svc.GetOrCreateConversationKey(context.Background(), "alice", "bob")
	assert.ErrorIs(t, err, e2e.ErrNoKeyPair)
}

func TestEncrypt_CreatesKeyPairOnFirstUse(t *testing.T) {
	ctx := context.Background()
	dir := keydir.NewMemory()
	alice := newSession(t, dir)
	bob := newSession(t, dir)
	require.NoError(t, bob.svc.EnsureUserKeyPair(ctx, "bob"))

	enc, err := alice.svc.EncryptMessageContent(ctx, "first", domain.Individual{UserID: "alice", PeerID: "bob"})
	require.NoError(t, err)

	state, err := alice.svc.KeyState("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.PublicKeyPublished, state)
	assert.Equal(t, "first", bob.svc.DecryptMessageContent(ctx, enc.Content, enc.Format, domain.Individual{UserID: "bob", PeerID: "alice"}))
}

func TestDecrypt_PlainFormatPassesThrough(t *testing.T) {
	alice := newSession(t, keydir.NewMemory())
	for _, mc := range []domain.MessageContext{
		nil,
		domain.Individual{UserID: "alice", PeerID: "nobody"},
		domain.Group{UserID: "alice", GroupID: "nowhere"},
	} {
		got := alice.svc.DecryptMessageContent(context.Background(), "plain text", domain.FormatPlain, mc)
		assert.Equal(t, "plain text", got)
	}
}

func TestDecrypt_CorruptedMessageBecomesPlaceholder(t *testing.T) {
	ctx := context.Background()
	dir := keydir.NewMemory()
	alice := newSession(t, dir)
	bob := newSession(t, dir)
	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
	require.NoError(t, bob.svc.EnsureUserKeyPair(ctx, "bob"))
	mc := domain.Individual{UserID: "bob", PeerID: "alice"}

	for _, content := range []string{"", "AAAA", "not base64 at all!"} {
		assert.Equal(t, e2e.Placeholder, bob.svc.DecryptMessageContent(ctx, content, domain.FormatE2E, mc))
	}

	enc, err := alice.svc.EncryptMessageContent(ctx, "hello", domain.Individual{UserID: "alice", PeerID: "bob"})
	require.NoError(t, err)
	truncated := enc.Content[:len(enc.Content)-8]
	assert.Equal(t, e2e.Placeholder, bob.svc.DecryptMessageContent(ctx, truncated, domain.FormatE2E, mc))

	_, err = bob.svc.TryDecryptMessageContent(ctx, "AAAA", domain.FormatE2E, mc)
	assert.ErrorIs(t, err, crypto.ErrPayloadTooShort)
}

func TestEncrypt_UnknownContext(t *testing.T) {
	alice := newSession(t, keydir.NewMemory())
	_, err := alice.svc.EncryptMessageContent(context.Background(), "x", nil)
	require.ErrorIs(t, err, e2e.ErrKeyUnavailable)
	assert.ErrorIs(t, err, e2e.ErrUnknownContext)
}

func TestResetKeys_DerivesFreshKeys(t *testing.T) {
	ctx := context.Background()
	dir := keydir.NewMemory()
	alice := newSession(t, dir)
	bob := newSession(t, dir)
	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
	require.NoError(t, bob.svc.EnsureUserKeyPair(ctx, "bob"))

	before, err := alice.svc.GetOrCreateConversationKey(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, alice.svc.ResetKeys("alice"))
	state, err := alice.svc.KeyState("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.NoKeyPair, state)

	require.NoError(t, alice.svc.EnsureUserKeyPair(ctx, "alice"))
	after, err := alice.svc.GetOrCreateConversationKey(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	// A new session for bob has nothing cached from before the reset.
	bobAgain := newSessionWith(t, dir, bob.pairs)
	fromBob, err := bobAgain.svc.GetOrCreateConversationKey(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, after, fromBob, "the directory carries the new public key")
}

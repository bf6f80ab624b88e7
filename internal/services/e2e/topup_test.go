package e2e_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convokey/internal/crypto"
	"convokey/internal/domain"
	"convokey/internal/keydir"
	"convokey/internal/services/e2e"
)

// gatedDir blocks MembersMissingGroupKey for group "slow" until released.
type gatedDir struct {
	*keydir.Memory
	entered chan struct{}
	release chan struct{}
}

func (d *gatedDir) MembersMissingGroupKey(ctx context.Context, g domain.GroupID) ([]domain.UserID, error) {
	if g == "slow" {
		d.entered <- struct{}{}
		<-d.release
	}
	return d.Memory.MembersMissingGroupKey(ctx, g)
}

func publish(t *testing.T, dir *keydir.Memory, user domain.UserID) domain.KeyPair {
	t.Helper()
	pair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, dir.InsertPublicKey(context.Background(), domain.PublishedPublicKey{UserID: user, PublicKey: pair.PublicKey}))
	return pair
}

func TestTopUp_WrapsForMissingMembers(t *testing.T) {
	ctx := context.Background()
	dir := keydir.NewMemory()
	bob := publish(t, dir, "bob")
	require.NoError(t, dir.SetGroupMembers(ctx, "g", []domain.UserID{"alice", "bob", "carol"}))
	require.NoError(t, dir.UpsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "alice", EncryptedKey: "existing"},
	}))

	w := e2e.NewTopUpWorker(dir, e2e.TopUpConfig{}, nil)
	defer w.Close()

	key, err := crypto.GenerateSymmetricKey()
	require.NoError(t, err)
	require.True(t, w.Enqueue("g", key))
	w.Wait()

	row, ok, err := dir.LoadGroupKeyRow(ctx, "g", "bob")
	require.NoError(t, err)
	require.True(t, ok)
	got, err := crypto.UnwrapKey(row.EncryptedKey, bob.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	alice, _, err := dir.LoadGroupKeyRow(ctx, "g", "alice")
	require.NoError(t, err)
	assert.Equal(t, "existing", alice.EncryptedKey, "members with a row are left alone")

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Written)
	assert.Equal(t, uint64(1), stats.Skipped, "carol has no published key")
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Zero(t, stats.Failed)
}

func TestTopUp_BoundedQueue(t *testing.T) {
	dir := &gatedDir{
		Memory:  keydir.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := e2e.NewTopUpWorker(dir, e2e.TopUpConfig{QueueSize: 1}, nil)
	defer w.Close()
	key := make([]byte, 32)

	require.True(t, w.Enqueue("slow", key))
	<-dir.entered

	assert.True(t, w.Enqueue("g1", key))
	assert.True(t, w.Enqueue("g1", key), "a queued group is coalesced")
	assert.False(t, w.Enqueue("g2", key), "queue is full")

	close(dir.release)
	w.Wait()

	stats := w.Stats()
	assert.Equal(t, uint64(2), stats.Enqueued)
	assert.Equal(t, uint64(1), stats.Coalesced)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, uint64(2), stats.Completed)
}

func TestTopUp_CloseIsIdempotent(t *testing.T) {
	w := e2e.NewTopUpWorker(keydir.NewMemory(), e2e.TopUpConfig{}, nil)
	w.Close()
	w.Close()
	assert.False(t, w.Enqueue("g", make([]byte, 32)))
}

func TestTopUp_CloseFinishesAcceptedPasses(t *testing.T) {
	ctx := context.Background()
	dir := keydir.NewMemory()
	publish(t, dir, "bob")
	require.NoError(t, dir.SetGroupMembers(ctx, "g", []domain.UserID{"bob"}))

	w := e2e.NewTopUpWorker(dir, e2e.TopUpConfig{}, nil)
	require.True(t, w.Enqueue("g", make([]byte, 32)))
	w.Close()

	_, ok, err := dir.LoadGroupKeyRow(ctx, "g", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Zero(t, stats.Dropped)
}

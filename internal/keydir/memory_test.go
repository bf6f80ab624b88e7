package keydir_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convokey/internal/domain"
	"convokey/internal/keydir"
)

func TestMemory_PublicKeys(t *testing.T) {
	ctx := context.Background()
	m := keydir.NewMemory()

	_, ok, err := m.FetchPublicKey(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, m.UpdatePublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "k1"}), domain.ErrNotFound)

	require.NoError(t, m.InsertPublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "k1"}))
	assert.ErrorIs(t, m.InsertPublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "k2"}), domain.ErrConflict)

	require.NoError(t, m.UpdatePublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "k2"}))
	rec, ok, err := m.FetchPublicKey(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k2", rec.PublicKey)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestMemory_RequireRecordID(t *testing.T) {
	ctx := context.Background()
	m := keydir.NewMemory()
	m.RequireRecordID = true

	err := m.InsertPublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "k"})
	assert.ErrorIs(t, err, domain.ErrSchemaConstraint)

	require.NoError(t, m.InsertPublicKey(ctx, domain.PublishedPublicKey{ID: "id-1", UserID: "alice", PublicKey: "k"}))
}

func TestMemory_GroupRows(t *testing.T) {
	ctx := context.Background()
	m := keydir.NewMemory()
	require.NoError(t, m.SetGroupMembers(ctx, "g", []domain.UserID{"carol", "alice", "bob"}))

	exists, err := m.GroupKeyExists(ctx, "g")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.UpsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "alice", EncryptedKey: "w1"},
	}))
	exists, err = m.GroupKeyExists(ctx, "g")
	require.NoError(t, err)
	assert.True(t, exists)

	missing, err := m.MembersMissingGroupKey(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"bob", "carol"}, missing)

	require.NoError(t, m.UpsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "alice", EncryptedKey: "w2"},
	}))
	row, ok, err := m.LoadGroupKeyRow(ctx, "g", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "w2", row.EncryptedKey, "upsert replaces the member's row")

	_, ok, err = m.LoadGroupKeyRow(ctx, "g", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	m := keydir.NewMemory()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, u := range []domain.UserID{"a", "b", "c", "d", "e", "f", "g", "h"} {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := m.ClaimGroupKeyOrigination(ctx, "grp", u)
			if err == nil && won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemory_ReleaseOnlyByHolder(t *testing.T) {
	ctx := context.Background()
	m := keydir.NewMemory()

	won, err := m.ClaimGroupKeyOrigination(ctx, "grp", "alice")
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, m.ReleaseGroupKeyOrigination(ctx, "grp", "bob"))
	won, err = m.ClaimGroupKeyOrigination(ctx, "grp", "bob")
	require.NoError(t, err)
	assert.False(t, won, "bob cannot release alice's claim")

	require.NoError(t, m.ReleaseGroupKeyOrigination(ctx, "grp", "alice"))
	won, err = m.ClaimGroupKeyOrigination(ctx, "grp", "bob")
	require.NoError(t, err)
	assert.True(t, won)
}

func TestMemory_HeldClaimIsNotWonAgain(t *testing.T) {
	ctx := context.Background()
	m := keydir.NewMemory()

	won, err := m.ClaimGroupKeyOrigination(ctx, "grp", "alice")
	require.NoError(t, err)
	require.True(t, won)
	won, err = m.ClaimGroupKeyOrigination(ctx, "grp", "alice")
	require.NoError(t, err)
	assert.False(t, won, "the holder does not win twice")
}

func TestMemory_InsertGroupKeyRowsConflicts(t *testing.T) {
	ctx := context.Background()
	m := keydir.NewMemory()

	require.NoError(t, m.InsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "alice", EncryptedKey: "k1"},
	}))
	err := m.InsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "bob", EncryptedKey: "k2"},
		{GroupID: "g", TargetUserID: "alice", EncryptedKey: "k2"},
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	row, _, err := m.LoadGroupKeyRow(ctx, "g", "alice")
	require.NoError(t, err)
	assert.Equal(t, "k1", row.EncryptedKey)
	_, ok, err := m.LoadGroupKeyRow(ctx, "g", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

package keydir_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convokey/internal/domain"
	"convokey/internal/keydir"
)

func newTestServer(t *testing.T, cfg keydir.ServerConfig) (*keydir.Memory, *httptest.Server) {
	t.Helper()
	tokens, err := keydir.NewTokens([]byte("test-secret-0123456789"), time.Minute)
	require.NoError(t, err)
	mem := keydir.NewMemory()
	srv := httptest.NewServer(keydir.NewServer(mem, tokens, cfg, nil))
	t.Cleanup(srv.Close)
	return mem, srv
}

func login(t *testing.T, base string, user domain.UserID) *keydir.HTTPClient {
	t.Helper()
	c := keydir.NewHTTPClient(base, time.Second)
	require.NoError(t, c.Login(context.Background(), user))
	return c
}

func TestServer_PublicKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, srv := newTestServer(t, keydir.ServerConfig{})
	alice := login(t, srv.URL, "alice")
	bob := login(t, srv.URL, "bob")

	_, ok, err := bob.FetchPublicKey(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, alice.InsertPublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "pk-a"}))
	assert.ErrorIs(t, alice.InsertPublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "pk-a"}), domain.ErrConflict)

	rec, ok, err := bob.FetchPublicKey(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pk-a", rec.PublicKey)

	require.NoError(t, alice.UpdatePublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "pk-a2"}))
	rec, _, err = bob.FetchPublicKey(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pk-a2", rec.PublicKey)
}

func TestServer_CannotWriteOthersKey(t *testing.T) {
	ctx := context.Background()
	_, srv := newTestServer(t, keydir.ServerConfig{})
	mallory := login(t, srv.URL, "mallory")

	err := mallory.InsertPublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "evil"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	err = mallory.UpdatePublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "evil"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestServer_SchemaConstraintSurfaces(t *testing.T) {
	ctx := context.Background()
	mem, srv := newTestServer(t, keydir.ServerConfig{})
	mem.RequireRecordID = true
	alice := login(t, srv.URL, "alice")

	err := alice.InsertPublicKey(ctx, domain.PublishedPublicKey{UserID: "alice", PublicKey: "pk"})
	assert.ErrorIs(t, err, domain.ErrSchemaConstraint)

	require.NoError(t, alice.InsertPublicKey(ctx, domain.PublishedPublicKey{ID: "rec-1", UserID: "alice", PublicKey: "pk"}))
}

func TestServer_UnauthenticatedRejected(t *testing.T) {
	_, srv := newTestServer(t, keydir.ServerConfig{})
	anon := keydir.NewHTTPClient(srv.URL, time.Second)

	_, _, err := anon.FetchPublicKey(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestServer_GroupRowsAreRowLevel(t *testing.T) {
	ctx := context.Background()
	mem, srv := newTestServer(t, keydir.ServerConfig{})
	require.NoError(t, mem.SetGroupMembers(ctx, "g", []domain.UserID{"alice", "bob"}))
	alice := login(t, srv.URL, "alice")
	bob := login(t, srv.URL, "bob")
	eve := login(t, srv.URL, "eve")

	won, err := alice.ClaimGroupKeyOrigination(ctx, "g", "alice")
	require.NoError(t, err)
	require.True(t, won)
	won, err = bob.ClaimGroupKeyOrigination(ctx, "g", "bob")
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, alice.UpsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "alice", EncryptedKey: "wa"},
		{GroupID: "g", TargetUserID: "bob", EncryptedKey: "wb"},
	}))

	row, ok, err := bob.LoadGroupKeyRow(ctx, "g", "bob")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wb", row.EncryptedKey)

	_, _, err = bob.LoadGroupKeyRow(ctx, "g", "alice")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = eve.ListGroupMembers(ctx, "g")
	assert.ErrorIs(t, err, domain.ErrForbidden, "non-members cannot see the group")

	exists, err := bob.GroupKeyExists(ctx, "g")
	require.NoError(t, err)
	assert.True(t, exists)
	missing, err := bob.MembersMissingGroupKey(ctx, "g")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestServer_RejectsRowsForNonMembers(t *testing.T) {
	ctx := context.Background()
	mem, srv := newTestServer(t, keydir.ServerConfig{})
	require.NoError(t, mem.SetGroupMembers(ctx, "g", []domain.UserID{"alice"}))
	alice := login(t, srv.URL, "alice")

	err := alice.UpsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "eve", EncryptedKey: "w"},
	})
	assert.ErrorIs(t, err, domain.ErrSchemaConstraint)
}

func TestServer_OnlyMembersChangeExistingGroup(t *testing.T) {
	ctx := context.Background()
	mem, srv := newTestServer(t, keydir.ServerConfig{})
	require.NoError(t, mem.SetGroupMembers(ctx, "g", []domain.UserID{"alice", "bob"}))
	alice := login(t, srv.URL, "alice")
	mallory := login(t, srv.URL, "mallory")

	err := mallory.SetGroupMembers(ctx, "g", []domain.UserID{"mallory"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	err = mallory.SetGroupMembers(ctx, "g", []domain.UserID{"alice", "bob", "mallory"})
	assert.ErrorIs(t, err, domain.ErrForbidden, "outsiders cannot add themselves")

	members, err := mem.ListGroupMembers(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"alice", "bob"}, members)

	require.NoError(t, alice.SetGroupMembers(ctx, "g", []domain.UserID{"alice", "bob", "carol"}))
	require.NoError(t, mallory.SetGroupMembers(ctx, "fresh", []domain.UserID{"mallory"}), "new groups are open")
}

func TestServer_InsertRowsNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	mem, srv := newTestServer(t, keydir.ServerConfig{})
	require.NoError(t, mem.SetGroupMembers(ctx, "g", []domain.UserID{"alice", "bob"}))
	alice := login(t, srv.URL, "alice")

	require.NoError(t, alice.InsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "alice", EncryptedKey: "first"},
	}))
	err := alice.InsertGroupKeyRows(ctx, []domain.GroupKeyRow{
		{GroupID: "g", TargetUserID: "bob", EncryptedKey: "second"},
		{GroupID: "g", TargetUserID: "alice", EncryptedKey: "second"},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	row, ok, err := alice.LoadGroupKeyRow(ctx, "g", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", row.EncryptedKey)
	_, ok, err = mem.LoadGroupKeyRow(ctx, "g", "bob")
	require.NoError(t, err)
	assert.False(t, ok, "a conflicting batch writes nothing")
}

func TestServer_RateLimited(t *testing.T) {
	_, srv := newTestServer(t, keydir.ServerConfig{RateLimit: 0.001, RateBurst: 1})

	resp, err := http.Get(srv.URL + "/keys/alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/keys/alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

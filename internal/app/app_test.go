package app_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convokey/internal/app"
	"convokey/internal/domain"
	"convokey/internal/keydir"
)

func TestLoadConfig_Defaults(t *testing.T) {
	v, err := app.LoadConfig("")
	require.NoError(t, err)
	cfg, err := app.ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080", cfg.Directory.URL)
	assert.Equal(t, 10*time.Second, cfg.Directory.Timeout)
	assert.Equal(t, app.SecureStoreEncrypted, cfg.SecureStore.Mode)
	assert.Equal(t, 64, cfg.TopUp.QueueSize)
	assert.Equal(t, app.BackendMemory, cfg.Server.Backend)
	assert.Equal(t, time.Hour, cfg.Server.TokenTTL)
	assert.False(t, cfg.Messaging.AllowPlaintextFallback)
	assert.True(t, filepath.IsAbs(cfg.Home), "home is expanded")
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convokey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
home: /tmp/convokey-test
directory:
  url: http://keys.example:9000
  timeout: 3s
topup:
  queue_size: 8
server:
  backend: postgres
  require_record_id: true
`), 0o600))
	t.Setenv("CONVOKEY_DIRECTORY_URL", "http://override:1")
	t.Setenv("CONVOKEY_MESSAGING_ALLOW_PLAINTEXT_FALLBACK", "true")

	v, err := app.LoadConfig(path)
	require.NoError(t, err)
	cfg, err := app.ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/convokey-test", cfg.Home)
	assert.Equal(t, "http://override:1", cfg.Directory.URL, "environment beats the file")
	assert.Equal(t, 3*time.Second, cfg.Directory.Timeout)
	assert.Equal(t, 8, cfg.TopUp.QueueSize)
	assert.Equal(t, app.BackendPostgres, cfg.Server.Backend)
	assert.True(t, cfg.Server.RequireRecordID)
	assert.True(t, cfg.Messaging.AllowPlaintextFallback)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := app.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewWire_EncryptedStoreNeedsPassphrase(t *testing.T) {
	cfg := app.Config{Home: t.TempDir(), SecureStore: app.SecureStoreConfig{Mode: app.SecureStoreEncrypted}}
	_, err := app.NewWire(cfg, "", nil)
	assert.ErrorIs(t, err, app.ErrPassphraseRequired)
}

func TestOpen_TwoUsersThroughDirectoryServer(t *testing.T) {
	ctx := context.Background()
	tokens, err := keydir.NewTokens([]byte("0123456789abcdef0123"), time.Minute)
	require.NoError(t, err)
	mem := keydir.NewMemory()
	mem.RequireRecordID = true
	srv := httptest.NewServer(keydir.NewServer(mem, tokens, keydir.ServerConfig{}, nil))
	defer srv.Close()

	open := func(user domain.UserID, home string) *app.App {
		cfg := app.Config{
			Home:        home,
			Directory:   app.DirectoryConfig{URL: srv.URL, Timeout: time.Second},
			SecureStore: app.SecureStoreConfig{Mode: app.SecureStoreEncrypted, ScryptN: 1 << 10},
		}
		a, err := app.Open(ctx, cfg, "pass-"+user.String(), user, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })
		return a
	}
	shared := t.TempDir()
	alice := open("alice", filepath.Join(shared, "alice"))
	bob := open("bob", filepath.Join(shared, "bob"))

	require.NoError(t, alice.E2E.EnsureUserKeyPair(ctx, "alice"))
	require.NoError(t, bob.E2E.EnsureUserKeyPair(ctx, "bob"))

	mc, err := alice.Context("bob", "")
	require.NoError(t, err)
	enc, err := alice.E2E.EncryptMessageContent(ctx, "over the wire", mc)
	require.NoError(t, err)

	back, err := bob.Context("alice", "")
	require.NoError(t, err)
	assert.Equal(t, "over the wire", bob.E2E.DecryptMessageContent(ctx, enc.Content, enc.Format, back))

	require.NoError(t, alice.Directory.SetGroupMembers(ctx, "team", []domain.UserID{"alice", "bob"}))
	ka, err := alice.E2E.GetOrCreateGroupKey(ctx, "alice", "team")
	require.NoError(t, err)
	kb, err := bob.E2E.GetOrCreateGroupKey(ctx, "bob", "team")
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

func TestContext_Validation(t *testing.T) {
	a := &app.App{User: "alice"}
	_, err := a.Context("", "")
	assert.Error(t, err)
	_, err = a.Context("bob", "g")
	assert.Error(t, err)

	mc, err := a.Context("", "g")
	require.NoError(t, err)
	assert.Equal(t, domain.Group{UserID: "alice", GroupID: "g"}, mc)
}

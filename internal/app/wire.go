package app

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"convokey/internal/domain"
	"convokey/internal/keydir"
	"convokey/internal/logger"
	e2esvc "convokey/internal/services/e2e"
	messagesvc "convokey/internal/services/message"
	"convokey/internal/store"
)

// ErrPassphraseRequired is returned when the encrypted secure store is
// selected without a passphrase.
var ErrPassphraseRequired = errors.New("passphrase required for the encrypted secure store")

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config    Config
	Log       *zap.Logger
	Secure    domain.SecureStore
	KeyPairs  domain.KeyPairStore
	Directory *keydir.HTTPClient
	E2E       *e2esvc.Service
	Messages  *messagesvc.Service

	closeSecure func() error
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, passphrase string, log *zap.Logger) (*Wire, error) {
	log = logger.OrNop(log)
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}

	secure, closeSecure, err := openSecureStore(cfg, passphrase, log)
	if err != nil {
		return nil, err
	}
	keyPairs := store.NewKeyPairStore(secure)

	// Directory client (uses the provided HTTP client if any)
	dir := keydir.NewHTTPClient(cfg.Directory.URL, cfg.Directory.Timeout)
	if cfg.HTTP != nil {
		dir.HTTP = cfg.HTTP
	}

	// High-level services
	e2e := e2esvc.New(keyPairs, dir, e2esvc.Options{TopUp: cfg.TopUp, Logger: log})
	messages := messagesvc.New(e2e, store.NewFileMessageStore(cfg.Home), messagesvc.Options{
		AllowPlaintextFallback: cfg.Messaging.AllowPlaintextFallback,
		Logger:                 log,
	})

	return &Wire{
		Config:      cfg,
		Log:         log,
		Secure:      secure,
		KeyPairs:    keyPairs,
		Directory:   dir,
		E2E:         e2e,
		Messages:    messages,
		closeSecure: closeSecure,
	}, nil
}

// Close stops background work, wipes cached keys and closes the secure store.
func (w *Wire) Close() error {
	err := w.E2E.Close()
	if w.closeSecure != nil {
		err = errors.Join(err, w.closeSecure())
	}
	return err
}

func openSecureStore(cfg Config, passphrase string, log *zap.Logger) (domain.SecureStore, func() error, error) {
	switch cfg.SecureStore.Mode {
	case SecureStoreEncrypted, "":
		if passphrase == "" {
			return nil, nil, ErrPassphraseRequired
		}
		var opts []store.EncryptedOption
		if cfg.SecureStore.ScryptN > 0 {
			opts = append(opts, store.WithScryptN(cfg.SecureStore.ScryptN))
		}
		s, err := store.NewEncryptedFileStore(cfg.Home, passphrase, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case SecureStorePlain:
		log.Warn("secure store is unencrypted; key pairs are stored in plain text", zap.String("home", cfg.Home))
		return store.NewPlainFileStore(cfg.Home), nil, nil
	case SecureStoreMemory:
		return store.NewMemorySecureStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown secure store mode %q", cfg.SecureStore.Mode)
	}
}

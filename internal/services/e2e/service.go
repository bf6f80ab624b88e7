package e2e

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"convokey/internal/crypto"
	"convokey/internal/domain"
	"convokey/internal/logger"
	"convokey/internal/store"
)

// Options tunes New.
type Options struct {
	TopUp  TopUpConfig
	Logger *zap.Logger
}

// Service is the E2E orchestration service for one session.
type Service struct {
	pairs domain.KeyPairStore
	dir   domain.Directory
	cache *store.KeyCache
	topUp *TopUpWorker
	log   *zap.Logger

	// keyMu serialises key pair creation so concurrent first uses do not
	// generate two pairs.
	keyMu sync.Mutex

	// groups collapses concurrent group key lookups into one per group.
	groups singleflight.Group

	mu        sync.Mutex
	published map[domain.UserID]string

	newRecordID func() string
	now         func() time.Time
}

// New wires a Service and starts its top-up worker.
func New(pairs domain.KeyPairStore, dir domain.Directory, opts Options) *Service {
	log := logger.OrNop(opts.Logger).Named("e2e")
	return &Service{
		pairs:       pairs,
		dir:         dir,
		cache:       store.NewKeyCache(),
		topUp:       NewTopUpWorker(dir, opts.TopUp, log),
		log:         log,
		published:   make(map[domain.UserID]string),
		newRecordID: uuid.NewString,
		now:         time.Now,
	}
}

// Close ends the session: the top-up worker stops and cached keys are wiped.
func (s *Service) Close() error {
	s.topUp.Close()
	s.cache.Clear()
	return nil
}

// TopUp exposes the background distribution worker.
func (s *Service) TopUp() *TopUpWorker { return s.topUp }

// EnsureUserKeyPair makes sure userID has a stored key pair and that its
// public half is in the directory. A nil return means both hold. When the
// directory write fails the local pair is kept and ErrPublishFailed is
// returned; a later call retries the publish.
func (s *Service) EnsureUserKeyPair(ctx context.Context, userID domain.UserID) error {
	pair, err := s.loadOrCreateKeyPair(userID)
	if err != nil {
		return err
	}
	if err := s.publish(ctx, userID, pair); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// KeyState reports where userID is in the key lifecycle, as observed by
// this session.
func (s *Service) KeyState(userID domain.UserID) (domain.KeyState, error) {
	pair, ok, err := s.pairs.LoadKeyPair(userID)
	if err != nil {
		return domain.NoKeyPair, err
	}
	if !ok {
		return domain.NoKeyPair, nil
	}
	if s.isPublished(userID, pair) {
		return domain.PublicKeyPublished, nil
	}
	return domain.KeyPairGenerated, nil
}

// ResetKeys deletes userID's stored key pair and every cached key. The next
// E2E operation generates and publishes a fresh pair.
func (s *Service) ResetKeys(userID domain.UserID) error {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if err := s.pairs.DeleteKeyPair(userID); err != nil {
		return fmt.Errorf("reset keys for %s: %w", userID, err)
	}
	s.cache.Clear()
	s.mu.Lock()
	delete(s.published, userID)
	s.mu.Unlock()
	s.log.Info("key pair reset", zap.String("user_id", userID.String()))
	return nil
}

func (s *Service) loadOrCreateKeyPair(userID domain.UserID) (domain.KeyPair, error) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	pair, ok, err := s.pairs.LoadKeyPair(userID)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("load key pair for %s: %w", userID, err)
	}
	if ok {
		return pair, nil
	}

	pair, err = crypto.GenerateKeyPair()
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("generate key pair for %s: %w", userID, err)
	}
	if err := s.pairs.SaveKeyPair(userID, pair); err != nil {
		return domain.KeyPair{}, fmt.Errorf("save key pair for %s: %w", userID, err)
	}
	// Anything cached was derived from the previous pair.
	s.cache.Clear()

	s.log.Info("key pair generated",
		zap.String("user_id", userID.String()),
		zap.Stringer("fingerprint", crypto.Fingerprint(pair.PublicKey)),
	)
	return pair, nil
}

// ensureLocal gives userID a key pair and attempts a publish if this
// session has not published it yet. Publish failures are logged only.
func (s *Service) ensureLocal(ctx context.Context, userID domain.UserID) error {
	pair, err := s.loadOrCreateKeyPair(userID)
	if err != nil {
		return err
	}
	if s.isPublished(userID, pair) {
		return nil
	}
	if err := s.publish(ctx, userID, pair); err != nil {
		s.log.Warn("public key not published; peers cannot reach us yet",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// publish writes pair's public half to the directory: no write when the
// directory already holds it, update when another key is there, insert
// otherwise. An insert rejected on a schema constraint is retried once
// with a generated record ID.
func (s *Service) publish(ctx context.Context, userID domain.UserID, pair domain.KeyPair) error {
	rec, ok, err := s.dir.FetchPublicKey(ctx, userID)
	if err != nil {
		s.log.Error("fetch own public key", zap.String("user_id", userID.String()), zap.Error(err))
		return fmt.Errorf("fetch published key: %w", err)
	}

	switch {
	case ok && rec.PublicKey == pair.PublicKey:
		// Already current.
	case ok:
		err = s.dir.UpdatePublicKey(ctx, domain.PublishedPublicKey{
			ID:        rec.ID,
			UserID:    userID,
			PublicKey: pair.PublicKey,
			UpdatedAt: s.now().UTC(),
		})
	default:
		err = s.insertPublicKey(ctx, userID, pair.PublicKey)
	}
	if err != nil {
		s.log.Error("publish public key", zap.String("user_id", userID.String()), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.published[userID] = pair.PublicKey
	s.mu.Unlock()
	s.log.Debug("public key published",
		zap.String("user_id", userID.String()),
		zap.Stringer("fingerprint", crypto.Fingerprint(pair.PublicKey)),
	)
	return nil
}

func (s *Service) insertPublicKey(ctx context.Context, userID domain.UserID, publicKey string) error {
	rec := domain.PublishedPublicKey{
		UserID:    userID,
		PublicKey: publicKey,
		UpdatedAt: s.now().UTC(),
	}
	err := s.dir.InsertPublicKey(ctx, rec)
	if !errors.Is(err, domain.ErrSchemaConstraint) {
		return err
	}
	rec.ID = s.newRecordID()
	s.log.Debug("retrying public key insert with record id", zap.String("user_id", userID.String()))
	return s.dir.InsertPublicKey(ctx, rec)
}

func (s *Service) isPublished(userID domain.UserID, pair domain.KeyPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[userID] == pair.PublicKey
}

// loadOwnKeyPair returns userID's pair or ErrNoKeyPair.
func (s *Service) loadOwnKeyPair(userID domain.UserID) (domain.KeyPair, error) {
	pair, ok, err := s.pairs.LoadKeyPair(userID)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("load key pair for %s: %w", userID, err)
	}
	if !ok {
		return domain.KeyPair{}, ErrNoKeyPair
	}
	return pair, nil
}

// Compile-time assertion that Service implements domain.E2EService.
var _ domain.E2EService = (*Service)(nil)

package store

import (
	"fmt"

	"convokey/internal/domain"
)

// Secure store slot names. The user ID is part of the name so several
// accounts on one device never share a slot.
const (
	privateKeySlot = "e2e.private.%s"
	publicKeySlot  = "e2e.public.%s"
)

// KeyPairStore persists each user's key pair in a SecureStore.
type KeyPairStore struct {
	secure domain.SecureStore
}

// NewKeyPairStore returns a KeyPairStore backed by secure.
func NewKeyPairStore(secure domain.SecureStore) *KeyPairStore {
	return &KeyPairStore{secure: secure}
}

// LoadKeyPair returns the stored pair, or ok=false if either half is missing.
func (s *KeyPairStore) LoadKeyPair(userID domain.UserID) (domain.KeyPair, bool, error) {
	priv, okPriv, err := s.secure.Get(fmt.Sprintf(privateKeySlot, userID))
	if err != nil {
		return domain.KeyPair{}, false, fmt.Errorf("load private key: %w", err)
	}
	pub, okPub, err := s.secure.Get(fmt.Sprintf(publicKeySlot, userID))
	if err != nil {
		return domain.KeyPair{}, false, fmt.Errorf("load public key: %w", err)
	}
	if !okPriv || !okPub || priv == "" || pub == "" {
		return domain.KeyPair{}, false, nil
	}
	return domain.KeyPair{PrivateKey: priv, PublicKey: pub}, true, nil
}

// SaveKeyPair writes both halves, overwriting prior values.
func (s *KeyPairStore) SaveKeyPair(userID domain.UserID, pair domain.KeyPair) error {
	if pair.IsZero() {
		return fmt.Errorf("save key pair for %q: both halves required", userID)
	}
	if err := s.secure.Set(fmt.Sprintf(privateKeySlot, userID), pair.PrivateKey); err != nil {
		return fmt.Errorf("save private key: %w", err)
	}
	if err := s.secure.Set(fmt.Sprintf(publicKeySlot, userID), pair.PublicKey); err != nil {
		return fmt.Errorf("save public key: %w", err)
	}
	return nil
}

// DeleteKeyPair removes both halves.
func (s *KeyPairStore) DeleteKeyPair(userID domain.UserID) error {
	if err := s.secure.Delete(fmt.Sprintf(privateKeySlot, userID)); err != nil {
		return fmt.Errorf("delete private key: %w", err)
	}
	if err := s.secure.Delete(fmt.Sprintf(publicKeySlot, userID)); err != nil {
		return fmt.Errorf("delete public key: %w", err)
	}
	return nil
}

// Compile-time assertion that KeyPairStore implements domain.KeyPairStore.
var _ domain.KeyPairStore = (*KeyPairStore)(nil)

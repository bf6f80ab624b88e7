package e2e

import (
	"context"
	"fmt"

	"convokey/internal/crypto"
	"convokey/internal/domain"
	"convokey/internal/store"
)

// GetOrCreateConversationKey returns the symmetric key userID shares with
// peerID. Both sides derive the same key from their own private key and
// the other's published public key.
func (s *Service) GetOrCreateConversationKey(
	ctx context.Context,
	userID domain.UserID,
	peerID domain.UserID,
) ([]byte, error) {
	slot := store.ConversationSlot(userID, peerID)
	if key, ok := s.cache.Get(slot); ok {
		return key, nil
	}

	pair, err := s.loadOwnKeyPair(userID)
	if err != nil {
		return nil, err
	}

	peer, ok, err := s.dir.FetchPublicKey(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("fetch public key of %s: %w", peerID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerKeyNotPublished, peerID)
	}

	key, err := crypto.DeriveSharedKey(pair.PrivateKey, peer.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("derive key with %s: %w", peerID, err)
	}
	s.cache.Set(slot, key)
	return key, nil
}

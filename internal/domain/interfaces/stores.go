package interfaces

import (
	"context"

	domaintypes "convokey/internal/domain/types"
)

// SecureStore is a per-device key-value store for secrets.
type SecureStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// KeyPairStore persists each local user's key pair on this device.
type KeyPairStore interface {
	LoadKeyPair(userID domaintypes.UserID) (domaintypes.KeyPair, bool, error)
	SaveKeyPair(userID domaintypes.UserID, pair domaintypes.KeyPair) error
	DeleteKeyPair(userID domaintypes.UserID) error
}

// MessageStore persists message rows.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg domaintypes.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domaintypes.Message, error)
}

package interfaces

import (
	"context"

	domaintypes "convokey/internal/domain/types"
)

// E2EService manages key pairs, derived keys and message body encryption.
type E2EService interface {
	EnsureUserKeyPair(ctx context.Context, userID domaintypes.UserID) error
	KeyState(userID domaintypes.UserID) (domaintypes.KeyState, error)
	GetOrCreateConversationKey(
		ctx context.Context,
		userID domaintypes.UserID,
		peerID domaintypes.UserID,
	) ([]byte, error)
	GetOrCreateGroupKey(
		ctx context.Context,
		userID domaintypes.UserID,
		groupID domaintypes.GroupID,
	) ([]byte, error)
	EncryptMessageContent(
		ctx context.Context,
		plaintext string,
		mc domaintypes.MessageContext,
	) (domaintypes.EncryptedContent, error)
	DecryptMessageContent(
		ctx context.Context,
		content string,
		format domaintypes.ContentFormat,
		mc domaintypes.MessageContext,
	) string
}

// MessageService sends and reads messages, encrypting bodies on the way.
type MessageService interface {
	Send(ctx context.Context, mc domaintypes.MessageContext, text string) (domaintypes.Message, error)
	History(ctx context.Context, mc domaintypes.MessageContext, limit int) ([]domaintypes.DecryptedMessage, error)
}

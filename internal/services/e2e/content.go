package e2e

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"convokey/internal/crypto"
	"convokey/internal/domain"
)

// EncryptMessageContent encrypts plaintext with the key for mc. It fails
// with ErrKeyUnavailable rather than ever returning plaintext.
func (s *Service) EncryptMessageContent(
	ctx context.Context,
	plaintext string,
	mc domain.MessageContext,
) (domain.EncryptedContent, error) {
	key, err := s.contentKey(ctx, mc)
	if err != nil {
		return domain.EncryptedContent{}, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	ciphertext, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return domain.EncryptedContent{}, fmt.Errorf("encrypt message: %w", err)
	}
	return domain.EncryptedContent{Content: ciphertext, Format: domain.FormatE2E}, nil
}

// DecryptMessageContent returns the readable body of a stored message.
// Plain content is returned as is; undecryptable content becomes
// Placeholder.
func (s *Service) DecryptMessageContent(
	ctx context.Context,
	content string,
	format domain.ContentFormat,
	mc domain.MessageContext,
) string {
	text, err := s.TryDecryptMessageContent(ctx, content, format, mc)
	if err != nil {
		fields := []zap.Field{zap.String("conversation_id", conversationID(mc)), zap.Error(err)}
		if mc != nil {
			fields = append(fields, zap.String("user_id", mc.Owner().String()))
		}
		s.log.Warn("message could not be decrypted", fields...)
		return Placeholder
	}
	return text
}

// TryDecryptMessageContent is DecryptMessageContent with the failure cause:
// ErrKeyUnavailable wrapping the key resolution error, or the crypto
// package's payload errors.
func (s *Service) TryDecryptMessageContent(
	ctx context.Context,
	content string,
	format domain.ContentFormat,
	mc domain.MessageContext,
) (string, error) {
	if format != domain.FormatE2E {
		return content, nil
	}
	key, err := s.contentKey(ctx, mc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	return crypto.Decrypt(content, key)
}

// contentKey resolves the key for mc, creating the owner's key pair on
// first use. Group messages only ever use the group key.
func (s *Service) contentKey(ctx context.Context, mc domain.MessageContext) ([]byte, error) {
	switch c := mc.(type) {
	case domain.Individual:
		if err := s.ensureLocal(ctx, c.UserID); err != nil {
			return nil, err
		}
		return s.GetOrCreateConversationKey(ctx, c.UserID, c.PeerID)
	case domain.Group:
		if err := s.ensureLocal(ctx, c.UserID); err != nil {
			return nil, err
		}
		return s.GetOrCreateGroupKey(ctx, c.UserID, c.GroupID)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownContext, mc)
	}
}

func conversationID(mc domain.MessageContext) string {
	if mc == nil {
		return ""
	}
	return mc.ConversationID()
}

package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"convokey/internal/domain"
	"convokey/internal/logger"
)

var (
	// ErrEmptyMessage is returned when Send is given no text.
	ErrEmptyMessage = errors.New("message: empty text")
	// ErrNoContext is returned when no conversation context is given.
	ErrNoContext = errors.New("message: no conversation context")
)

// Options tunes New.
type Options struct {
	// AllowPlaintextFallback stores a message as plain text when no key
	// can be resolved instead of failing the send.
	AllowPlaintextFallback bool
	Logger                 *zap.Logger
}

// Service sends and reads messages through an E2EService.
type Service struct {
	e2e      domain.E2EService
	messages domain.MessageStore
	opts     Options
	log      *zap.Logger

	newID func() string
	now   func() time.Time
}

// New constructs a message Service.
func New(e2e domain.E2EService, messages domain.MessageStore, opts Options) *Service {
	return &Service{
		e2e:      e2e,
		messages: messages,
		opts:     opts,
		log:      logger.OrNop(opts.Logger).Named("message"),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Send encrypts text for mc and stores the row.
//
// Without a key the send fails, unless plaintext fallback is enabled, in
// which case the row is stored with FormatPlain.
func (s *Service) Send(ctx context.Context, mc domain.MessageContext, text string) (domain.Message, error) {
	if mc == nil {
		return domain.Message{}, ErrNoContext
	}
	if text == "" {
		return domain.Message{}, ErrEmptyMessage
	}

	enc, err := s.e2e.EncryptMessageContent(ctx, text, mc)
	if err != nil {
		if !s.opts.AllowPlaintextFallback {
			return domain.Message{}, fmt.Errorf("send: %w", err)
		}
		s.log.Warn("sending unencrypted: no key available",
			zap.String("conversation_id", mc.ConversationID()),
			zap.Error(err),
		)
		enc = domain.EncryptedContent{Content: text, Format: domain.FormatPlain}
	}

	msg := domain.Message{
		ID:             s.newID(),
		ConversationID: mc.ConversationID(),
		SenderID:       mc.Owner(),
		Content:        enc.Content,
		ContentFormat:  enc.Format,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("store message: %w", err)
	}
	return msg, nil
}

// History returns up to limit recent messages of mc, oldest first, with
// bodies decrypted. Undecryptable bodies read as the e2e placeholder.
func (s *Service) History(ctx context.Context, mc domain.MessageContext, limit int) ([]domain.DecryptedMessage, error) {
	if mc == nil {
		return nil, ErrNoContext
	}
	rows, err := s.messages.ListMessages(ctx, mc.ConversationID(), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]domain.DecryptedMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.DecryptedMessage{
			ID:        row.ID,
			SenderID:  row.SenderID,
			Text:      s.e2e.DecryptMessageContent(ctx, row.Content, row.ContentFormat, mc),
			Encrypted: row.ContentFormat == domain.FormatE2E,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)

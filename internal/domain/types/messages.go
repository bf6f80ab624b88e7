package types

import "time"

// ContentFormat tells readers how to interpret Message.Content.
type ContentFormat string

const (
	// FormatPlain marks legacy or intentionally unencrypted content.
	FormatPlain ContentFormat = "plain"
	// FormatE2E marks content encrypted with a conversation or group key.
	FormatE2E ContentFormat = "e2e"
)

// EncryptedContent is the output of encrypting a message body.
type EncryptedContent struct {
	Content string        `json:"content"`
	Format  ContentFormat `json:"content_format"`
}

// Message is a stored message row.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       UserID        `json:"sender_id"`
	Content        string        `json:"content"`
	ContentFormat  ContentFormat `json:"content_format"`
	CreatedAt      time.Time     `json:"created_at"`
}

// DecryptedMessage is a message row with its readable body.
type DecryptedMessage struct {
	ID        string    `json:"id"`
	SenderID  UserID    `json:"sender_id"`
	Text      string    `json:"text"`
	Encrypted bool      `json:"encrypted"`
	CreatedAt time.Time `json:"created_at"`
}

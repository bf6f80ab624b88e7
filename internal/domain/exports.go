package domain

import (
	"errors"

	interfaces "convokey/internal/domain/interfaces"
	types "convokey/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID             = types.UserID
	GroupID            = types.GroupID
	Fingerprint        = types.Fingerprint
	KeyState           = types.KeyState
	KeyPair            = types.KeyPair
	PublishedPublicKey = types.PublishedPublicKey
	GroupKeyRow        = types.GroupKeyRow
	ContentFormat      = types.ContentFormat
	EncryptedContent   = types.EncryptedContent
	Message            = types.Message
	DecryptedMessage   = types.DecryptedMessage
	MessageContext     = types.MessageContext
	Individual         = types.Individual
	Group              = types.Group
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	SecureStore    = interfaces.SecureStore
	KeyPairStore   = interfaces.KeyPairStore
	MessageStore   = interfaces.MessageStore
	KeyDirectory   = interfaces.KeyDirectory
	GroupKeyStore  = interfaces.GroupKeyStore
	Directory      = interfaces.Directory
	E2EService     = interfaces.E2EService
	MessageService = interfaces.MessageService
)

const (
	FormatPlain = types.FormatPlain
	FormatE2E   = types.FormatE2E

	NoKeyPair          = types.NoKeyPair
	KeyPairGenerated   = types.KeyPairGenerated
	PublicKeyPublished = types.PublicKeyPublished
)

// CanonicalPair orders two user identifiers lexicographically.
func CanonicalPair(a, b UserID) (UserID, UserID) { return types.CanonicalPair(a, b) }

// Errors returned by directory backends.
var (
	// ErrSchemaConstraint means the backend rejected a record shape, e.g. a
	// missing record ID. Callers may retry with the extra field set.
	ErrSchemaConstraint = errors.New("directory: schema constraint violated")
	// ErrForbidden means the caller may not read or write the row.
	ErrForbidden = errors.New("directory: forbidden")
	// ErrNotFound means the addressed record does not exist.
	ErrNotFound = errors.New("directory: not found")
	// ErrConflict means a record with the same key already exists.
	ErrConflict = errors.New("directory: record already exists")
)

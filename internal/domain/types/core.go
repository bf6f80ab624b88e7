package types

// UserID identifies an account in the key directory.
type UserID string

// String returns the string form of the user identifier.
func (u UserID) String() string { return string(u) }

// GroupID identifies a group conversation.
type GroupID string

// String returns the string form of the group identifier.
func (g GroupID) String() string { return string(g) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// KeyState is the position of a user in the key lifecycle.
type KeyState int

const (
	// NoKeyPair means no key pair is stored on this device.
	NoKeyPair KeyState = iota
	// KeyPairGenerated means a local key pair exists but is not published.
	KeyPairGenerated
	// PublicKeyPublished means the directory holds the local public key.
	PublicKeyPublished
)

// String returns a readable name for the state.
func (s KeyState) String() string {
	switch s {
	case NoKeyPair:
		return "no-key-pair"
	case KeyPairGenerated:
		return "key-pair-generated"
	case PublicKeyPublished:
		return "public-key-published"
	default:
		return "unknown"
	}
}

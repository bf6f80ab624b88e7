package types

import "time"

// KeyPair is a user's P-256 identity as stored on the device.
//
// PrivateKey is base64 PKCS#8 and never leaves the device; PublicKey is
// base64 SPKI and is published to the key directory.
type KeyPair struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// IsZero reports whether either half is missing.
func (k KeyPair) IsZero() bool { return k.PrivateKey == "" || k.PublicKey == "" }

// PublishedPublicKey is a key directory record. There is at most one per user.
//
// ID is optional; some directory schemas require it on insert.
type PublishedPublicKey struct {
	ID        string    `json:"id,omitempty"`
	UserID    UserID    `json:"user_id"`
	PublicKey string    `json:"public_key"`
	UpdatedAt time.Time `json:"updated_at"`
}

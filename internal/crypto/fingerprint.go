package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"convokey/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a base64 SPKI public key.
//
// It hashes the decoded key with SHA-256 and truncates to 10 bytes (20 hex
// chars). Undecodable input is hashed as-is so logs still correlate.
func Fingerprint(publicKeyB64 string) domain.Fingerprint {
	raw, err := FromB64(publicKeyB64)
	if err != nil {
		raw = []byte(publicKeyB64)
	}
	sum := sha256.Sum256(raw)
	return domain.Fingerprint(hex.EncodeToString(sum[:10]))
}

package store

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	// The current supported version of the encrypted store format on disk.
	keystoreFormatVersion = 1

	// checkPlaintext is sealed into the header to detect a wrong passphrase
	// before any entry is touched.
	checkPlaintext = "convokey-secure-store"
)

var (
	// Returned when the passphrase is incorrect or the header has been modified / corrupted.
	errWrongPassphrase = errors.New("wrong passphrase or corrupted secure store")
	// Returned when a single entry fails authentication.
	errCorruptEntry = errors.New("secure store entry is corrupted")
)

// scryptParams are the KDF tunables recorded in the header.
type scryptParams struct {
	N int `json:"scrypt_N"`
	R int `json:"scrypt_r"`
	P int `json:"scrypt_p"`
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() scryptParams { return scryptParams{N: 1 << 15, R: 8, P: 1} }

// deriveStoreKey stretches passphrase into the XChaCha20-Poly1305 store key.
func deriveStoreKey(passphrase string, salt []byte, p scryptParams) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
}

// seal encrypts raw under key with a random 24-byte nonce, binding ad.
// The result is nonce || ciphertext.
func seal(key, raw, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(raw)+aead.Overhead())
	if _, err := rand.Read(nonce /* #nosec G404 */); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, raw, ad), nil
}

// open reverses seal.
func open(key, sealed, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errCorruptEntry
	}
	pt, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], ad)
	if err != nil {
		return nil, errCorruptEntry
	}
	return pt, nil
}

func checkVersion(v int) error {
	if v > keystoreFormatVersion {
		return fmt.Errorf("unsupported secure store version %d", v)
	}
	return nil
}

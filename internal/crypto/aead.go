package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

var (
	// ErrInvalidKeySize is returned for keys that are not KeySize bytes.
	ErrInvalidKeySize = fmt.Errorf("crypto: key must be %d bytes", KeySize)
	// ErrPayloadTooShort is returned when a payload cannot hold an IV and tag.
	ErrPayloadTooShort = fmt.Errorf("crypto: payload shorter than %d bytes", IVSize+TagSize)
	// ErrMalformedPayload is returned when a payload is not valid base64.
	ErrMalformedPayload = errors.New("crypto: malformed payload")
	// ErrAuthFailed is returned when GCM authentication fails.
	ErrAuthFailed = errors.New("crypto: message authentication failed")
)

// Encrypt seals plaintext under key with a fresh random IV and returns
// base64(iv || ciphertext || tag).
func Encrypt(plaintext string, key []byte) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}
	iv, err := RandomBytes(IVSize)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, IVSize+len(plaintext)+TagSize)
	out = append(out, iv...)
	out = aead.Seal(out, iv, []byte(plaintext), nil)
	return B64(out), nil
}

// Decrypt reverses Encrypt. It fails on short or tampered payloads and on
// the wrong key.
func Decrypt(payload string, key []byte) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}
	raw, err := FromB64(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(raw) < IVSize+TagSize {
		return "", ErrPayloadTooShort
	}
	pt, err := aead.Open(nil, raw[:IVSize], raw[IVSize:], nil)
	if err != nil {
		return "", ErrAuthFailed
	}
	return string(pt), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, TagSize)
}

package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("crypto: secure random source unavailable: %w", err)
	}
	return b, nil
}

// GenerateSymmetricKey returns a fresh AES-256 key.
func GenerateSymmetricKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

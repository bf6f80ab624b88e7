package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"strings"

	"convokey/internal/util/memzero"
)

// wrapSeparator joins the ephemeral public key and the sealed payload.
// Standard base64 never contains it.
const wrapSeparator = "."

// ErrMalformedWrappedKey is returned when a wrapped key is not
// "<ephemeral public>.<payload>".
var ErrMalformedWrappedKey = errors.New("crypto: malformed wrapped key")

// WrapKey encrypts key for the holder of recipientPublicKeyB64.
//
// A fresh ephemeral P-256 pair is generated per call; the wrapping key is
// DeriveSharedKey(ephemeral, recipient). The sealed plaintext is base64(key).
func WrapKey(key []byte, recipientPublicKeyB64 string) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKeySize
	}
	recipient, err := parsePublicKey(recipientPublicKeyB64)
	if err != nil {
		return "", err
	}
	eph, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	ephPub, err := exportPublicKey(eph.PublicKey())
	if err != nil {
		return "", err
	}
	kek, err := deriveKey(eph, recipient)
	if err != nil {
		return "", err
	}
	defer memzero.Zero(kek)

	sealed, err := Encrypt(B64(key), kek)
	if err != nil {
		return "", err
	}
	return ephPub + wrapSeparator + sealed, nil
}

// UnwrapKey recovers a key wrapped by WrapKey using the recipient's private key.
func UnwrapKey(wrapped, ownPrivateKeyB64 string) ([]byte, error) {
	ephPub, sealed, ok := strings.Cut(wrapped, wrapSeparator)
	if !ok || ephPub == "" || sealed == "" {
		return nil, ErrMalformedWrappedKey
	}
	kek, err := DeriveSharedKey(ownPrivateKeyB64, ephPub)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(kek)

	encoded, err := Decrypt(sealed, kek)
	if err != nil {
		return nil, err
	}
	key, err := FromB64(encoded)
	if err != nil || len(key) != KeySize {
		return nil, ErrMalformedWrappedKey
	}
	return key, nil
}

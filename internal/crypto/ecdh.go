package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"convokey/internal/domain"
	"convokey/internal/util/memzero"
)

// hkdfSalt is fixed for the application; info is empty.
var hkdfSalt = []byte("convokey/e2e/v1")

var (
	// ErrInvalidPrivateKey is returned for private keys that are not P-256 PKCS#8.
	ErrInvalidPrivateKey = errors.New("crypto: invalid P-256 private key")
	// ErrInvalidPublicKey is returned for public keys that are not P-256 SPKI.
	ErrInvalidPublicKey = errors.New("crypto: invalid P-256 public key")
)

// GenerateKeyPair returns a fresh P-256 key pair, PKCS#8 / SPKI, base64.
func GenerateKeyPair() (domain.KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return domain.KeyPair{}, err
	}
	return exportKeyPair(priv)
}

// DeriveSharedKey computes ECDH(ourPriv, theirPub) and stretches the secret
// with HKDF-SHA-256 into an AES-256 key.
//
// DeriveSharedKey(a.priv, b.pub) == DeriveSharedKey(b.priv, a.pub).
func DeriveSharedKey(ourPrivateKeyB64, theirPublicKeyB64 string) ([]byte, error) {
	priv, err := parsePrivateKey(ourPrivateKeyB64)
	if err != nil {
		return nil, err
	}
	pub, err := parsePublicKey(theirPublicKeyB64)
	if err != nil {
		return nil, err
	}
	return deriveKey(priv, pub)
}

func deriveKey(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("crypto: ecdh: %w", err)
	}
	defer memzero.Zero(secret)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, hkdfSalt, nil), key); err != nil {
		return nil, fmt.Errorf("crypto: hkdf: %w", err)
	}
	return key, nil
}

func exportKeyPair(priv *ecdh.PrivateKey) (domain.KeyPair, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return domain.KeyPair{}, err
	}
	pub, err := exportPublicKey(priv.PublicKey())
	if err != nil {
		return domain.KeyPair{}, err
	}
	return domain.KeyPair{PrivateKey: B64(der), PublicKey: pub}, nil
}

func exportPublicKey(pub *ecdh.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return B64(der), nil
}

func parsePrivateKey(b64 string) (*ecdh.PrivateKey, error) {
	der, err := FromB64(b64)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	var priv *ecdh.PrivateKey
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		priv, err = k.ECDH()
	case *ecdh.PrivateKey:
		priv = k
	default:
		return nil, ErrInvalidPrivateKey
	}
	if err != nil || priv.Curve() != ecdh.P256() {
		return nil, ErrInvalidPrivateKey
	}
	return priv, nil
}

func parsePublicKey(b64 string) (*ecdh.PublicKey, error) {
	der, err := FromB64(b64)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	var pub *ecdh.PublicKey
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		pub, err = k.ECDH()
	case *ecdh.PublicKey:
		pub = k
	default:
		return nil, ErrInvalidPublicKey
	}
	if err != nil || pub.Curve() != ecdh.P256() {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

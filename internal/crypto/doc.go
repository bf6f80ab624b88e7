// Package crypto exposes the primitives used by convokey.
//
// Contents
//
//   - Secure random bytes and 256-bit symmetric keys (RandomBytes,
//     GenerateSymmetricKey)
//   - AES-256-GCM message payloads, base64(iv || ciphertext || tag)
//     (Encrypt, Decrypt)
//   - ECDH P-256 key pairs exported as base64 PKCS#8 / SPKI
//     (GenerateKeyPair, DeriveSharedKey)
//   - Group key wrapping for a member's public key with an ephemeral key pair
//     (WrapKey, UnwrapKey)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Functions are pure over their inputs apart from reading crypto/rand. Any
// Decrypt or UnwrapKey error means "cannot decrypt"; callers must not try to
// tell tampering apart from a wrong key.
package crypto

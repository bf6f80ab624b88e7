// Package store provides device-side persistence for convokey.
//
// It contains concrete implementations of the domain storage interfaces:
//   - Secure key-value stores (EncryptedFileStore, PlainFileStore,
//     MemorySecureStore). The encrypted store seals every entry under a
//     passphrase-derived key; the plain store is the unprotected fallback.
//   - Per-user key pairs on top of a secure store (KeyPairStore)
//   - The session's in-memory derived-key cache (KeyCache)
//   - An in-memory message table (MemoryMessageStore)
//
// All methods are concurrency-safe via internal locking. Files live under
// the configured home directory and are replaced atomically.
package store

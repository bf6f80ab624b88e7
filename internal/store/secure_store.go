package store

import (
	"encoding/base64"
	"path/filepath"
	"sync"

	"convokey/internal/crypto"
	"convokey/internal/domain"
	"convokey/internal/util/memzero"
)

const (
	secureStoreFile   = "secure_store.json"
	insecureStoreFile = "insecure_store.json"
)

// secureFile is the on-disk JSON structure of an EncryptedFileStore.
type secureFile struct {
	V       int               `json:"v"`
	Salt    []byte            `json:"salt"`
	KDF     scryptParams      `json:"kdf"`
	Check   []byte            `json:"check"`
	Entries map[string][]byte `json:"entries"`
}

// EncryptedFileStore is a passphrase-protected SecureStore on disk.
//
// The store key is derived once with scrypt when the store is opened. Each
// entry is sealed with XChaCha20-Poly1305 and bound to its key name, so
// values cannot be swapped between slots.
type EncryptedFileStore struct {
	dir string
	key []byte
	mu  sync.Mutex
}

// EncryptedOption tunes NewEncryptedFileStore.
type EncryptedOption func(*scryptParams)

// WithScryptN overrides the scrypt cost for newly created stores.
func WithScryptN(n int) EncryptedOption {
	return func(p *scryptParams) { p.N = n }
}

// NewEncryptedFileStore opens (or creates) the encrypted store in dir.
//
// It fails with a wrong-passphrase error if the header does not verify.
func NewEncryptedFileStore(dir, passphrase string, opts ...EncryptedOption) (*EncryptedFileStore, error) {
	path := filepath.Join(dir, secureStoreFile)

	var f secureFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	if f.Salt != nil {
		if err := checkVersion(f.V); err != nil {
			return nil, err
		}
		key, err := deriveStoreKey(passphrase, f.Salt, f.KDF)
		if err != nil {
			return nil, err
		}
		if pt, err := open(key, f.Check, f.Salt); err != nil || string(pt) != checkPlaintext {
			memzero.Zero(key)
			return nil, errWrongPassphrase
		}
		return &EncryptedFileStore{dir: dir, key: key}, nil
	}

	// Fresh store: pick a salt, derive and write the header.
	params := scryptParamsDefault()
	for _, opt := range opts {
		opt(&params)
	}
	salt, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, err
	}
	key, err := deriveStoreKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	check, err := seal(key, []byte(checkPlaintext), salt)
	if err != nil {
		return nil, err
	}
	f = secureFile{
		V:       keystoreFormatVersion,
		Salt:    salt,
		KDF:     params,
		Check:   check,
		Entries: map[string][]byte{},
	}
	if err := writeJSON(path, f, 0o600); err != nil {
		return nil, err
	}
	return &EncryptedFileStore{dir: dir, key: key}, nil
}

// Get returns the value stored under key.
func (s *EncryptedFileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return "", false, err
	}
	sealed, ok := f.Entries[key]
	if !ok {
		return "", false, nil
	}
	pt, err := open(s.key, sealed, []byte(key))
	if err != nil {
		return "", false, err
	}
	return string(pt), true, nil
}

// Set stores value under key, replacing any previous value.
func (s *EncryptedFileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	sealed, err := seal(s.key, []byte(value), []byte(key))
	if err != nil {
		return err
	}
	f.Entries[key] = sealed
	return writeJSON(filepath.Join(s.dir, secureStoreFile), f, 0o600)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *EncryptedFileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f.Entries[key]; !ok {
		return nil
	}
	delete(f.Entries, key)
	return writeJSON(filepath.Join(s.dir, secureStoreFile), f, 0o600)
}

// Close wipes the derived store key.
func (s *EncryptedFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	memzero.Zero(s.key)
	return nil
}

func (s *EncryptedFileStore) load() (secureFile, error) {
	var f secureFile
	if err := readJSON(filepath.Join(s.dir, secureStoreFile), &f); err != nil {
		return f, err
	}
	if f.Entries == nil {
		f.Entries = map[string][]byte{}
	}
	return f, nil
}

// PlainFileStore is the unencrypted SecureStore fallback for platforms
// without a protected key store. Values sit on disk in base64 with 0600
// permissions and nothing more.
type PlainFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPlainFileStore returns a PlainFileStore rooted at dir.
func NewPlainFileStore(dir string) *PlainFileStore {
	return &PlainFileStore{dir: dir}
}

// Get returns the value stored under key.
func (s *PlainFileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := map[string]string{}
	if err := readJSON(filepath.Join(s.dir, insecureStoreFile), &m); err != nil {
		return "", false, err
	}
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// Set stores value under key.
func (s *PlainFileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, insecureStoreFile)
	m := map[string]string{}
	if err := readJSON(path, &m); err != nil {
		return err
	}
	m[key] = base64.StdEncoding.EncodeToString([]byte(value))
	return writeJSON(path, m, 0o600)
}

// Delete removes key.
func (s *PlainFileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, insecureStoreFile)
	m := map[string]string{}
	if err := readJSON(path, &m); err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return writeJSON(path, m, 0o600)
}

// MemorySecureStore keeps values in process memory. Used in tests and for
// sessions that must leave nothing on disk.
type MemorySecureStore struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemorySecureStore returns an empty MemorySecureStore.
func NewMemorySecureStore() *MemorySecureStore {
	return &MemorySecureStore{m: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *MemorySecureStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *MemorySecureStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

// Delete removes key.
func (s *MemorySecureStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Compile-time assertions that the stores implement domain.SecureStore.
var (
	_ domain.SecureStore = (*EncryptedFileStore)(nil)
	_ domain.SecureStore = (*PlainFileStore)(nil)
	_ domain.SecureStore = (*MemorySecureStore)(nil)
)

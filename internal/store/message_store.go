package store

import (
	"context"
	"path/filepath"
	"sync"

	"convokey/internal/domain"
)

// MemoryMessageStore keeps message rows in memory, ordered by insertion.
type MemoryMessageStore struct {
	mu   sync.RWMutex
	rows map[string][]domain.Message
}

// NewMemoryMessageStore returns an empty store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{rows: make(map[string][]domain.Message)}
}

// InsertMessage appends msg to its conversation.
func (s *MemoryMessageStore) InsertMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[msg.ConversationID] = append(s.rows[msg.ConversationID], msg)
	return nil
}

// ListMessages returns up to limit of the most recent rows, oldest first.
// A limit <= 0 returns everything.
func (s *MemoryMessageStore) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[conversationID]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return append([]domain.Message(nil), rows...), nil
}

const messagesFile = "messages.json"

// FileMessageStore keeps message rows in a JSON file under dir, keyed by
// conversation. It stands in for the remote message table in the CLI.
type FileMessageStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileMessageStore returns a FileMessageStore rooted at dir.
func NewFileMessageStore(dir string) *FileMessageStore {
	return &FileMessageStore{dir: dir}
}

// InsertMessage appends msg to its conversation.
func (s *FileMessageStore) InsertMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, messagesFile)
	rows := map[string][]domain.Message{}
	if err := readJSON(path, &rows); err != nil {
		return err
	}
	rows[msg.ConversationID] = append(rows[msg.ConversationID], msg)
	return writeJSON(path, rows, 0o600)
}

// ListMessages returns up to limit of the most recent rows, oldest first.
func (s *FileMessageStore) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := map[string][]domain.Message{}
	if err := readJSON(filepath.Join(s.dir, messagesFile), &rows); err != nil {
		return nil, err
	}
	out := rows[conversationID]
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Compile-time assertions.
var (
	_ domain.MessageStore = (*MemoryMessageStore)(nil)
	_ domain.MessageStore = (*FileMessageStore)(nil)
)

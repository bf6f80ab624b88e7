package store

import (
	"sync"

	"convokey/internal/domain"
	"convokey/internal/util/memzero"
)

// KeyCache holds derived symmetric keys for the lifetime of one session.
// It is never persisted.
type KeyCache struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewKeyCache returns an empty cache.
func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[string][]byte)}
}

// ConversationSlot is the cache key for a 1:1 conversation. Both argument
// orders map to the same slot.
func ConversationSlot(a, b domain.UserID) string {
	lo, hi := domain.CanonicalPair(a, b)
	return "conv:" + lo.String() + ":" + hi.String()
}

// GroupSlot is the cache key for a group.
func GroupSlot(groupID domain.GroupID) string {
	return "group:" + groupID.String()
}

// Get returns a copy of the cached key.
func (c *KeyCache) Get(slot string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[slot]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), k...), true
}

// Set stores a copy of key under slot, replacing any previous value.
func (c *KeyCache) Set(slot string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.keys[slot]; ok {
		memzero.Zero(old)
	}
	c.keys[slot] = append([]byte(nil), key...)
}

// Delete drops one slot.
func (c *KeyCache) Delete(slot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.keys[slot]; ok {
		memzero.Zero(old)
		delete(c.keys, slot)
	}
}

// Clear drops every slot.
func (c *KeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for slot, k := range c.keys {
		memzero.Zero(k)
		delete(c.keys, slot)
	}
}

// Len returns the number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

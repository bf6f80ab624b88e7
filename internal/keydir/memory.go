package keydir

import (
	"context"
	"sort"
	"sync"
	"time"

	"convokey/internal/domain"
)

type groupKeyID struct {
	group domain.GroupID
	user  domain.UserID
}

// Memory is an in-process Directory. It backs the development server and
// tests; all state is lost on exit.
type Memory struct {
	mu      sync.RWMutex
	keys    map[domain.UserID]domain.PublishedPublicKey
	members map[domain.GroupID][]domain.UserID
	rows    map[groupKeyID]domain.GroupKeyRow
	claims  map[domain.GroupID]domain.UserID

	// RequireRecordID makes InsertPublicKey reject records without an ID,
	// like directory schemas whose id column has no default.
	RequireRecordID bool

	now func() time.Time
}

// NewMemory returns an empty Memory directory.
func NewMemory() *Memory {
	return &Memory{
		keys:    make(map[domain.UserID]domain.PublishedPublicKey),
		members: make(map[domain.GroupID][]domain.UserID),
		rows:    make(map[groupKeyID]domain.GroupKeyRow),
		claims:  make(map[domain.GroupID]domain.UserID),
		now:     time.Now,
	}
}

// FetchPublicKey returns the user's published key.
func (m *Memory) FetchPublicKey(_ context.Context, userID domain.UserID) (domain.PublishedPublicKey, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.keys[userID]
	return rec, ok, nil
}

// InsertPublicKey adds a record; the user must not have one yet.
func (m *Memory) InsertPublicKey(_ context.Context, rec domain.PublishedPublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RequireRecordID && rec.ID == "" {
		return domain.ErrSchemaConstraint
	}
	if _, exists := m.keys[rec.UserID]; exists {
		return domain.ErrConflict
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = m.now()
	}
	m.keys[rec.UserID] = rec
	return nil
}

// UpdatePublicKey replaces an existing record.
func (m *Memory) UpdatePublicKey(_ context.Context, rec domain.PublishedPublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.keys[rec.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.ID == "" {
		rec.ID = old.ID
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = m.now()
	}
	m.keys[rec.UserID] = rec
	return nil
}

// SetGroupMembers replaces the member list of a group.
func (m *Memory) SetGroupMembers(_ context.Context, groupID domain.GroupID, members []domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[groupID] = append([]domain.UserID(nil), members...)
	return nil
}

// ListGroupMembers returns the group's members.
func (m *Memory) ListGroupMembers(_ context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.UserID(nil), m.members[groupID]...), nil
}

// LoadGroupKeyRow returns userID's own row.
func (m *Memory) LoadGroupKeyRow(
	_ context.Context,
	groupID domain.GroupID,
	userID domain.UserID,
) (domain.GroupKeyRow, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[groupKeyID{groupID, userID}]
	return row, ok, nil
}

// UpsertGroupKeyRows writes rows, replacing existing (group, member) rows.
func (m *Memory) UpsertGroupKeyRows(_ context.Context, rows []domain.GroupKeyRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = m.now()
		}
		m.rows[groupKeyID{row.GroupID, row.TargetUserID}] = row
	}
	return nil
}

// InsertGroupKeyRows writes rows that must not exist yet. If any does,
// nothing is written and ErrConflict is returned.
func (m *Memory) InsertGroupKeyRows(_ context.Context, rows []domain.GroupKeyRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		if _, exists := m.rows[groupKeyID{row.GroupID, row.TargetUserID}]; exists {
			return domain.ErrConflict
		}
	}
	for _, row := range rows {
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = m.now()
		}
		m.rows[groupKeyID{row.GroupID, row.TargetUserID}] = row
	}
	return nil
}

// GroupKeyExists reports whether any row exists for the group.
func (m *Memory) GroupKeyExists(_ context.Context, groupID domain.GroupID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id := range m.rows {
		if id.group == groupID {
			return true, nil
		}
	}
	return false, nil
}

// MembersMissingGroupKey lists members without a row, sorted.
func (m *Memory) MembersMissingGroupKey(_ context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.UserID
	for _, member := range m.members[groupID] {
		if _, ok := m.rows[groupKeyID{groupID, member}]; !ok {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ClaimGroupKeyOrigination records userID as the group's originator if no
// one has claimed it. A held claim is never won again, not even by its
// holder.
func (m *Memory) ClaimGroupKeyOrigination(_ context.Context, groupID domain.GroupID, userID domain.UserID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, claimed := m.claims[groupID]; claimed {
		return false, nil
	}
	m.claims[groupID] = userID
	return true, nil
}

// ReleaseGroupKeyOrigination drops the claim if userID holds it.
func (m *Memory) ReleaseGroupKeyOrigination(_ context.Context, groupID domain.GroupID, userID domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[groupID] == userID {
		delete(m.claims, groupID)
	}
	return nil
}

// Compile-time assertion that Memory implements domain.Directory.
var _ domain.Directory = (*Memory)(nil)

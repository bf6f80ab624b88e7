package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"convokey/internal/domain"
)

type publicKeyModel struct {
	bun.BaseModel `bun:"table:e2e_public_keys"`

	ID        string    `bun:"id,type:uuid,nullzero,notnull,default:gen_random_uuid()"`
	UserID    string    `bun:"user_id,pk"`
	PublicKey string    `bun:"public_key,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (m *publicKeyModel) toDomain() domain.PublishedPublicKey {
	return domain.PublishedPublicKey{
		ID:        m.ID,
		UserID:    domain.UserID(m.UserID),
		PublicKey: m.PublicKey,
		UpdatedAt: m.UpdatedAt,
	}
}

type groupKeyModel struct {
	bun.BaseModel `bun:"table:e2e_group_keys"`

	GroupID      string    `bun:"group_id,pk"`
	TargetUserID string    `bun:"target_user_id,pk"`
	EncryptedKey string    `bun:"encrypted_key,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (m *groupKeyModel) toDomain() domain.GroupKeyRow {
	return domain.GroupKeyRow{
		GroupID:      domain.GroupID(m.GroupID),
		TargetUserID: domain.UserID(m.TargetUserID),
		EncryptedKey: m.EncryptedKey,
		UpdatedAt:    m.UpdatedAt,
	}
}

type groupMemberModel struct {
	bun.BaseModel `bun:"table:e2e_group_members"`

	GroupID string `bun:"group_id,pk"`
	UserID  string `bun:"user_id,pk"`
}

// groupKeyClaimModel is the origination sentinel: one row per group.
type groupKeyClaimModel struct {
	bun.BaseModel `bun:"table:e2e_group_key_claims"`

	GroupID   string    `bun:"group_id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	ClaimedAt time.Time `bun:"claimed_at,nullzero,notnull,default:current_timestamp"`
}

var models = []any{
	(*publicKeyModel)(nil),
	(*groupKeyModel)(nil),
	(*groupMemberModel)(nil),
	(*groupKeyClaimModel)(nil),
}

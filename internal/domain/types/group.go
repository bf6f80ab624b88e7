package types

import "time"

// GroupKeyRow carries the group key wrapped for one member.
//
// EncryptedKey has the form "<ephemeral SPKI base64>.<base64(iv||ct||tag)>".
type GroupKeyRow struct {
	GroupID      GroupID   `json:"group_id"`
	TargetUserID UserID    `json:"target_user_id"`
	EncryptedKey string    `json:"encrypted_key"`
	UpdatedAt    time.Time `json:"updated_at"`
}

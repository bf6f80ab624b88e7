package interfaces

import (
	"context"

	domaintypes "convokey/internal/domain/types"
)

// KeyDirectory is the remote table of published public keys.
type KeyDirectory interface {
	FetchPublicKey(
		ctx context.Context,
		userID domaintypes.UserID,
	) (domaintypes.PublishedPublicKey, bool, error)
	InsertPublicKey(ctx context.Context, record domaintypes.PublishedPublicKey) error
	UpdatePublicKey(ctx context.Context, record domaintypes.PublishedPublicKey) error
}

// GroupKeyStore is the remote table of wrapped group keys, one row per
// (group, member), plus the membership and origination helpers around it.
type GroupKeyStore interface {
	ListGroupMembers(ctx context.Context, groupID domaintypes.GroupID) ([]domaintypes.UserID, error)

	// LoadGroupKeyRow returns userID's own row. Row-level access control
	// means other members' rows are never visible.
	LoadGroupKeyRow(
		ctx context.Context,
		groupID domaintypes.GroupID,
		userID domaintypes.UserID,
	) (domaintypes.GroupKeyRow, bool, error)
	UpsertGroupKeyRows(ctx context.Context, rows []domaintypes.GroupKeyRow) error
	// InsertGroupKeyRows writes rows that must not exist yet. If any
	// (group, member) row exists it fails with ErrConflict and writes nothing.
	InsertGroupKeyRows(ctx context.Context, rows []domaintypes.GroupKeyRow) error

	// GroupKeyExists reports whether any member has a row for the group.
	GroupKeyExists(ctx context.Context, groupID domaintypes.GroupID) (bool, error)
	// MembersMissingGroupKey lists members without a row.
	MembersMissingGroupKey(ctx context.Context, groupID domaintypes.GroupID) ([]domaintypes.UserID, error)

	// ClaimGroupKeyOrigination atomically claims the right to generate the
	// group's key. Exactly one caller per group gets true; while the claim
	// is held every later call, the holder's included, gets false.
	ClaimGroupKeyOrigination(
		ctx context.Context,
		groupID domaintypes.GroupID,
		userID domaintypes.UserID,
	) (bool, error)
	// ReleaseGroupKeyOrigination drops a claim held by userID.
	ReleaseGroupKeyOrigination(
		ctx context.Context,
		groupID domaintypes.GroupID,
		userID domaintypes.UserID,
	) error
}

// Directory is a backend serving both tables.
type Directory interface {
	KeyDirectory
	GroupKeyStore
}

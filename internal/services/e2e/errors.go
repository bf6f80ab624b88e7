package e2e

import "errors"

var (
	// ErrNoKeyPair means the local user has no stored key pair.
	ErrNoKeyPair = errors.New("e2e: no local key pair")
	// ErrPeerKeyNotPublished means the peer never published a public key.
	ErrPeerKeyNotPublished = errors.New("e2e: peer has not published a public key")
	// ErrPublishFailed means the key pair exists locally but the directory
	// write did not go through. Peers cannot derive keys with us yet.
	ErrPublishFailed = errors.New("e2e: publishing public key failed")

	// ErrNoGroupMembers means the group has no members.
	ErrNoGroupMembers = errors.New("e2e: group has no members")
	// ErrGroupKeyNotFound means a key exists for the group but this user has
	// no row yet. Top-up run by another member will add it.
	ErrGroupKeyNotFound = errors.New("e2e: group key exists but has not been shared with this user")
	// ErrGroupKeyPending means another member is originating the group key.
	ErrGroupKeyPending = errors.New("e2e: group key is being created by another member")
	// ErrCorruptGroupKey means this user's row exists but cannot be unwrapped.
	ErrCorruptGroupKey = errors.New("e2e: group key row cannot be unwrapped")

	// ErrKeyUnavailable wraps whichever error stopped key resolution.
	ErrKeyUnavailable = errors.New("e2e: no key available for this conversation")
	// ErrUnknownContext means the message context is neither Individual nor Group.
	ErrUnknownContext = errors.New("e2e: unknown message context")
)

// Placeholder replaces message bodies that cannot be decrypted.
const Placeholder = "[encrypted message could not be decrypted]"

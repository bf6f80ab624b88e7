package types

import "fmt"

// MessageContext says which key protects a message. It is implemented only
// by Individual and Group; consumers switch on the concrete type.
type MessageContext interface {
	// Owner is the local user on whose behalf keys are resolved.
	Owner() UserID
	// ConversationID names the message thread for storage.
	ConversationID() string

	isMessageContext()
}

// Individual is a 1:1 conversation between UserID and PeerID.
type Individual struct {
	UserID UserID
	PeerID UserID
}

// Owner returns the local user.
func (c Individual) Owner() UserID { return c.UserID }

// ConversationID returns the same identifier for both participants.
func (c Individual) ConversationID() string {
	a, b := CanonicalPair(c.UserID, c.PeerID)
	return fmt.Sprintf("dm:%s:%s", a, b)
}

func (Individual) isMessageContext() {}

// Group is a group conversation seen by UserID.
type Group struct {
	UserID  UserID
	GroupID GroupID
}

// Owner returns the local user.
func (c Group) Owner() UserID { return c.UserID }

// ConversationID returns the group thread identifier.
func (c Group) ConversationID() string { return "group:" + c.GroupID.String() }

func (Group) isMessageContext() {}

// CanonicalPair orders two user identifiers lexicographically.
func CanonicalPair(a, b UserID) (UserID, UserID) {
	if b < a {
		return b, a
	}
	return a, b
}

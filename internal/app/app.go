package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"convokey/internal/domain"
)

// App is a logged-in client session for one user.
type App struct {
	*Wire
	User domain.UserID
}

// Open builds the wiring and logs user in to the key directory.
func Open(ctx context.Context, cfg Config, passphrase string, user domain.UserID, log *zap.Logger) (*App, error) {
	if user == "" {
		return nil, errors.New("user is required")
	}
	w, err := NewWire(cfg, passphrase, log)
	if err != nil {
		return nil, err
	}
	if err := w.Directory.Login(ctx, user); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &App{Wire: w, User: user}, nil
}

// Context returns the message context for a peer or a group. Exactly one
// of peer and group must be set.
func (a *App) Context(peer domain.UserID, group domain.GroupID) (domain.MessageContext, error) {
	switch {
	case peer != "" && group != "":
		return nil, errors.New("give either a peer or a group, not both")
	case peer != "":
		return domain.Individual{UserID: a.User, PeerID: peer}, nil
	case group != "":
		return domain.Group{UserID: a.User, GroupID: group}, nil
	default:
		return nil, errors.New("a peer or a group is required")
	}
}

package e2e

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"convokey/internal/crypto"
	"convokey/internal/domain"
	"convokey/internal/store"
	"convokey/internal/util/memzero"
)

// GetOrCreateGroupKey returns the group's shared key as seen by userID.
//
// A user with a row unwraps it, then queues top-up for members still
// missing one. A user without a row never generates a key if one exists
// anywhere in the group; only the member that wins the origination claim
// does, and it wraps the key for every member with a published key.
// Concurrent calls for the same group share one lookup.
func (s *Service) GetOrCreateGroupKey(
	ctx context.Context,
	userID domain.UserID,
	groupID domain.GroupID,
) ([]byte, error) {
	slot := store.GroupSlot(groupID)
	if key, ok := s.cache.Get(slot); ok {
		return key, nil
	}

	v, err, _ := s.groups.Do(slot+"/"+userID.String(), func() (any, error) {
		return s.resolveGroupKey(ctx, userID, groupID)
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (s *Service) resolveGroupKey(
	ctx context.Context,
	userID domain.UserID,
	groupID domain.GroupID,
) ([]byte, error) {
	// A flight that finished just before this one started filled the cache.
	if key, ok := s.cache.Get(store.GroupSlot(groupID)); ok {
		return key, nil
	}

	key, found, err := s.loadOwnGroupKey(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if found {
		return key, nil
	}

	members, err := s.dir.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", groupID, err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoGroupMembers, groupID)
	}

	// Our row is missing, but row-level access hides everyone else's rows,
	// so ask whether the group already has a key before making one.
	exists, err := s.dir.GroupKeyExists(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("check group key of %s: %w", groupID, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrGroupKeyNotFound, groupID)
	}

	won, err := s.dir.ClaimGroupKeyOrigination(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("claim origination of %s: %w", groupID, err)
	}
	if !won {
		// Someone else is the originator; their rows may already include ours.
		return s.loadAfterLostOrigination(ctx, userID, groupID, ErrGroupKeyPending)
	}

	key, err = s.originateGroupKey(ctx, userID, groupID, members)
	if err != nil {
		if rerr := s.dir.ReleaseGroupKeyOrigination(ctx, groupID, userID); rerr != nil {
			s.log.Error("release origination claim",
				zap.String("group_id", groupID.String()),
				zap.Error(rerr),
			)
		}
		if errors.Is(err, domain.ErrConflict) {
			// Rows appeared between the existence check and our insert.
			return s.loadAfterLostOrigination(ctx, userID, groupID, ErrGroupKeyNotFound)
		}
		return nil, err
	}
	return key, nil
}

// loadAfterLostOrigination reads userID's row written by another
// originator, failing with absent when there is none.
func (s *Service) loadAfterLostOrigination(
	ctx context.Context,
	userID domain.UserID,
	groupID domain.GroupID,
	absent error,
) ([]byte, error) {
	key, found, err := s.loadOwnGroupKey(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", absent, groupID)
	}
	return key, nil
}

// loadOwnGroupKey unwraps userID's row, caches the key and queues top-up.
// found is false when there is no row.
func (s *Service) loadOwnGroupKey(
	ctx context.Context,
	userID domain.UserID,
	groupID domain.GroupID,
) (key []byte, found bool, err error) {
	row, ok, err := s.dir.LoadGroupKeyRow(ctx, groupID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load group key row of %s: %w", groupID, err)
	}
	if !ok {
		return nil, false, nil
	}

	pair, err := s.loadOwnKeyPair(userID)
	if err != nil {
		return nil, false, err
	}
	key, err = crypto.UnwrapKey(row.EncryptedKey, pair.PrivateKey)
	if err != nil {
		s.log.Warn("group key row cannot be unwrapped",
			zap.String("group_id", groupID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, false, fmt.Errorf("%w: %s: %w", ErrCorruptGroupKey, groupID, err)
	}

	s.cache.Set(store.GroupSlot(groupID), key)
	s.topUp.Enqueue(groupID, key)
	return key, true, nil
}

// originateGroupKey generates the group key and inserts one wrapped row per
// member. Members without a published key are left for top-up. Existing
// rows are never overwritten: the insert fails with domain.ErrConflict.
func (s *Service) originateGroupKey(
	ctx context.Context,
	userID domain.UserID,
	groupID domain.GroupID,
	members []domain.UserID,
) ([]byte, error) {
	pair, err := s.loadOwnKeyPair(userID)
	if err != nil {
		return nil, err
	}

	key, err := crypto.GenerateSymmetricKey()
	if err != nil {
		return nil, err
	}

	targets := members
	if !containsUser(members, userID) {
		targets = append(append([]domain.UserID(nil), members...), userID)
	}

	rows := make([]domain.GroupKeyRow, 0, len(targets))
	for _, member := range targets {
		publicKey := pair.PublicKey
		if member != userID {
			rec, ok, err := s.dir.FetchPublicKey(ctx, member)
			if err != nil {
				s.log.Warn("fetch member public key",
					zap.String("group_id", groupID.String()),
					zap.String("member_id", member.String()),
					zap.Error(err),
				)
				continue
			}
			if !ok {
				s.log.Debug("member has no published key; leaving for top-up",
					zap.String("group_id", groupID.String()),
					zap.String("member_id", member.String()),
				)
				continue
			}
			publicKey = rec.PublicKey
		}

		wrapped, err := crypto.WrapKey(key, publicKey)
		if err != nil {
			s.log.Warn("wrap group key for member",
				zap.String("group_id", groupID.String()),
				zap.String("member_id", member.String()),
				zap.Error(err),
			)
			continue
		}
		rows = append(rows, domain.GroupKeyRow{
			GroupID:      groupID,
			TargetUserID: member,
			EncryptedKey: wrapped,
			UpdatedAt:    s.now().UTC(),
		})
	}

	if err := s.dir.InsertGroupKeyRows(ctx, rows); err != nil {
		memzero.Zero(key)
		s.log.Error("write group key rows",
			zap.String("group_id", groupID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("write group key rows of %s: %w", groupID, err)
	}

	s.log.Info("group key originated",
		zap.String("group_id", groupID.String()),
		zap.Int("rows", len(rows)),
		zap.Int("members", len(targets)),
	)
	s.cache.Set(store.GroupSlot(groupID), key)
	return key, nil
}

func containsUser(users []domain.UserID, u domain.UserID) bool {
	for _, x := range users {
		if x == u {
			return true
		}
	}
	return false
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"convokey/internal/domain"
	"convokey/internal/logger"
)

// Postgres SQLSTATE codes the repository maps onto domain errors.
const (
	pgNotNullViolation = "23502"
	pgUniqueViolation  = "23505"
	pgCheckViolation   = "23514"
)

// Repository is a Directory backed by Postgres through bun.
type Repository struct {
	db     *bun.DB
	logger *zap.Logger
}

// Open connects to dsn and pings it.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "keyRepo.Open.Ping")
	}
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

// NewRepository wraps an open bun.DB.
func NewRepository(db *bun.DB, log *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger.OrNop(log).Named("keydir.postgres")}
}

// CreateSchema creates the directory tables if missing. With
// requireRecordID the public key id column loses its default, so inserts
// without an ID fail with a not-null violation.
func (r *Repository) CreateSchema(ctx context.Context, requireRecordID bool) error {
	if _, err := r.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS "pgcrypto"`); err != nil {
		return errors.Wrap(err, "keyRepo.CreateSchema.Extension")
	}
	for _, m := range models {
		if _, err := r.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrapf(err, "keyRepo.CreateSchema.CreateTable(%T)", m)
		}
	}
	stmt := `ALTER TABLE e2e_public_keys ALTER COLUMN id SET DEFAULT gen_random_uuid()`
	if requireRecordID {
		stmt = `ALTER TABLE e2e_public_keys ALTER COLUMN id DROP DEFAULT`
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "keyRepo.CreateSchema.AlterID")
	}
	return nil
}

func (r *Repository) FetchPublicKey(ctx context.Context, userID domain.UserID) (domain.PublishedPublicKey, bool, error) {
	m := new(publicKeyModel)
	err := r.db.NewSelect().Model(m).Where("user_id = ?", userID.String()).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PublishedPublicKey{}, false, nil
	}
	if err != nil {
		return domain.PublishedPublicKey{}, false, errors.Wrap(err, "keyRepo.FetchPublicKey.Scan")
	}
	return m.toDomain(), true, nil
}

func (r *Repository) InsertPublicKey(ctx context.Context, rec domain.PublishedPublicKey) error {
	m := &publicKeyModel{
		ID:        rec.ID,
		UserID:    rec.UserID.String(),
		PublicKey: rec.PublicKey,
		UpdatedAt: rec.UpdatedAt,
	}
	if _, err := r.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return errors.Wrap(mapPgError(err), "keyRepo.InsertPublicKey.Insert")
	}
	return nil
}

func (r *Repository) UpdatePublicKey(ctx context.Context, rec domain.PublishedPublicKey) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := r.db.NewUpdate().
		Model((*publicKeyModel)(nil)).
		Set("public_key = ?", rec.PublicKey).
		Set("updated_at = ?", updatedAt).
		Where("user_id = ?", rec.UserID.String()).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(mapPgError(err), "keyRepo.UpdatePublicKey.Update")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(domain.ErrNotFound, "keyRepo.UpdatePublicKey(%s)", rec.UserID)
	}
	return nil
}

// SetGroupMembers replaces the member list in one transaction.
func (r *Repository) SetGroupMembers(ctx context.Context, groupID domain.GroupID, members []domain.UserID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*groupMemberModel)(nil)).
			Where("group_id = ?", groupID.String()).
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "keyRepo.SetGroupMembers.Delete")
		}
		if len(members) == 0 {
			return nil
		}
		rows := make([]groupMemberModel, 0, len(members))
		for _, u := range members {
			rows = append(rows, groupMemberModel{GroupID: groupID.String(), UserID: u.String()})
		}
		if _, err := tx.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return errors.Wrap(err, "keyRepo.SetGroupMembers.Insert")
		}
		return nil
	})
}

func (r *Repository) ListGroupMembers(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*groupMemberModel)(nil)).
		Column("user_id").
		Where("group_id = ?", groupID.String()).
		Order("user_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.Wrap(err, "keyRepo.ListGroupMembers.Scan")
	}
	return toUserIDs(ids), nil
}

func (r *Repository) LoadGroupKeyRow(
	ctx context.Context,
	groupID domain.GroupID,
	userID domain.UserID,
) (domain.GroupKeyRow, bool, error) {
	m := new(groupKeyModel)
	err := r.db.NewSelect().
		Model(m).
		Where("group_id = ?", groupID.String()).
		Where("target_user_id = ?", userID.String()).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GroupKeyRow{}, false, nil
	}
	if err != nil {
		return domain.GroupKeyRow{}, false, errors.Wrap(err, "keyRepo.LoadGroupKeyRow.Scan")
	}
	return m.toDomain(), true, nil
}

func (r *Repository) UpsertGroupKeyRows(ctx context.Context, rows []domain.GroupKeyRow) error {
	if len(rows) == 0 {
		return nil
	}
	ms := toGroupKeyModels(rows)
	_, err := r.db.NewInsert().
		Model(&ms).
		On("CONFLICT (group_id, target_user_id) DO UPDATE").
		Set("encrypted_key = EXCLUDED.encrypted_key").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(mapPgError(err), "keyRepo.UpsertGroupKeyRows.Insert")
	}
	return nil
}

// InsertGroupKeyRows is a single multi-row INSERT, so one duplicate
// (group_id, target_user_id) rejects the whole batch.
func (r *Repository) InsertGroupKeyRows(ctx context.Context, rows []domain.GroupKeyRow) error {
	if len(rows) == 0 {
		return nil
	}
	ms := toGroupKeyModels(rows)
	if _, err := r.db.NewInsert().Model(&ms).Exec(ctx); err != nil {
		return errors.Wrap(mapPgError(err), "keyRepo.InsertGroupKeyRows.Insert")
	}
	return nil
}

func (r *Repository) GroupKeyExists(ctx context.Context, groupID domain.GroupID) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*groupKeyModel)(nil)).
		Where("group_id = ?", groupID.String()).
		Exists(ctx)
	if err != nil {
		return false, errors.Wrap(err, "keyRepo.GroupKeyExists.Exists")
	}
	return exists, nil
}

func (r *Repository) MembersMissingGroupKey(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	var ids []string
	err := r.db.NewSelect().
		TableExpr("e2e_group_members AS m").
		ColumnExpr("m.user_id").
		Join("LEFT JOIN e2e_group_keys AS k ON k.group_id = m.group_id AND k.target_user_id = m.user_id").
		Where("m.group_id = ?", groupID.String()).
		Where("k.target_user_id IS NULL").
		Order("m.user_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.Wrap(err, "keyRepo.MembersMissingGroupKey.Scan")
	}
	return toUserIDs(ids), nil
}

// ClaimGroupKeyOrigination inserts the group's sentinel row. The primary key
// on group_id makes exactly one insert win; a held claim is never won again.
func (r *Repository) ClaimGroupKeyOrigination(
	ctx context.Context,
	groupID domain.GroupID,
	userID domain.UserID,
) (bool, error) {
	res, err := r.db.NewInsert().
		Model(&groupKeyClaimModel{GroupID: groupID.String(), UserID: userID.String()}).
		On("CONFLICT (group_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "keyRepo.ClaimGroupKeyOrigination.Insert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "keyRepo.ClaimGroupKeyOrigination.RowsAffected")
	}
	if n != 1 {
		return false, nil
	}
	r.logger.Debug("origination claimed",
		zap.String("group_id", groupID.String()),
		zap.String("user_id", userID.String()),
	)
	return true, nil
}

func (r *Repository) ReleaseGroupKeyOrigination(
	ctx context.Context,
	groupID domain.GroupID,
	userID domain.UserID,
) error {
	_, err := r.db.NewDelete().
		Model((*groupKeyClaimModel)(nil)).
		Where("group_id = ?", groupID.String()).
		Where("user_id = ?", userID.String()).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "keyRepo.ReleaseGroupKeyOrigination.Delete")
	}
	return nil
}

// mapPgError turns constraint violations into domain errors.
func mapPgError(err error) error {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Field('C') {
	case pgNotNullViolation, pgCheckViolation:
		return errors.Wrap(domain.ErrSchemaConstraint, pgErr.Field('M'))
	case pgUniqueViolation:
		return errors.Wrap(domain.ErrConflict, pgErr.Field('M'))
	}
	return err
}

func toGroupKeyModels(rows []domain.GroupKeyRow) []groupKeyModel {
	now := time.Now().UTC()
	ms := make([]groupKeyModel, 0, len(rows))
	for _, row := range rows {
		updatedAt := row.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		ms = append(ms, groupKeyModel{
			GroupID:      row.GroupID.String(),
			TargetUserID: row.TargetUserID.String(),
			EncryptedKey: row.EncryptedKey,
			UpdatedAt:    updatedAt,
		})
	}
	return ms
}

func toUserIDs(ids []string) []domain.UserID {
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out
}

var _ domain.Directory = (*Repository)(nil)

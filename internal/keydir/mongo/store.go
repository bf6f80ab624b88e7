package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"convokey/internal/domain"
	"convokey/internal/logger"
)

const (
	collPublicKeys   = "public_keys"
	collGroupKeys    = "group_keys"
	collGroupMembers = "group_members"
	collClaims       = "group_key_claims"

	codeNamespaceExists          = 48
	codeDocumentValidationFailed = 121
)

type publicKeyDoc struct {
	UserID    string    `bson:"_id"`
	ID        string    `bson:"id,omitempty"`
	PublicKey string    `bson:"public_key"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type groupKeyDoc struct {
	GroupID      string    `bson:"group_id"`
	TargetUserID string    `bson:"target_user_id"`
	EncryptedKey string    `bson:"encrypted_key"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type groupMembersDoc struct {
	GroupID string   `bson:"_id"`
	Members []string `bson:"members"`
}

type claimDoc struct {
	GroupID   string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ClaimedAt time.Time `bson:"claimed_at"`
}

// Options configures NewStore.
type Options struct {
	URI      string
	Database string
	// RequireRecordID installs a validator on public_keys that rejects
	// documents without an id.
	RequireRecordID bool
	Logger          *zap.Logger
}

// Store is a Directory backed by MongoDB.
type Store struct {
	client  *mongo.Client
	keys    *mongo.Collection
	rows    *mongo.Collection
	members *mongo.Collection
	claims  *mongo.Collection
	logger  *zap.Logger
}

// NewStore connects, pings and prepares collections and indexes.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo uri is empty")
	}
	if opts.Database == "" {
		opts.Database = "convokey"
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}

	db := cli.Database(opts.Database)
	s := &Store{
		client:  cli,
		keys:    db.Collection(collPublicKeys),
		rows:    db.Collection(collGroupKeys),
		members: db.Collection(collGroupMembers),
		claims:  db.Collection(collClaims),
		logger:  logger.OrNop(opts.Logger).Named("keydir.mongo"),
	}
	if err := s.prepare(ctx, db, opts.RequireRecordID); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare(ctx context.Context, db *mongo.Database, requireRecordID bool) error {
	if requireRecordID {
		validator := bson.M{"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"id"},
			"properties": bson.M{
				"id": bson.M{"bsonType": "string", "minLength": 1},
			},
		}}
		err := db.CreateCollection(ctx, collPublicKeys, options.CreateCollection().SetValidator(validator))
		if hasCode(err, codeNamespaceExists) {
			err = db.RunCommand(ctx, bson.D{
				{Key: "collMod", Value: collPublicKeys},
				{Key: "validator", Value: validator},
			}).Err()
		}
		if err != nil {
			return fmt.Errorf("install public key validator: %w", err)
		}
	}

	_, err := s.rows.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "target_user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create group key index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) FetchPublicKey(ctx context.Context, userID domain.UserID) (domain.PublishedPublicKey, bool, error) {
	var doc publicKeyDoc
	err := s.keys.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.PublishedPublicKey{}, false, nil
	}
	if err != nil {
		return domain.PublishedPublicKey{}, false, fmt.Errorf("fetch public key %s: %w", userID, err)
	}
	return domain.PublishedPublicKey{
		ID:        doc.ID,
		UserID:    domain.UserID(doc.UserID),
		PublicKey: doc.PublicKey,
		UpdatedAt: doc.UpdatedAt,
	}, true, nil
}

func (s *Store) InsertPublicKey(ctx context.Context, rec domain.PublishedPublicKey) error {
	doc := publicKeyDoc{
		UserID:    rec.UserID.String(),
		ID:        rec.ID,
		PublicKey: rec.PublicKey,
		UpdatedAt: orNow(rec.UpdatedAt),
	}
	_, err := s.keys.InsertOne(ctx, doc)
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("insert public key %s: %w", rec.UserID, domain.ErrConflict)
	case hasCode(err, codeDocumentValidationFailed):
		return fmt.Errorf("insert public key %s: %w", rec.UserID, domain.ErrSchemaConstraint)
	default:
		return fmt.Errorf("insert public key %s: %w", rec.UserID, err)
	}
}

func (s *Store) UpdatePublicKey(ctx context.Context, rec domain.PublishedPublicKey) error {
	res, err := s.keys.UpdateByID(ctx, rec.UserID.String(), bson.M{
		"$set": bson.M{
			"public_key": rec.PublicKey,
			"updated_at": orNow(rec.UpdatedAt),
		},
	})
	if err != nil {
		return fmt.Errorf("update public key %s: %w", rec.UserID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update public key %s: %w", rec.UserID, domain.ErrNotFound)
	}
	return nil
}

// SetGroupMembers replaces the member list of a group.
func (s *Store) SetGroupMembers(ctx context.Context, groupID domain.GroupID, members []domain.UserID) error {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.String()
	}
	_, err := s.members.UpdateByID(ctx, groupID.String(),
		bson.M{"$set": bson.M{"members": ids}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set members of %s: %w", groupID, err)
	}
	return nil
}

func (s *Store) ListGroupMembers(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	var doc groupMembersDoc
	err := s.members.FindOne(ctx, bson.M{"_id": groupID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", groupID, err)
	}
	sort.Strings(doc.Members)
	out := make([]domain.UserID, len(doc.Members))
	for i, m := range doc.Members {
		out[i] = domain.UserID(m)
	}
	return out, nil
}

func (s *Store) LoadGroupKeyRow(
	ctx context.Context,
	groupID domain.GroupID,
	userID domain.UserID,
) (domain.GroupKeyRow, bool, error) {
	var doc groupKeyDoc
	err := s.rows.FindOne(ctx, bson.M{
		"group_id":       groupID.String(),
		"target_user_id": userID.String(),
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.GroupKeyRow{}, false, nil
	}
	if err != nil {
		return domain.GroupKeyRow{}, false, fmt.Errorf("load group key row %s/%s: %w", groupID, userID, err)
	}
	return domain.GroupKeyRow{
		GroupID:      domain.GroupID(doc.GroupID),
		TargetUserID: domain.UserID(doc.TargetUserID),
		EncryptedKey: doc.EncryptedKey,
		UpdatedAt:    doc.UpdatedAt,
	}, true, nil
}

func (s *Store) UpsertGroupKeyRows(ctx context.Context, rows []domain.GroupKeyRow) error {
	if len(rows) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				"group_id":       row.GroupID.String(),
				"target_user_id": row.TargetUserID.String(),
			}).
			SetUpdate(bson.M{"$set": bson.M{
				"encrypted_key": row.EncryptedKey,
				"updated_at":    orNow(row.UpdatedAt),
			}}).
			SetUpsert(true))
	}
	if _, err := s.rows.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert group key rows: %w", err)
	}
	return nil
}

// InsertGroupKeyRows inserts rows in order. Mongo has no multi-document
// atomicity outside transactions, so on a duplicate the rows inserted
// before it are deleted again.
func (s *Store) InsertGroupKeyRows(ctx context.Context, rows []domain.GroupKeyRow) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]any, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, groupKeyDoc{
			GroupID:      row.GroupID.String(),
			TargetUserID: row.TargetUserID.String(),
			EncryptedKey: row.EncryptedKey,
			UpdatedAt:    orNow(row.UpdatedAt),
		})
	}
	_, err := s.rows.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert group key rows: %w", err)
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		if inserted := bwe.WriteErrors[0].Index; inserted > 0 {
			s.undoInsert(ctx, rows[:inserted])
		}
	}
	return fmt.Errorf("insert group key rows: %w", domain.ErrConflict)
}

func (s *Store) undoInsert(ctx context.Context, rows []domain.GroupKeyRow) {
	or := make(bson.A, 0, len(rows))
	for _, row := range rows {
		or = append(or, bson.M{
			"group_id":       row.GroupID.String(),
			"target_user_id": row.TargetUserID.String(),
			"encrypted_key":  row.EncryptedKey,
		})
	}
	if _, err := s.rows.DeleteMany(ctx, bson.M{"$or": or}); err != nil {
		s.logger.Error("undo partial group key insert", zap.Error(err))
	}
}

func (s *Store) GroupKeyExists(ctx context.Context, groupID domain.GroupID) (bool, error) {
	n, err := s.rows.CountDocuments(ctx, bson.M{"group_id": groupID.String()}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count group key rows of %s: %w", groupID, err)
	}
	return n > 0, nil
}

func (s *Store) MembersMissingGroupKey(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	members, err := s.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	have, err := s.rows.Distinct(ctx, "target_user_id", bson.M{"group_id": groupID.String()})
	if err != nil {
		return nil, fmt.Errorf("list group key holders of %s: %w", groupID, err)
	}
	holders := make(map[string]struct{}, len(have))
	for _, v := range have {
		if id, ok := v.(string); ok {
			holders[id] = struct{}{}
		}
	}
	var out []domain.UserID
	for _, m := range members {
		if _, ok := holders[m.String()]; !ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// ClaimGroupKeyOrigination inserts a document keyed by the group ID; the
// unique _id makes exactly one insert win. A held claim is never won again.
func (s *Store) ClaimGroupKeyOrigination(ctx context.Context, groupID domain.GroupID, userID domain.UserID) (bool, error) {
	_, err := s.claims.InsertOne(ctx, claimDoc{
		GroupID:   groupID.String(),
		UserID:    userID.String(),
		ClaimedAt: time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim origination of %s: %w", groupID, err)
	}
	s.logger.Debug("origination claimed",
		zap.String("group_id", groupID.String()),
		zap.String("user_id", userID.String()),
	)
	return true, nil
}

func (s *Store) ReleaseGroupKeyOrigination(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	_, err := s.claims.DeleteOne(ctx, bson.M{"_id": groupID.String(), "user_id": userID.String()})
	if err != nil {
		return fmt.Errorf("release origination of %s: %w", groupID, err)
	}
	return nil
}

func hasCode(err error, code int) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(code)
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

var _ domain.Directory = (*Store)(nil)

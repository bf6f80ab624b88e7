package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"convokey/internal/keydir"
	"convokey/internal/keydir/mongo"
	"convokey/internal/keydir/postgres"
)

// OpenBackend returns the directory server's storage selected by
// cfg.Server.Backend, and a function that releases it.
func OpenBackend(ctx context.Context, cfg Config, log *zap.Logger) (keydir.Backend, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Server.Backend {
	case BackendMemory, "":
		mem := keydir.NewMemory()
		mem.RequireRecordID = cfg.Server.RequireRecordID
		return mem, noop, nil

	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return nil, nil, fmt.Errorf("postgres backend needs postgres.dsn")
		}
		db, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewRepository(db, log)
		if err := repo.CreateSchema(ctx, cfg.Server.RequireRecordID); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func(context.Context) error { return db.Close() }, nil

	case BackendMongo:
		s, err := mongo.NewStore(ctx, mongo.Options{
			URI:             cfg.Mongo.URI,
			Database:        cfg.Mongo.Database,
			RequireRecordID: cfg.Server.RequireRecordID,
			Logger:          log,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown directory backend %q", cfg.Server.Backend)
	}
}

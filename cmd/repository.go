package main

import (
	"context"
	"fmt"
	"time"

	"reminderbot/config"
	"reminderbot/db"
	"reminderbot/services"
	"reminderbot/storage/boltstore"
	"reminderbot/storage/jsonfile"
)

// openRepository opens the given backend using the locations from cfg
func openRepository(
	ctx context.Context,
	cfg config.StorageConfig,
	backend string,
	defaultInterval time.Duration,
) (services.EventsRepository, error) {
	switch backend {
	case config.BackendJSON:
		repo, err := jsonfile.NewRepository(cfg.DataFile, defaultInterval)
		if err != nil {
			return nil, err
		}
		return repo, nil

	case config.BackendBolt:
		repo, err := boltstore.NewRepository(cfg.BoltFile, defaultInterval)
		if err != nil {
			return nil, err
		}
		return repo, nil

	case config.BackendSQLite:
		conn, err := db.NewSQLiteConnection(cfg.SQLiteFile)
		if err != nil {
			return nil, err
		}
		return ensureSchema(ctx, db.NewSQLEventsRepository(conn, ""))

	case config.BackendPostgres:
		conn, err := db.NewConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return ensureSchema(ctx, db.NewSQLEventsRepository(conn, cfg.DatabaseSchema))

	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func ensureSchema(ctx context.Context, repo *db.SQLEventsRepository) (services.EventsRepository, error) {
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

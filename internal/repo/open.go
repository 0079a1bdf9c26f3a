package repo

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"paycrypt/migrations"
)

// OpenConfig selects the order store backend.
type OpenConfig struct {
	DatabaseURL string
	Schema      string
	SQLitePath  string
}

// Open connects to Postgres when DatabaseURL is set and to SQLite otherwise.
func Open(ctx context.Context, cfg OpenConfig, logger *slog.Logger) (Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		store, err := NewPostgres(ctx, cfg.DatabaseURL, cfg.Schema, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case cfg.SQLitePath != "":
		store, err := NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.New("no database configured")
	}
}

// Migrate applies the embedded migrations matching the store's backend.
func Migrate(ctx context.Context, store Store) error {
	return store.RunMigrations(ctx, migrationsFor(store))
}

func migrationsFor(store Store) fs.FS {
	if _, ok := store.(*PostgresStore); ok {
		return migrations.Postgres()
	}
	return migrations.SQLite()
}

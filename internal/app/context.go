package app

import (
	"context"
	"database/sql"
	"fmt"

	"assessvault/internal/config"
	"assessvault/internal/db"
	"assessvault/internal/engine"
	"assessvault/internal/logger"
	"assessvault/internal/migrate"
	"assessvault/internal/storage"
)

// LoadConfig reads assessvault.yml from workspace, falling back to defaults
// when it is absent, then applies lookup overrides and validates the result.
func LoadConfig(workspace string, lookup func(key string) string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if lookup != nil {
		if err := cfg.ApplyOverrides(lookup); err != nil {
			return nil, fmt.Errorf("config override: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewStore builds the object store selected by cfg.
func NewStore(ctx context.Context, cfg config.Storage) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemory(""), nil
	case config.BackendS3:
		s, err := storage.NewS3(ctx, storage.S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UsePathStyle:    cfg.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Open opens and migrates the workspace database, then wires an engine
// around the configured store. The caller closes the returned DB.
func Open(ctx context.Context, workspace string, cfg *config.Config, log logger.Logger) (engine.Engine, *sql.DB, error) {
	store, err := NewStore(ctx, cfg.Storage)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("workspace opened", map[string]any{"workspace": workspace, "db": db.Path(workspace), "backend": cfg.Storage.Backend})
	return engine.New(conn, cfg, store, log), conn, nil
}

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rag-console/config"
)

// Open builds the store named by the configuration, namespaced to the active
// session.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Store {
	case config.StoreMemory:
		store = NewMemoryStore()
	case config.StoreFile:
		store, err = NewFileStore(cfg.StorePath)
	case config.StoreSQLite:
		if err = os.MkdirAll(cfg.StorePath, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		store, err = NewSQLiteStore(filepath.Join(cfg.StorePath, "rag-console.db"))
	case config.StorePostgres:
		store, err = NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store)
	}
	if err != nil {
		return nil, err
	}
	return Namespaced(store, cfg.SessionID), nil
}

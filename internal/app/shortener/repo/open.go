package repo

import (
	"context"
	"fmt"

	"hexlink.local/internal/platform/config"
	"hexlink.local/internal/platform/db"
)

// Open builds the backend named by cfg.StoreDriver. It does not touch the
// schema; every backend creates it on first use.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.StoreDriver {
	case "postgres", "":
		pool, err := db.New(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool, cfg.StoreTimeout), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, cfg.StoreTimeout, cfg.LockTimeout)
	case "json":
		return NewJSONFileStore(cfg.JSONPath, cfg.LockTimeout), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

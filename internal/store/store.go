package store

import (
	"context"
	"fmt"

	"orderscout/internal/config"
	"orderscout/internal/ports"
)

// KeywordStore manages an identity's saved keyword set.
type KeywordStore interface {
	AddKeyword(ctx context.Context, identity, keyword string) error
	RemoveKeyword(ctx context.Context, identity, keyword string) error
	Keywords(ctx context.Context, identity string) ([]string, error)
}

// Store is what both backends provide.
type Store interface {
	ports.SeenStore
	KeywordStore
	Close() error
}

// Open builds the backend named by cfg.Driver. An empty driver means
// sqlite.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "orderscout.db"
		}
		return OpenSQLite(path)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

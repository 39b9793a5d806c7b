package store

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/vigia/internal/config"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// New creates the configured watchlist backend. Backend selection happens
// here, once, at startup; an unknown backend refuses to start.
func New(ctx context.Context, cfg *config.Config) (WatchlistStore, error) {
	switch cfg.WatchlistBackend {
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL, cfg.EmbeddingSize)
	case "postgresql":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.EmbeddingSize)
	case "redis":
		return NewRedis(ctx, cfg.RedisAddr, cfg.EmbeddingSize)
	case "memory":
		return NewMemory(cfg.EmbeddingSize), nil
	default:
		return nil, domain.ErrUnknownBackend.WithError(
			fmt.Errorf("%q (supported: sqlite, postgresql, redis, memory)", cfg.WatchlistBackend))
	}
}

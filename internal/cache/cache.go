// Package cache opens the configured storage.BarStore backend.
package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"gapup-lab/internal/config"
	"gapup-lab/internal/storage"
	"gapup-lab/internal/storage/badger"
	"gapup-lab/internal/storage/clickhouse"
	"gapup-lab/internal/storage/memory"
	"gapup-lab/internal/storage/postgres"
	"gapup-lab/internal/storage/redis"
	"gapup-lab/internal/storage/sqlite"
)

// Open connects to the backend named in cfg and prepares its schema.
// The returned store owns the connection; Close releases it.
func Open(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (storage.BarStore, error) {
	logger = logger.With().Str("backend", cfg.Backend).Logger()

	switch cfg.Backend {
	case config.BackendSQLite, "":
		db, err := sqlite.Open(ctx, sqlite.Options{Path: cfg.Path, WALMode: true}, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", db.Path()).Msg("opened sqlite cache")
		return sqlite.NewBarStore(db), nil

	case config.BackendBadger:
		db, err := badger.Open(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", cfg.Path).Msg("opened badger cache")
		return badger.NewBarStore(db), nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Debug().Msg("connected to postgres cache")
		return postgres.NewBarStore(pool), nil

	case config.BackendClickHouse:
		conn, err := clickhouse.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Debug().Msg("connected to clickhouse cache")
		return clickhouse.NewBarStore(conn), nil

	case config.BackendRedis:
		client, err := redis.NewClient(ctx,
			redis.WithAddr(cfg.Redis.Addr),
			redis.WithPassword(cfg.Redis.Password),
			redis.WithDB(cfg.Redis.DB),
			redis.WithPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("addr", cfg.Redis.Addr).Msg("connected to redis cache")
		return redis.NewBarStore(client), nil

	case config.BackendMemory:
		return memory.NewBarStore(), nil

	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", storage.ErrInvalidInput, cfg.Backend)
	}
}

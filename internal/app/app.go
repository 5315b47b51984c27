// Package app wires configuration into stores and engines. Both binaries
// bootstrap through it so they always agree on where state lives.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/tally/internal/core/config"
	"github.com/aevon-lab/tally/internal/core/storage"
	"github.com/aevon-lab/tally/internal/core/storage/jsonfile"
	"github.com/aevon-lab/tally/internal/core/storage/memory"
	"github.com/aevon-lab/tally/internal/core/storage/postgres"
	"github.com/aevon-lab/tally/internal/core/storage/redisstore"
	"github.com/aevon-lab/tally/internal/core/storage/sqlite"
	"github.com/aevon-lab/tally/internal/counter"
	"github.com/aevon-lab/tally/internal/migrations"
)

// Store is an open StateStore plus the hook that preserves a corrupt
// document before an init-fresh start. Quarantine is nil when the backend
// has nothing to preserve.
type Store struct {
	storage.StateStore
	Quarantine func() error
}

// OpenStore opens the configured backend.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	switch cfg.Type {
	case config.StorageJSONFile:
		s, err := jsonfile.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Store{StateStore: s, Quarantine: s.Quarantine}, nil

	case config.StoragePostgres:
		db, err := postgres.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		s, err := postgres.NewStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Store{StateStore: s}, nil

	case config.StorageSQLite:
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Store{StateStore: s}, nil

	case config.StorageRedis:
		rcfg := redisstore.DefaultConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPassword
		rcfg.DB = cfg.RedisDB
		if cfg.RedisKey != "" {
			rcfg.Key = cfg.RedisKey
		}
		s, err := redisstore.NewStore(ctx, rcfg)
		if err != nil {
			return nil, err
		}
		return &Store{StateStore: s}, nil

	case config.StorageMemory:
		slog.Warn("[App] Using in-memory storage; counts are lost on restart")
		return &Store{StateStore: memory.NewStore()}, nil

	default:
		return nil, fmt.Errorf("unsupported storage.type %q", cfg.Type)
	}
}

// NewEngine opens the configured store and loads the counter state.
// The caller owns the returned store and must Close it.
func NewEngine(ctx context.Context, cfg *config.Config) (*counter.Engine, *Store, error) {
	policy, err := cfg.Period.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid period config: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}

	engine := counter.NewEngine(store, policy)
	err = engine.Load(ctx, counter.LoadOptions{
		InitFresh:  cfg.Storage.InitFresh,
		Quarantine: store.Quarantine,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	return engine, store, nil
}

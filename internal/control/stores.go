package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/pricewatch/internal/core/config"
	redisclient "github.com/vietddude/pricewatch/internal/infra/redis"
	"github.com/vietddude/pricewatch/internal/infra/storage"
	"github.com/vietddude/pricewatch/internal/infra/storage/badger"
	"github.com/vietddude/pricewatch/internal/infra/storage/file"
	"github.com/vietddude/pricewatch/internal/infra/storage/memory"
	"github.com/vietddude/pricewatch/internal/infra/storage/postgres"
)

// Stores are the repositories of one platform on the configured backend.
type Stores struct {
	Backend   string
	Snapshots storage.SnapshotRepository
	Catalogs  storage.CatalogRepository

	// Set only by the matching backend.
	Redis *redisclient.Client
	DB    *postgres.DB

	closers []func() error
}

// OpenStores connects to the configured backend and binds its repositories
// to platform.
func OpenStores(ctx context.Context, cfg config.StorageConfig, redisCfg redisclient.Config, dbCfg postgres.Config, platform string) (*Stores, error) {
	s := &Stores{Backend: cfg.Backend}

	switch cfg.Backend {
	case "file", "":
		dir, err := file.NewDir(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		s.Snapshots = file.NewSnapshotRepo(dir, platform)
		s.Catalogs = file.NewCatalogRepo(dir, platform)
		slog.Info("Using file storage", "dir", dir.Path())

	case "memory":
		store := memory.NewMemoryStorage()
		s.Snapshots = memory.NewSnapshotRepo(store, platform)
		s.Catalogs = memory.NewCatalogRepo(store, platform)
		slog.Info("Using memory storage")

	case "redis":
		client, err := redisclient.NewClient(redisCfg)
		if err != nil {
			return nil, err
		}
		s.Redis = client
		s.closers = append(s.closers, client.Close)
		s.Snapshots = redisclient.NewSnapshotRepo(client, platform)
		s.Catalogs = redisclient.NewCatalogRepo(client, platform)
		slog.Info("Using Redis storage")

	case "postgres":
		db, err := postgres.NewDB(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		s.DB = db
		s.Snapshots = postgres.NewSnapshotRepo(db, platform)
		s.Catalogs = postgres.NewCatalogRepo(db, platform)
		slog.Info("Using PostgreSQL storage")

	case "badger":
		store, err := badger.Open(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		s.Snapshots = badger.NewSnapshotRepo(store, platform)
		s.Catalogs = badger.NewCatalogRepo(store, platform)
		slog.Info("Using Badger storage", "path", cfg.BadgerPath)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	return s, nil
}

// Close releases backend connections.
func (s *Stores) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

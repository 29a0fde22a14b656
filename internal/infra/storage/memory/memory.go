package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

type catalogRecord struct {
	catalog *domain.TokenCatalog
	savedAt time.Time
}

// MemoryStorage keeps snapshots and catalogs in process, keyed by platform.
// Values are deep-copied on the way in and out.
type MemoryStorage struct {
	snapshots map[string]*domain.Snapshot
	catalogs  map[string]catalogRecord
	now       func() time.Time
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		snapshots: make(map[string]*domain.Snapshot),
		catalogs:  make(map[string]catalogRecord),
		now:       time.Now,
	}
}

// -----------------------------------------------------------------------------
// Snapshot Repository
// -----------------------------------------------------------------------------

type SnapshotRepo struct {
	store    *MemoryStorage
	platform string
}

func NewSnapshotRepo(store *MemoryStorage, platform string) *SnapshotRepo {
	return &SnapshotRepo{store: store, platform: platform}
}

func (r *SnapshotRepo) Load(ctx context.Context) (*domain.Snapshot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	snap, ok := r.store.snapshots[r.platform]
	if !ok {
		return domain.NewSnapshot(), nil
	}
	return snap.Clone(), nil
}

func (r *SnapshotRepo) Save(ctx context.Context, snap *domain.Snapshot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.snapshots[r.platform] = snap.Clone()
	return nil
}

// -----------------------------------------------------------------------------
// Catalog Repository
// -----------------------------------------------------------------------------

type CatalogRepo struct {
	store    *MemoryStorage
	platform string
}

func NewCatalogRepo(store *MemoryStorage, platform string) *CatalogRepo {
	return &CatalogRepo{store: store, platform: platform}
}

func (r *CatalogRepo) Load(ctx context.Context) (*domain.TokenCatalog, time.Time, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.catalogs[r.platform]
	if !ok {
		return nil, time.Time{}, storage.ErrCatalogNotFound
	}
	return copyCatalog(rec.catalog), rec.savedAt, nil
}

func (r *CatalogRepo) Save(ctx context.Context, catalog *domain.TokenCatalog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.catalogs[r.platform] = catalogRecord{
		catalog: copyCatalog(catalog),
		savedAt: r.store.now(),
	}
	return nil
}

func copyCatalog(c *domain.TokenCatalog) *domain.TokenCatalog {
	out := domain.NewTokenCatalog()
	for _, e := range c.Entries() {
		out.Add(e.Address, e.MarketID)
	}
	return out
}

var (
	_ storage.SnapshotRepository = (*SnapshotRepo)(nil)
	_ storage.CatalogRepository  = (*CatalogRepo)(nil)
)

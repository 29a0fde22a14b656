package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
)

var (
	// ErrCatalogNotFound is returned when no catalog has been persisted yet
	ErrCatalogNotFound = errors.New("catalog not found")
)

// SnapshotRepository persists the price snapshot of one platform.
// Every Save replaces the whole persisted snapshot.
type SnapshotRepository interface {
	// Load returns the persisted snapshot, or an empty one if none exists
	Load(ctx context.Context) (*domain.Snapshot, error)

	// Save overwrites the persisted snapshot
	Save(ctx context.Context, snap *domain.Snapshot) error
}

// CatalogRepository persists the token catalog of one platform.
type CatalogRepository interface {
	// Load returns the catalog and when it was saved, ErrCatalogNotFound if absent
	Load(ctx context.Context) (*domain.TokenCatalog, time.Time, error)

	// Save overwrites the catalog
	Save(ctx context.Context, catalog *domain.TokenCatalog) error
}

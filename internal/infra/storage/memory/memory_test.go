package memory

import (
	"testing"

	"github.com/vietddude/pricewatch/internal/infra/storage"
	"github.com/vietddude/pricewatch/internal/infra/storage/storagetest"
)

func TestSnapshotRepo(t *testing.T) {
	stores := map[string]*MemoryStorage{}
	storagetest.RunSnapshotRepositoryTests(t, func(t *testing.T) storage.SnapshotRepository {
		if _, ok := stores[t.Name()]; !ok {
			stores[t.Name()] = NewMemoryStorage()
		}
		return NewSnapshotRepo(stores[t.Name()], "ethereum")
	})
}

func TestCatalogRepo(t *testing.T) {
	stores := map[string]*MemoryStorage{}
	storagetest.RunCatalogRepositoryTests(t, func(t *testing.T) storage.CatalogRepository {
		if _, ok := stores[t.Name()]; !ok {
			stores[t.Name()] = NewMemoryStorage()
		}
		return NewCatalogRepo(stores[t.Name()], "ethereum")
	})
}

func TestPlatformsAreIsolated(t *testing.T) {
	store := NewMemoryStorage()
	eth := NewSnapshotRepo(store, "ethereum")
	arb := NewSnapshotRepo(store, "arbitrum-one")

	if err := eth.Save(t.Context(), storagetest.SampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := arb.Load(t.Context())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Series) != 0 {
		t.Errorf("expected empty snapshot for other platform, got %d series", len(snap.Series))
	}
}

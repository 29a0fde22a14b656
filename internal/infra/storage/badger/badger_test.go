package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
	"github.com/vietddude/pricewatch/internal/infra/storage/storagetest"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSnapshotRepo(t *testing.T) {
	stores := map[string]*Store{}
	storagetest.RunSnapshotRepositoryTests(t, func(t *testing.T) storage.SnapshotRepository {
		if _, ok := stores[t.Name()]; !ok {
			stores[t.Name()] = openMemory(t)
		}
		return NewSnapshotRepo(stores[t.Name()], "ethereum")
	})
}

func TestCatalogRepo(t *testing.T) {
	stores := map[string]*Store{}
	storagetest.RunCatalogRepositoryTests(t, func(t *testing.T) storage.CatalogRepository {
		if _, ok := stores[t.Name()]; !ok {
			stores[t.Name()] = openMemory(t)
		}
		return NewCatalogRepo(stores[t.Name()], "ethereum")
	})
}

func TestSaveLeavesOtherPlatforms(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	eth := NewSnapshotRepo(store, "ethereum")
	base := NewSnapshotRepo(store, "base")

	require.NoError(t, eth.Save(ctx, storagetest.SampleSnapshot()))
	require.NoError(t, base.Save(ctx, domain.NewSnapshot()))

	snap, err := eth.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Series, 3)
	assert.Contains(t, snap.Unpriced, storagetest.TokenC)
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, NewSnapshotRepo(s, "ethereum").Save(ctx, storagetest.SampleSnapshot()))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	snap, err := NewSnapshotRepo(s, "ethereum").Load(ctx)
	require.NoError(t, err)
	ref, ok := snap.Reference()
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_000_000), ref[0].TimestampMs)
}

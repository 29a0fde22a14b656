// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

const (
	TokenA = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	TokenB = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	TokenC = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
)

// SampleSnapshot returns a snapshot with a reference series, two token series
// and one unpriced token.
func SampleSnapshot() *domain.Snapshot {
	snap := domain.NewSnapshot()
	snap.Put(domain.ReferenceKey, domain.PriceSeries{
		{TimestampMs: 1_700_000_000_000, Price: 2050.5},
		{TimestampMs: 1_700_003_600_000, Price: 2061.25},
	})
	snap.Put(TokenA, domain.PriceSeries{
		{TimestampMs: 1_700_000_000_123, Price: 0.000487},
	})
	snap.Put(TokenB, domain.PriceSeries{
		{TimestampMs: 1_700_000_000_000, Price: 1.5},
		{TimestampMs: 1_700_000_000_000, Price: 1.6},
	})
	snap.MarkUnpriced(TokenC, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return snap
}

// SampleCatalog returns a catalog whose order differs from sorted order.
func SampleCatalog() *domain.TokenCatalog {
	c := domain.NewTokenCatalog()
	c.Add(TokenC, "usd-coin-arb")
	c.Add(TokenA, "usd-coin")
	c.Add(TokenB, "weird")
	return c
}

// RunSnapshotRepositoryTests checks Load/Save semantics. newRepo must return
// a repository over empty storage; calling it twice with the same t must
// return repositories over the same storage.
func RunSnapshotRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.SnapshotRepository) {
	t.Run("empty load", func(t *testing.T) {
		repo := newRepo(t)
		snap, err := repo.Load(context.Background())
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Empty(t, snap.Series)
		assert.Empty(t, snap.Unpriced)
		assert.False(t, snap.Has(domain.ReferenceKey))
	})

	t.Run("round trip", func(t *testing.T) {
		repo := newRepo(t)
		want := SampleSnapshot()
		require.NoError(t, repo.Save(context.Background(), want))

		got, err := newRepo(t).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want.Series, got.Series)
		require.Len(t, got.Unpriced, 1)
		assert.True(t, want.Unpriced[TokenC].Equal(got.Unpriced[TokenC]))
	})

	t.Run("save replaces everything", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(context.Background(), SampleSnapshot()))

		next := domain.NewSnapshot()
		next.Put(TokenA, domain.PriceSeries{{TimestampMs: 42, Price: 4.2}})
		require.NoError(t, repo.Save(context.Background(), next))

		got, err := repo.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, got.Series, 1)
		assert.Empty(t, got.Unpriced)
		assert.Equal(t, domain.PriceSeries{{TimestampMs: 42, Price: 4.2}}, got.Series[TokenA])
	})

	t.Run("loaded snapshot is detached", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(context.Background(), SampleSnapshot()))

		got, err := repo.Load(context.Background())
		require.NoError(t, err)
		got.Series[TokenA][0].Price = -1
		got.Put("0x0000000000000000000000000000000000000001", domain.PriceSeries{{TimestampMs: 1, Price: 1}})

		again, err := repo.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0.000487, again.Series[TokenA][0].Price)
		assert.Len(t, again.Series, 3)
	})
}

// RunCatalogRepositoryTests checks catalog persistence and ordering.
func RunCatalogRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.CatalogRepository) {
	t.Run("missing", func(t *testing.T) {
		_, _, err := newRepo(t).Load(context.Background())
		assert.ErrorIs(t, err, storage.ErrCatalogNotFound)
	})

	t.Run("round trip keeps order", func(t *testing.T) {
		repo := newRepo(t)
		before := time.Now().Add(-time.Minute)
		require.NoError(t, repo.Save(context.Background(), SampleCatalog()))

		got, savedAt, err := newRepo(t).Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, SampleCatalog().Entries(), got.Entries())
		assert.True(t, savedAt.After(before), "savedAt %v should be recent", savedAt)
	})

	t.Run("save replaces", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(context.Background(), SampleCatalog()))

		next := domain.NewTokenCatalog()
		next.Add(TokenB, "other")
		require.NoError(t, repo.Save(context.Background(), next))

		got, _, err := repo.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, next.Entries(), got.Entries())
	})
}

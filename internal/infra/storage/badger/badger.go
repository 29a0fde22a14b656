// Package badger stores price snapshots and catalogs in an embedded Badger
// database. Every platform owns the key prefix "<platform>/".
package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

// Store wraps an open Badger database shared by the repositories.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory database.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func seriesPrefix(platform string) string   { return platform + "/series/" }
func unpricedPrefix(platform string) string { return platform + "/unpriced/" }
func catalogKey(platform string) string     { return platform + "/catalog" }

// scan calls fn for every key under prefix with the key suffix and a copy of
// the value.
func (s *Store) scan(prefix string, fn func(suffix string, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(strings.TrimPrefix(string(item.Key()), prefix), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// SnapshotRepo implements storage.SnapshotRepository for one platform.
type SnapshotRepo struct {
	store    *Store
	platform string
}

func NewSnapshotRepo(store *Store, platform string) *SnapshotRepo {
	return &SnapshotRepo{store: store, platform: platform}
}

func (r *SnapshotRepo) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	err := r.store.scan(seriesPrefix(r.platform), func(addr string, val []byte) error {
		series, err := storage.DecodeSeries(val)
		if err != nil {
			return fmt.Errorf("%s: %w", addr, err)
		}
		snap.Series[addr] = series
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}

	err = r.store.scan(unpricedPrefix(r.platform), func(addr string, val []byte) error {
		at, err := storage.DecodeTime(val)
		if err != nil {
			return fmt.Errorf("%s: %w", addr, err)
		}
		snap.Unpriced[addr] = at
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load unpriced: %w", err)
	}

	return snap, nil
}

// Save writes the snapshot in one batch and deletes the platform's keys that
// are no longer part of it.
func (r *SnapshotRepo) Save(ctx context.Context, snap *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var stale []string
	collect := func(prefix string, keep func(string) bool) error {
		return r.store.scan(prefix, func(addr string, _ []byte) error {
			if !keep(addr) {
				stale = append(stale, prefix+addr)
			}
			return nil
		})
	}
	if err := collect(seriesPrefix(r.platform), snap.Has); err != nil {
		return fmt.Errorf("scan series: %w", err)
	}
	if err := collect(unpricedPrefix(r.platform), func(addr string) bool {
		_, ok := snap.Unpriced[addr]
		return ok
	}); err != nil {
		return fmt.Errorf("scan unpriced: %w", err)
	}

	wb := r.store.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete([]byte(key)); err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
	}
	for addr, series := range snap.Series {
		val, err := storage.EncodeSeries(series)
		if err != nil {
			return err
		}
		if err := wb.Set([]byte(seriesPrefix(r.platform)+addr), val); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
	}
	for addr, at := range snap.Unpriced {
		val, err := storage.EncodeTime(at)
		if err != nil {
			return err
		}
		if err := wb.Set([]byte(unpricedPrefix(r.platform)+addr), val); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
	}
	return wb.Flush()
}

// CatalogRepo implements storage.CatalogRepository for one platform.
type CatalogRepo struct {
	store    *Store
	platform string
	now      func() time.Time
}

func NewCatalogRepo(store *Store, platform string) *CatalogRepo {
	return &CatalogRepo{store: store, platform: platform, now: time.Now}
}

func (r *CatalogRepo) Load(ctx context.Context) (*domain.TokenCatalog, time.Time, error) {
	var val []byte
	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(catalogKey(r.platform)))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, time.Time{}, storage.ErrCatalogNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load catalog: %w", err)
	}
	return storage.DecodeCatalog(val)
}

func (r *CatalogRepo) Save(ctx context.Context, catalog *domain.TokenCatalog) error {
	val, err := storage.EncodeCatalog(catalog, r.now())
	if err != nil {
		return err
	}
	return r.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(catalogKey(r.platform)), val)
	})
}

var (
	_ storage.SnapshotRepository = (*SnapshotRepo)(nil)
	_ storage.CatalogRepository  = (*CatalogRepo)(nil)
)

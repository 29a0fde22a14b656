package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

// SnapshotRepo implements storage.SnapshotRepository with two hashes per
// platform, one for series and one for the unpriced negative cache.
type SnapshotRepo struct {
	rdb      *redis.Client
	platform string
}

// NewSnapshotRepo creates a new Redis-backed snapshot repository.
func NewSnapshotRepo(client *Client, platform string) *SnapshotRepo {
	return &SnapshotRepo{rdb: client.rdb, platform: platform}
}

// Load reads both hashes.
func (r *SnapshotRepo) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	series, err := r.rdb.HGetAll(ctx, pricesKey(r.platform)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall prices: %w", err)
	}
	for addr, raw := range series {
		s, err := storage.DecodeSeries([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", addr, err)
		}
		snap.Series[addr] = s
	}

	unpriced, err := r.rdb.HGetAll(ctx, unpricedKey(r.platform)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall unpriced: %w", err)
	}
	for addr, raw := range unpriced {
		t, err := storage.DecodeTime([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("unpriced %s: %w", addr, err)
		}
		snap.Unpriced[addr] = t
	}

	return snap, nil
}

// Save replaces both hashes in one MULTI/EXEC.
func (r *SnapshotRepo) Save(ctx context.Context, snap *domain.Snapshot) error {
	series := make(map[string]any, len(snap.Series))
	for addr, s := range snap.Series {
		data, err := storage.EncodeSeries(s)
		if err != nil {
			return fmt.Errorf("encode series %s: %w", addr, err)
		}
		series[addr] = data
	}
	unpriced := make(map[string]any, len(snap.Unpriced))
	for addr, t := range snap.Unpriced {
		data, err := storage.EncodeTime(t)
		if err != nil {
			return fmt.Errorf("encode unpriced %s: %w", addr, err)
		}
		unpriced[addr] = data
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, pricesKey(r.platform), unpricedKey(r.platform))
		if len(series) > 0 {
			pipe.HSet(ctx, pricesKey(r.platform), series)
		}
		if len(unpriced) > 0 {
			pipe.HSet(ctx, unpricedKey(r.platform), unpriced)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// CatalogRepo implements storage.CatalogRepository with one key per platform.
type CatalogRepo struct {
	rdb      *redis.Client
	platform string
	now      func() time.Time
}

// NewCatalogRepo creates a new Redis-backed catalog repository.
func NewCatalogRepo(client *Client, platform string) *CatalogRepo {
	return &CatalogRepo{rdb: client.rdb, platform: platform, now: time.Now}
}

func (r *CatalogRepo) Load(ctx context.Context) (*domain.TokenCatalog, time.Time, error) {
	data, err := r.rdb.Get(ctx, catalogKey(r.platform)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, storage.ErrCatalogNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("get catalog: %w", err)
	}
	return storage.DecodeCatalog(data)
}

func (r *CatalogRepo) Save(ctx context.Context, catalog *domain.TokenCatalog) error {
	data, err := storage.EncodeCatalog(catalog, r.now())
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, catalogKey(r.platform), data, 0).Err(); err != nil {
		return fmt.Errorf("set catalog: %w", err)
	}
	return nil
}

var (
	_ storage.SnapshotRepository = (*SnapshotRepo)(nil)
	_ storage.CatalogRepository  = (*CatalogRepo)(nil)
)

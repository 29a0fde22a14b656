// Package file stores snapshots and catalogs as indented JSON files under a
// data directory, one set of files per platform:
//
//	coin_list_<platform>.json  address -> market id, in catalog order
//	prices_<platform>.json     address -> [[timestamp_ms, price], ...]
//	unpriced_<platform>.json   address -> time the price API had no data
//
// Files are written to a temporary file and renamed into place.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

// Dir is a data directory holding the JSON files.
type Dir struct {
	path string
}

// NewDir creates the directory if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) catalogPath(platform string) string {
	return filepath.Join(d.path, "coin_list_"+platform+".json")
}

func (d *Dir) pricesPath(platform string) string {
	return filepath.Join(d.path, "prices_"+platform+".json")
}

func (d *Dir) unpricedPath(platform string) string {
	return filepath.Join(d.path, "unpriced_"+platform+".json")
}

// -----------------------------------------------------------------------------
// Snapshot Repository
// -----------------------------------------------------------------------------

type SnapshotRepo struct {
	dir      *Dir
	platform string
}

func NewSnapshotRepo(dir *Dir, platform string) *SnapshotRepo {
	return &SnapshotRepo{dir: dir, platform: platform}
}

func (r *SnapshotRepo) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	if _, err := readJSON(r.dir.pricesPath(r.platform), &snap.Series); err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	if _, err := readJSON(r.dir.unpricedPath(r.platform), &snap.Unpriced); err != nil {
		return nil, fmt.Errorf("load unpriced: %w", err)
	}
	return snap.Normalize(), nil
}

func (r *SnapshotRepo) Save(ctx context.Context, snap *domain.Snapshot) error {
	series := snap.Series
	if series == nil {
		series = map[string]domain.PriceSeries{}
	}
	if err := writeJSON(r.dir.pricesPath(r.platform), series); err != nil {
		return fmt.Errorf("save prices: %w", err)
	}

	if len(snap.Unpriced) == 0 {
		if err := os.Remove(r.dir.unpricedPath(r.platform)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear unpriced: %w", err)
		}
		return nil
	}
	if err := writeJSON(r.dir.unpricedPath(r.platform), snap.Unpriced); err != nil {
		return fmt.Errorf("save unpriced: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Catalog Repository
// -----------------------------------------------------------------------------

type CatalogRepo struct {
	dir      *Dir
	platform string
}

func NewCatalogRepo(dir *Dir, platform string) *CatalogRepo {
	return &CatalogRepo{dir: dir, platform: platform}
}

// Load returns the catalog with the file's modification time.
func (r *CatalogRepo) Load(ctx context.Context) (*domain.TokenCatalog, time.Time, error) {
	catalog := domain.NewTokenCatalog()
	info, err := readJSON(r.dir.catalogPath(r.platform), catalog)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load catalog: %w", err)
	}
	if info == nil {
		return nil, time.Time{}, storage.ErrCatalogNotFound
	}
	return catalog, info.ModTime(), nil
}

func (r *CatalogRepo) Save(ctx context.Context, catalog *domain.TokenCatalog) error {
	if err := writeJSON(r.dir.catalogPath(r.platform), catalog); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

// readJSON decodes path into v. A missing file leaves v untouched and
// returns a nil FileInfo.
func readJSON(path string, v any) (fs.FileInfo, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return info, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var (
	_ storage.SnapshotRepository = (*SnapshotRepo)(nil)
	_ storage.CatalogRepository  = (*CatalogRepo)(nil)
)

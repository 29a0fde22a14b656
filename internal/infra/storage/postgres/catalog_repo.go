package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

type catalogRow struct {
	Platform string `db:"platform"`
	Position int    `db:"position"`
	Address  string `db:"address"`
	MarketID string `db:"market_id"`
}

// CatalogRepo implements storage.CatalogRepository. Row position keeps the
// catalog order.
type CatalogRepo struct {
	db       *DB
	platform string
	now      func() time.Time
}

func NewCatalogRepo(db *DB, platform string) *CatalogRepo {
	return &CatalogRepo{db: db, platform: platform, now: time.Now}
}

func (r *CatalogRepo) Load(ctx context.Context) (*domain.TokenCatalog, time.Time, error) {
	var savedAt time.Time
	err := r.db.GetContext(ctx, &savedAt,
		`SELECT saved_at FROM token_catalog_meta WHERE platform = $1`, r.platform)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, storage.ErrCatalogNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("select token_catalog_meta: %w", err)
	}

	var rows []catalogRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT platform, position, address, market_id FROM token_catalog WHERE platform = $1 ORDER BY position`,
		r.platform,
	); err != nil {
		return nil, time.Time{}, fmt.Errorf("select token_catalog: %w", err)
	}

	catalog := domain.NewTokenCatalog()
	for _, row := range rows {
		catalog.Add(row.Address, row.MarketID)
	}
	return catalog, savedAt, nil
}

func (r *CatalogRepo) Save(ctx context.Context, catalog *domain.TokenCatalog) error {
	rows := make([]catalogRow, 0, catalog.Len())
	for i, e := range catalog.Entries() {
		rows = append(rows, catalogRow{Platform: r.platform, Position: i, Address: e.Address, MarketID: e.MarketID})
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM token_catalog WHERE platform = $1`, r.platform); err != nil {
		return fmt.Errorf("delete token_catalog: %w", err)
	}
	if err := insertChunks(ctx, tx,
		`INSERT INTO token_catalog (platform, position, address, market_id) VALUES (:platform, :position, :address, :market_id)`,
		rows,
	); err != nil {
		return fmt.Errorf("insert token_catalog: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO token_catalog_meta (platform, saved_at) VALUES ($1, $2)
		 ON CONFLICT (platform) DO UPDATE SET saved_at = EXCLUDED.saved_at`,
		r.platform, r.now().UTC(),
	); err != nil {
		return fmt.Errorf("upsert token_catalog_meta: %w", err)
	}

	return tx.Commit()
}

var _ storage.CatalogRepository = (*CatalogRepo)(nil)

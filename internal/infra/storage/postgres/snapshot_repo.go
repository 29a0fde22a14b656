package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/pricewatch/internal/core/domain"
	"github.com/vietddude/pricewatch/internal/infra/storage"
)

// insertBatch keeps bulk inserts well below the bind parameter limit.
const insertBatch = 1000

type seriesRow struct {
	Platform string `db:"platform"`
	Address  string `db:"address"`
	Samples  string `db:"samples"`
}

type unpricedRow struct {
	Platform string    `db:"platform"`
	Address  string    `db:"address"`
	MarkedAt time.Time `db:"marked_at"`
}

// SnapshotRepo implements storage.SnapshotRepository on the price_series and
// unpriced_tokens tables.
type SnapshotRepo struct {
	db       *DB
	platform string
}

func NewSnapshotRepo(db *DB, platform string) *SnapshotRepo {
	return &SnapshotRepo{db: db, platform: platform}
}

func (r *SnapshotRepo) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	var rows []seriesRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT platform, address, samples::text AS samples FROM price_series WHERE platform = $1`,
		r.platform,
	); err != nil {
		return nil, fmt.Errorf("select price_series: %w", err)
	}
	for _, row := range rows {
		var s domain.PriceSeries
		if err := json.Unmarshal([]byte(row.Samples), &s); err != nil {
			return nil, fmt.Errorf("series %s: %w", row.Address, err)
		}
		snap.Series[row.Address] = s
	}

	var unpriced []unpricedRow
	if err := r.db.SelectContext(ctx, &unpriced,
		`SELECT platform, address, marked_at FROM unpriced_tokens WHERE platform = $1`,
		r.platform,
	); err != nil {
		return nil, fmt.Errorf("select unpriced_tokens: %w", err)
	}
	for _, row := range unpriced {
		snap.Unpriced[row.Address] = row.MarkedAt
	}

	return snap, nil
}

// Save replaces the platform's rows inside one transaction.
func (r *SnapshotRepo) Save(ctx context.Context, snap *domain.Snapshot) error {
	series := make([]seriesRow, 0, len(snap.Series))
	for addr, s := range snap.Series {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode series %s: %w", addr, err)
		}
		series = append(series, seriesRow{Platform: r.platform, Address: addr, Samples: string(data)})
	}
	unpriced := make([]unpricedRow, 0, len(snap.Unpriced))
	for addr, t := range snap.Unpriced {
		unpriced = append(unpriced, unpricedRow{Platform: r.platform, Address: addr, MarkedAt: t.UTC()})
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM price_series WHERE platform = $1`, r.platform); err != nil {
		return fmt.Errorf("delete price_series: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM unpriced_tokens WHERE platform = $1`, r.platform); err != nil {
		return fmt.Errorf("delete unpriced_tokens: %w", err)
	}

	if err := insertChunks(ctx, tx,
		`INSERT INTO price_series (platform, address, samples) VALUES (:platform, :address, CAST(:samples AS jsonb))`,
		series,
	); err != nil {
		return fmt.Errorf("insert price_series: %w", err)
	}
	if err := insertChunks(ctx, tx,
		`INSERT INTO unpriced_tokens (platform, address, marked_at) VALUES (:platform, :address, :marked_at)`,
		unpriced,
	); err != nil {
		return fmt.Errorf("insert unpriced_tokens: %w", err)
	}

	return tx.Commit()
}

func insertChunks[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	for start := 0; start < len(rows); start += insertBatch {
		chunk := rows[start:min(start+insertBatch, len(rows))]
		if _, err := tx.NamedExecContext(ctx, query, chunk); err != nil {
			return err
		}
	}
	return nil
}

var _ storage.SnapshotRepository = (*SnapshotRepo)(nil)

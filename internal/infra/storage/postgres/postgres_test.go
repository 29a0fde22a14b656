package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/vietddude/pricewatch/internal/infra/storage"
	"github.com/vietddude/pricewatch/internal/infra/storage/storagetest"
)

// These tests need a reachable database; set DATABASE_URL and optionally
// DATABASE_DRIVER (postgres or pgx).
func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := NewDB(context.Background(), Config{URL: url, Driver: os.Getenv("DATABASE_DRIVER")})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func platformFor(t *testing.T, db *DB, names map[string]string) string {
	if p, ok := names[t.Name()]; ok {
		return p
	}
	p := "test-" + uuid.NewString()
	names[t.Name()] = p
	t.Cleanup(func() {
		ctx := context.Background()
		for _, table := range []string{"price_series", "unpriced_tokens", "token_catalog", "token_catalog_meta"} {
			db.ExecContext(ctx, "DELETE FROM "+table+" WHERE platform = $1", p)
		}
	})
	return p
}

func TestSnapshotRepo(t *testing.T) {
	db := newTestDB(t)
	names := map[string]string{}
	storagetest.RunSnapshotRepositoryTests(t, func(t *testing.T) storage.SnapshotRepository {
		return NewSnapshotRepo(db, platformFor(t, db, names))
	})
}

func TestCatalogRepo(t *testing.T) {
	db := newTestDB(t)
	names := map[string]string{}
	storagetest.RunCatalogRepositoryTests(t, func(t *testing.T) storage.CatalogRepository {
		return NewCatalogRepo(db, platformFor(t, db, names))
	})
}

func TestNewDB_RejectsUnknownDriver(t *testing.T) {
	_, err := NewDB(context.Background(), Config{URL: "postgres://localhost/x", Driver: "mysql"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one migration")
	}
}

package store_test

import (
	"context"
	"io"
	"io/fs"
	"log"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/watchvault/db"
	"github.com/Clark-Hu/watchvault/internal/store"
	"github.com/Clark-Hu/watchvault/internal/store/storetest"
)

func appliedVersion(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	var version int64
	err := pool.QueryRow(context.Background(),
		`SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied`).Scan(&version)
	if err != nil {
		t.Fatalf("read goose version: %v", err)
	}
	return version
}

func tableExists(t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	if err := pool.QueryRow(context.Background(), `SELECT to_regclass($1) IS NOT NULL`, "public."+name).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	pool := storetest.NewPool(t, "store_test")
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	if err := store.ApplyMigrations(ctx, pool, db.Migrations, "migrations", logger); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if got := appliedVersion(t, pool); got != 1 {
		t.Fatalf("version = %d, want 1", got)
	}
	if !tableExists(t, pool, "vault_entries") {
		t.Fatalf("vault_entries table missing")
	}
}

func TestRollbackMigrationRunsDown(t *testing.T) {
	pool := storetest.NewPool(t, "store_down_test")
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	if err := store.RollbackMigration(ctx, pool, db.Migrations, "migrations", logger); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if tableExists(t, pool, "vault_entries") {
		t.Fatalf("vault_entries should be dropped")
	}
	if got := appliedVersion(t, pool); got != 0 {
		t.Fatalf("version after rollback = %d, want 0", got)
	}

	if err := store.ApplyMigrations(ctx, pool, db.Migrations, "migrations", logger); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if !tableExists(t, pool, "vault_entries") {
		t.Fatalf("vault_entries missing after reapply")
	}
}

func TestApplyMigrationsRollsBackFailures(t *testing.T) {
	pool := storetest.NewPool(t, "store_fail_test")
	ctx := context.Background()

	initial, err := fs.ReadFile(db.Migrations, "migrations/00001_vault_entries.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	broken := "-- +goose Up\nCREATE TABLE broken_one (id INT);\nSELECT * FROM missing_table;\n\n-- +goose Down\nDROP TABLE broken_one;\n"
	fsys := fstest.MapFS{
		"extra/00001_vault_entries.sql": {Data: initial},
		"extra/00002_broken.sql":        {Data: []byte(broken)},
	}
	if err := store.ApplyMigrations(ctx, pool, fsys, "extra", log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("expected broken migration to fail")
	}

	if got := appliedVersion(t, pool); got != 1 {
		t.Fatalf("version = %d, failed migration must not be recorded", got)
	}
	if tableExists(t, pool, "broken_one") {
		t.Fatalf("partial migration was not rolled back")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := store.New(context.Background(), "://bad", store.Options{Logger: log.New(io.Discard, "", 0)}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var st *store.Store
	st.Close()
	if st.Stats() != nil {
		t.Fatalf("expected nil stats")
	}
	if err := st.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected error from nil store")
	}
}

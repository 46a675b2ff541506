package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSchemaMigrationsDeclareInvariants(t *testing.T) {
	checks := map[string][]string{
		"*_create_catalog_tables.sql": {
			"CREATE TABLE IF NOT EXISTS products",
			"CREATE TABLE IF NOT EXISTS product_variants",
			"stock integer NOT NULL DEFAULT 0 CHECK (stock >= 0)",
		},
		"*_create_coupons_table.sql": {
			"CONSTRAINT coupons_code_key UNIQUE (code)",
			"CHECK (ends_at > starts_at)",
		},
		"*_create_carts_tables.sql": {
			"CONSTRAINT carts_user_id_key UNIQUE (user_id)",
			"quantity integer NOT NULL CHECK (quantity >= 1)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_items_line_key",
		},
		"*_create_orders_tables.sql": {
			"CONSTRAINT orders_checkout_session_id_key UNIQUE (checkout_session_id)",
			"CREATE TABLE IF NOT EXISTS order_items",
		},
		"*_create_outbox_tables.sql": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}

	for pattern, subs := range checks {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob %s: %v", pattern, err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read %s: %v", matches[0], err)
		}
		for _, sub := range subs {
			if !strings.Contains(string(data), sub) {
				t.Errorf("%s missing %q", matches[0], sub)
			}
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations failed validation: %v", err)
	}
	if err := ValidateFS(Embedded(), embeddedDir); err != nil {
		t.Fatalf("embedded migrations failed validation: %v", err)
	}
}

func TestCreateSQLMigrationProducesValidFile(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Order Notes!")
	if err != nil {
		t.Fatalf("CreateSQLMigration returned error: %v", err)
	}
	if !strings.HasSuffix(path, "_add_order_notes.sql") {
		t.Fatalf("unexpected sanitized filename %q", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration failed validation: %v", err)
	}
}

func TestCreateSQLMigrationSortsAfterExistingFiles(t *testing.T) {
	dir := t.TempDir()
	seeded := filepath.Join(dir, "20260301100400_create_outbox_tables.sql")
	if err := os.WriteFile(seeded, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	clock := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	path, err := createSQLMigration(dir, "add refunds", clock)
	if err != nil {
		t.Fatalf("createSQLMigration: %v", err)
	}
	if filepath.Base(path) != "20260301100401_add_refunds.sql" {
		t.Fatalf("expected version after seeded file, got %q", filepath.Base(path))
	}

	if _, err := createSQLMigration(dir, "!!!", clock); err == nil {
		t.Fatal("expected unusable name to fail")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to be rejected")
	}
}

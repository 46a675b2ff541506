// Package dbtest opens isolated in-memory sqlite databases carrying the same
// tables and constraints as the Postgres migrations.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"

	"github.com/angelmondragon/marketplace-checkout/pkg/db"
)

var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		name TEXT NOT NULL,
		base_price_cents INTEGER NOT NULL CHECK (base_price_cents >= 0),
		price_cents INTEGER NOT NULL CHECK (price_cents >= 0),
		discount_percent NUMERIC NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE product_variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		base_price_cents INTEGER NOT NULL CHECK (base_price_cents >= 0),
		price_cents INTEGER NOT NULL CHECK (price_cents >= 0),
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		issuer_id TEXT NOT NULL,
		discount_cents INTEGER NOT NULL CHECK (discount_cents > 0),
		min_cart_price_cents INTEGER NOT NULL DEFAULT 0,
		min_items INTEGER NOT NULL DEFAULT 0,
		auto_apply BOOLEAN NOT NULL DEFAULT 0,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE carts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		delivery_address TEXT,
		coupon_code TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		position INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_cart_items_line_key ON cart_items (cart_id, product_id, COALESCE(variant_id, ''))`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		total_quantity INTEGER NOT NULL,
		subtotal_cents INTEGER NOT NULL,
		discount_cents INTEGER NOT NULL DEFAULT 0,
		total_cents INTEGER NOT NULL CHECK (total_cents >= 0),
		currency TEXT NOT NULL,
		delivery_address TEXT NOT NULL,
		coupon_code TEXT,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		fulfillment_status TEXT NOT NULL,
		checkout_session_id TEXT UNIQUE,
		paid_at DATETIME,
		shipped_at DATETIME,
		delivered_at DATETIME,
		cancelled_at DATETIME,
		refunded_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		variant_id TEXT,
		seller_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		variant_name TEXT,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		unit_price_cents INTEGER NOT NULL,
		line_total_cents INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a client on a fresh shared-cache in-memory database with the
// full schema applied. A single connection keeps every statement on the same
// database, so callers inside WithTx must only use the tx handle.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	client, err := db.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := client.DB().Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return client
}

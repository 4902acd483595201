// Package dbtest opens in-memory sqlite databases carrying the settlement
// schema for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE catalog_items (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  title TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
  is_active INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE cart_items (
  buyer_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  created_at DATETIME,
  updated_at DATETIME,
  PRIMARY KEY (buyer_id, item_id)
);`,
	`CREATE TABLE vendor_settlement_configs (
  vendor_id TEXT PRIMARY KEY,
  method TEXT NOT NULL DEFAULT 'manual',
  gateway_key_id TEXT,
  gateway_key_secret TEXT,
  gateway_webhook_secret TEXT,
  gateway_enabled INTEGER NOT NULL DEFAULT 1,
  payout_account_name TEXT,
  payout_account_number TEXT,
  payout_bank_code TEXT,
  payout_notes TEXT,
  commission_percent TEXT NOT NULL DEFAULT '10',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  shipping_address TEXT NOT NULL,
  phone_number TEXT NOT NULL,
  notes TEXT,
  total_cents INTEGER NOT NULL,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  payment_id TEXT,
  gateway_order_id TEXT,
  gateway_payment_id TEXT,
  gateway_signature TEXT,
  settlement_vendor_id TEXT,
  settlement_key_id TEXT,
  admin_settled INTEGER NOT NULL DEFAULT 0,
  admin_settled_at DATETIME,
  admin_settled_by TEXT,
  admin_notes TEXT,
  checked_out_at DATETIME,
  paid_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (status <> 'paid' OR payment_status = 'paid')
);`,
	`CREATE UNIQUE INDEX ux_orders_open_buyer ON orders (buyer_id) WHERE status IN ('draft', 'pending_payment');`,
	`CREATE TABLE fulfillment_units (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  total_price_cents INTEGER NOT NULL,
  status TEXT NOT NULL,
  payment_id TEXT,
  gateway_order_id TEXT,
  gateway_payment_id TEXT,
  commission_cents INTEGER NOT NULL DEFAULT 0,
  payout_cents INTEGER NOT NULL DEFAULT 0,
  stock_shortfall INTEGER NOT NULL DEFAULT 0,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_fulfillment_units_order_vendor_item ON fulfillment_units (order_id, vendor_id, item_id);`,
	`CREATE TABLE superseded_gateway_orders (
  gateway_order_id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  settlement_vendor_id TEXT,
  superseded_at DATETIME
);`,
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
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  topic TEXT,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a fresh named in-memory database with the settlement schema.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:settle_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// a single connection keeps the shared in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

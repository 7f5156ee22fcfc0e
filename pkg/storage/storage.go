package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type DB struct {
	sql *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
  label          TEXT PRIMARY KEY,
  stockcode      INTEGER NOT NULL,
  product_name   TEXT NOT NULL,
  brand          TEXT,
  package_size   TEXT,
  last_price     TEXT NOT NULL DEFAULT '0',
  source         TEXT NOT NULL CHECK (source IN ('explicit','inferred','purchase')),
  confidence     REAL NOT NULL DEFAULT 0,
  purchase_count INTEGER NOT NULL DEFAULT 0,
  updated_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS lists (
  id             INTEGER PRIMARY KEY,
  name           TEXT NOT NULL,
  status         TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','purchased','archived')),
  total_estimate TEXT NOT NULL DEFAULT '0',
  created_at     TEXT NOT NULL,
  updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lists_status ON lists(status, created_at);
CREATE TABLE IF NOT EXISTS list_items (
  id           INTEGER PRIMARY KEY,
  list_id      INTEGER NOT NULL,
  label        TEXT NOT NULL,
  quantity     INTEGER NOT NULL DEFAULT 1,
  unit         TEXT,
  stockcode    INTEGER,
  product_name TEXT,
  brand        TEXT,
  price        TEXT NOT NULL DEFAULT '0',
  on_special   INTEGER NOT NULL DEFAULT 0 CHECK (on_special IN (0,1)),
  status       TEXT NOT NULL DEFAULT 'unresolved' CHECK (status IN ('unresolved','auto-resolved','ambiguous','user-confirmed'))
);
CREATE INDEX IF NOT EXISTS idx_list_items_list ON list_items(list_id);
CREATE TABLE IF NOT EXISTS orders (
  id             INTEGER PRIMARY KEY,
  list_id        INTEGER,
  total_estimate TEXT NOT NULL,
  total_paid     TEXT,
  item_count     INTEGER NOT NULL,
  store          TEXT NOT NULL,
  notes          TEXT,
  completed_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_completed ON orders(completed_at);
CREATE TABLE IF NOT EXISTS order_items (
  id           INTEGER PRIMARY KEY,
  order_id     INTEGER NOT NULL,
  label        TEXT NOT NULL,
  stockcode    INTEGER NOT NULL,
  product_name TEXT NOT NULL,
  brand        TEXT,
  quantity     INTEGER NOT NULL,
  unit_price   TEXT NOT NULL,
  on_special   INTEGER NOT NULL DEFAULT 0 CHECK (on_special IN (0,1))
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
CREATE TABLE IF NOT EXISTS price_history (
  id           INTEGER PRIMARY KEY,
  stockcode    INTEGER NOT NULL,
  product_name TEXT NOT NULL,
  price        TEXT NOT NULL,
  on_special   INTEGER NOT NULL DEFAULT 0 CHECK (on_special IN (0,1)),
  recorded_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_code ON price_history(stockcode, recorded_at);
CREATE TABLE IF NOT EXISTS search_cache (
  cache_key  TEXT PRIMARY KEY,
  payload    TEXT NOT NULL,
  fetched_at TEXT NOT NULL
);
`

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{sql: db, now: time.Now}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullIfEmpty(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullIfZero(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

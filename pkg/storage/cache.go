package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
)

// SearchCache persists catalog answers in the search_cache table.
type SearchCache struct {
	db *DB
}

var _ catalog.Cache = (*SearchCache)(nil)

func (d *DB) SearchCache() *SearchCache {
	return &SearchCache{db: d}
}

func (c *SearchCache) Get(ctx context.Context, key string) (catalog.Entry, bool, error) {
	var payload, fetched string
	err := c.db.sql.QueryRowContext(ctx, "SELECT payload, fetched_at FROM search_cache WHERE cache_key = ?", key).Scan(&payload, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Entry{}, false, nil
	}
	if err != nil {
		return catalog.Entry{}, false, err
	}
	var products []grocery.Product
	if err := json.Unmarshal([]byte(payload), &products); err != nil {
		return catalog.Entry{}, false, err
	}
	return catalog.Entry{Products: products, FetchedAt: parseTime(fetched)}, true, nil
}

func (c *SearchCache) Put(ctx context.Context, key string, e catalog.Entry) error {
	payload, err := json.Marshal(e.Products)
	if err != nil {
		return err
	}
	_, err = c.db.sql.ExecContext(ctx, `INSERT INTO search_cache(cache_key, payload, fetched_at) VALUES(?,?,?)
ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, string(payload), formatTime(e.FetchedAt))
	return err
}

// Prune drops entries fetched before cutoff and reports how many went.
func (c *SearchCache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.sql.ExecContext(ctx, "DELETE FROM search_cache WHERE fetched_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

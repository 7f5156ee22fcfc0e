package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/trolleyctl/trolley/pkg/grocery"
)

// Entry is one cached provider answer.
type Entry struct {
	Products  []grocery.Product
	FetchedAt time.Time
}

// Cache persists provider answers across calls. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return nil
}

// SearchKey identifies a search by its normalized text plus a hash of
// the filters that change the answer.
func SearchKey(q Query) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%t",
		grocery.NormalizeLabel(q.Brand), grocery.Fold(q.Size), q.Sort, q.Limit, q.SpecialsOnly)))
	return "search:" + grocery.NormalizeLabel(q.Text) + ":" + hex.EncodeToString(h[:8])
}

func ProductKey(stockcode int64) string {
	return "product:" + strconv.FormatInt(stockcode, 10)
}

func specialsKey(limit int) string {
	return "specials:" + strconv.Itoa(limit)
}

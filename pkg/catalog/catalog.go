package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/stores"
)

// ErrUnavailable is returned when the provider failed transiently and no
// cached answer young enough to serve exists. The underlying
// stores.ErrTimeout or stores.ErrTransport stays matchable with errors.Is.
var ErrUnavailable = errors.New("catalog unavailable")

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// NopLogger silently discards all messages.
type NopLogger struct{}

func (NopLogger) Infof(string, ...interface{})  {}
func (NopLogger) Warnf(string, ...interface{})  {}
func (NopLogger) Errorf(string, ...interface{}) {}
func (NopLogger) Debugf(string, ...interface{}) {}

type Config struct {
	Rate        int
	Period      time.Duration
	Timeout     time.Duration
	SearchTTL   time.Duration
	ProductTTL  time.Duration
	SpecialsTTL time.Duration
	StaleBound  time.Duration
	PageSize    int
}

func DefaultConfig() Config {
	return Config{
		Rate:        5,
		Period:      time.Second,
		Timeout:     10 * time.Second,
		SearchTTL:   time.Hour,
		ProductTTL:  24 * time.Hour,
		SpecialsTTL: 4 * time.Hour,
		StaleBound:  24 * time.Hour,
		PageSize:    20,
	}
}

type Query struct {
	Text         string
	Brand        string
	Size         string
	Sort         string
	Limit        int
	SpecialsOnly bool
}

// Term is the free-text search term sent to the store.
func (q Query) Term() string {
	var parts []string
	for _, p := range []string{q.Brand, q.Text, q.Size} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type SearchResult struct {
	Query     Query
	Products  []grocery.Product
	FetchedAt time.Time
	FromCache bool
	// Stale is set when the provider failed and an expired cache entry
	// was served instead.
	Stale bool
}

// Layer mediates every call to a store provider: it rate limits, applies
// per-call timeouts and serves cached answers when the provider is down.
type Layer struct {
	provider stores.Provider
	cache    Cache
	limiter  *Limiter
	cfg      Config
	log      Logger
	now      func() time.Time
}

type Option func(*Layer)

func WithCache(c Cache) Option { return func(l *Layer) { l.cache = c } }

func WithConfig(cfg Config) Option { return func(l *Layer) { l.cfg = cfg } }

func WithLogger(log Logger) Option { return func(l *Layer) { l.log = log } }

// WithLimiter shares a limiter between layers talking to the same store.
func WithLimiter(lim *Limiter) Option { return func(l *Layer) { l.limiter = lim } }

func WithClock(now func() time.Time) Option { return func(l *Layer) { l.now = now } }

func New(p stores.Provider, opts ...Option) *Layer {
	l := &Layer{
		provider: p,
		cfg:      DefaultConfig(),
		log:      NopLogger{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.cache == nil {
		l.cache = NewMemoryCache()
	}
	if l.limiter == nil {
		l.limiter = NewLimiter(l.cfg.Rate, l.cfg.Period)
	}
	return l
}

func (l *Layer) Store() string { return l.provider.Name() }

// call waits for admission and then runs fn under a fresh timeout, so time
// spent queued never eats into the call's own budget.
func (l *Layer) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	cctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	err := fn(cctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return stores.Classify(op, err)
}

func (l *Layer) key(k string) string {
	return l.provider.Name() + "/" + k
}

func (l *Layer) cached(ctx context.Context, key string) (Entry, bool) {
	e, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.log.Warnf("Cache read for %s failed: %v", key, err)
		return Entry{}, false
	}
	return e, ok
}

func (l *Layer) store(ctx context.Context, key string, e Entry) {
	if err := l.cache.Put(ctx, key, e); err != nil {
		l.log.Warnf("Cache write for %s failed: %v", key, err)
	}
}

// fallback decides what a failed provider call turns into: a stale entry
// when the failure is transient and the entry is within the staleness
// bound, otherwise an error.
func (l *Layer) fallback(key string, e Entry, ok bool, err error) (Entry, error) {
	if !stores.IsTransient(err) {
		return Entry{}, err
	}
	if ok {
		age := l.now().Sub(e.FetchedAt)
		if age <= l.cfg.StaleBound {
			l.log.Warnf("Serving %s from cache (%s old): %v", key, age.Round(time.Second), err)
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (l *Layer) stamp(products []grocery.Product, at time.Time) {
	for i := range products {
		products[i].SeenAt = at
		if products[i].Store == "" {
			products[i].Store = l.provider.Name()
		}
	}
}

// Search returns candidate products for q.
func (l *Layer) Search(ctx context.Context, q Query) (SearchResult, error) {
	if q.Limit <= 0 {
		q.Limit = l.cfg.PageSize
	}
	key := l.key(SearchKey(q))
	entry, ok := l.cached(ctx, key)
	if ok && l.now().Sub(entry.FetchedAt) < l.cfg.SearchTTL {
		l.log.Debugf("Search %q served from cache", q.Term())
		return SearchResult{Query: q, Products: entry.Products, FetchedAt: entry.FetchedAt, FromCache: true}, nil
	}

	req := stores.SearchRequest{Term: q.Term(), PageSize: q.Limit, Sort: q.Sort, SpecialsOnly: q.SpecialsOnly}
	var products []grocery.Product
	err := l.call(ctx, "search", func(ctx context.Context) error {
		var err error
		products, err = l.provider.Search(ctx, req)
		return err
	})
	if err != nil {
		stale, ferr := l.fallback(key, entry, ok, err)
		if ferr != nil {
			return SearchResult{Query: q}, fmt.Errorf("search %q: %w", q.Term(), ferr)
		}
		return SearchResult{Query: q, Products: stale.Products, FetchedAt: stale.FetchedAt, FromCache: true, Stale: true}, nil
	}

	now := l.now()
	l.stamp(products, now)
	l.store(ctx, key, Entry{Products: products, FetchedAt: now})
	return SearchResult{Query: q, Products: products, FetchedAt: now}, nil
}

// Lookup fetches a single product by stockcode. stores.ErrNotFound is
// passed through so callers can drop references to vanished products.
func (l *Layer) Lookup(ctx context.Context, stockcode int64) (grocery.Product, error) {
	key := l.key(ProductKey(stockcode))
	entry, ok := l.cached(ctx, key)
	ok = ok && len(entry.Products) == 1
	if ok && l.now().Sub(entry.FetchedAt) < l.cfg.ProductTTL {
		return entry.Products[0], nil
	}

	var p grocery.Product
	err := l.call(ctx, "product", func(ctx context.Context) error {
		var err error
		p, err = l.provider.ProductDetails(ctx, stockcode)
		return err
	})
	if err != nil {
		stale, ferr := l.fallback(key, entry, ok, err)
		if ferr != nil {
			return grocery.Product{}, fmt.Errorf("product %d: %w", stockcode, ferr)
		}
		return stale.Products[0], nil
	}

	now := l.now()
	products := []grocery.Product{p}
	l.stamp(products, now)
	l.store(ctx, key, Entry{Products: products, FetchedAt: now})
	return products[0], nil
}

// Specials lists products currently on special.
func (l *Layer) Specials(ctx context.Context, limit int) ([]grocery.Product, error) {
	if limit <= 0 {
		limit = l.cfg.PageSize
	}
	key := l.key(specialsKey(limit))
	entry, ok := l.cached(ctx, key)
	if ok && l.now().Sub(entry.FetchedAt) < l.cfg.SpecialsTTL {
		return entry.Products, nil
	}

	var products []grocery.Product
	err := l.call(ctx, "specials", func(ctx context.Context) error {
		var err error
		products, err = l.provider.Specials(ctx, limit)
		return err
	})
	if err != nil {
		stale, ferr := l.fallback(key, entry, ok, err)
		if ferr != nil {
			return nil, fmt.Errorf("specials: %w", ferr)
		}
		return stale.Products, nil
	}

	now := l.now()
	l.stamp(products, now)
	l.store(ctx, key, Entry{Products: products, FetchedAt: now})
	return products, nil
}

// AddToCart is never cached or retried from cache.
func (l *Layer) AddToCart(ctx context.Context, stockcode int64, quantity int) error {
	return l.call(ctx, "add to cart", func(ctx context.Context) error {
		return l.provider.AddToCart(ctx, stockcode, quantity)
	})
}

func (l *Layer) CurrentCart(ctx context.Context) (grocery.CartSnapshot, error) {
	var snap grocery.CartSnapshot
	err := l.call(ctx, "cart", func(ctx context.Context) error {
		var err error
		snap, err = l.provider.Cart(ctx)
		return err
	})
	if err != nil {
		return grocery.CartSnapshot{}, err
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = l.now()
	}
	return snap, nil
}

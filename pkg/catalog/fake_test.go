package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/stores"
)

// fakeProvider is a scriptable stores.Provider.
type fakeProvider struct {
	mu        sync.Mutex
	products  []grocery.Product
	err       error
	searches  int
	lookups   int
	deadlines []time.Duration
	block     bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Authenticate(context.Context, stores.AuthConfig) error { return nil }

func (f *fakeProvider) record(ctx context.Context) error {
	f.mu.Lock()
	if dl, ok := ctx.Deadline(); ok {
		f.deadlines = append(f.deadlines, time.Until(dl))
	}
	block, err := f.block, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeProvider) Search(ctx context.Context, _ stores.SearchRequest) ([]grocery.Product, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	out := make([]grocery.Product, len(f.products))
	copy(out, f.products)
	return out, nil
}

func (f *fakeProvider) ProductDetails(ctx context.Context, code int64) (grocery.Product, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()
	if err := f.record(ctx); err != nil {
		return grocery.Product{}, err
	}
	for _, p := range f.products {
		if p.Stockcode == code {
			return p, nil
		}
	}
	return grocery.Product{}, stores.Fail(stores.KindNotFound, "product", nil)
}

func (f *fakeProvider) AddToCart(ctx context.Context, _ int64, _ int) error { return f.record(ctx) }

func (f *fakeProvider) Cart(ctx context.Context) (grocery.CartSnapshot, error) {
	return grocery.CartSnapshot{}, f.record(ctx)
}

func (f *fakeProvider) Specials(ctx context.Context, _ int) ([]grocery.Product, error) {
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	return f.products, nil
}

func (f *fakeProvider) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func milk() grocery.Product {
	return grocery.Product{Stockcode: 123456, Name: "Woolworths Full Cream Milk 2L", Price: decimal.RequireFromString("3.10"), Available: true}
}

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

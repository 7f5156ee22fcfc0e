// Package cart pushes resolved list items into the store's trolley.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/stores"
)

// Adder adds products to the trolley; catalog.Layer satisfies it.
type Adder interface {
	AddToCart(ctx context.Context, stockcode int64, quantity int) error
}

// Item is one list line to put in the cart.
type Item struct {
	Label    string
	Quantity int
	Status   grocery.Status
	Product  *grocery.Product
	ListItem int64
}

// FromListItem builds an Item from a stored list line.
func FromListItem(li grocery.ListItem) Item {
	it := Item{Label: li.Label, Quantity: li.Quantity, Status: li.Status, ListItem: li.ID}
	if li.Stockcode != 0 {
		it.Product = &grocery.Product{
			Stockcode: li.Stockcode,
			Name:      li.ProductName,
			Brand:     li.Brand,
			Price:     li.Price,
			OnSpecial: li.OnSpecial,
			Available: true,
		}
	}
	return it
}

type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomePreview Outcome = "preview"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result is what happened to one Item.
type Result struct {
	Item    Item
	Outcome Outcome
	Reason  string
	Err     error
}

// LineTotal is the estimated price of the result's product times quantity.
func (r Result) LineTotal() decimal.Decimal {
	if r.Item.Product == nil {
		return decimal.Zero
	}
	return r.Item.Product.Price.Mul(decimal.NewFromInt(int64(r.Item.Quantity)))
}

type Report struct {
	RunID          string
	Confirmed      bool
	Results        []Result
	Added          int
	Previewed      int
	Skipped        int
	Failed         int
	EstimatedTotal decimal.Decimal
	StartedAt      time.Time
	Duration       time.Duration
}

// PartialFailure reports whether some items failed while others went in.
func (r Report) PartialFailure() bool {
	return r.Failed > 0 && r.Added > 0
}

// NeedsReauth reports whether any failure was an expired session.
func (r Report) NeedsReauth() bool {
	for _, res := range r.Results {
		if errors.Is(res.Err, stores.ErrAuthExpired) {
			return true
		}
	}
	return false
}

// Errors returns the failures in input order.
func (r Report) Errors() []error {
	var out []error
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}

type Builder struct {
	cart        Adder
	concurrency int
	log         catalog.Logger
	now         func() time.Time
}

type Option func(*Builder)

// WithConcurrency bounds parallel adds. 1 adds items one at a time.
func WithConcurrency(n int) Option { return func(b *Builder) { b.concurrency = n } }

func WithLogger(log catalog.Logger) Option { return func(b *Builder) { b.log = log } }

func WithClock(now func() time.Time) Option { return func(b *Builder) { b.now = now } }

func NewBuilder(cart Adder, opts ...Option) *Builder {
	b := &Builder{cart: cart, concurrency: 1, log: catalog.NopLogger{}, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	if b.concurrency < 1 {
		b.concurrency = 1
	}
	return b
}

// Build adds every resolved item when confirm is set and previews them
// otherwise. One item failing never stops the others.
func (b *Builder) Build(ctx context.Context, items []Item, confirm bool) Report {
	rep := Report{
		RunID:     uuid.NewString(),
		Confirmed: confirm,
		Results:   make([]Result, len(items)),
		StartedAt: b.now(),
	}
	b.log.Debugf("Cart run %s: %d item(s), confirm=%v", rep.RunID, len(items), confirm)

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, it := range items {
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		res := &rep.Results[i]
		res.Item = it

		if reason := skipReason(it); reason != "" {
			res.Outcome = OutcomeSkipped
			res.Reason = reason
			continue
		}
		if !confirm {
			res.Outcome = OutcomePreview
			continue
		}
		g.Go(func() error {
			b.add(ctx, rep.RunID, res)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range rep.Results {
		switch res.Outcome {
		case OutcomeAdded:
			rep.Added++
		case OutcomePreview:
			rep.Previewed++
		case OutcomeSkipped:
			rep.Skipped++
		case OutcomeFailed:
			rep.Failed++
		}
		if res.Outcome == OutcomeAdded || res.Outcome == OutcomePreview {
			rep.EstimatedTotal = rep.EstimatedTotal.Add(res.LineTotal())
		}
	}
	rep.Duration = b.now().Sub(rep.StartedAt)
	return rep
}

func (b *Builder) add(ctx context.Context, runID string, res *Result) {
	it := res.Item
	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("add %q: %w", it.Label, err)
		return
	}
	if err := b.cart.AddToCart(ctx, it.Product.Stockcode, it.Quantity); err != nil {
		b.log.Warnf("Cart run %s: could not add %q (%d): %v", runID, it.Label, it.Product.Stockcode, err)
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("add %q: %w", it.Label, err)
		return
	}
	res.Outcome = OutcomeAdded
}

func skipReason(it Item) string {
	switch {
	case it.Status == grocery.StatusAmbiguous:
		return "ambiguous, pick a product first"
	case !it.Status.Resolved():
		return "unresolved"
	case it.Product == nil || it.Product.Stockcode == 0:
		return "no product"
	}
	return ""
}

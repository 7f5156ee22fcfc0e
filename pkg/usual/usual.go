// Package usual derives the user's regular shop from recent orders.
package usual

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/storage"
)

// Source is what the generator reads from; *storage.DB satisfies it.
type Source interface {
	Orders(ctx context.Context, q storage.OrderQuery) ([]grocery.OrderRecord, error)
	GetPreference(ctx context.Context, label string) (grocery.Preference, error)
}

type Options struct {
	// MinFrequency is the number of distinct orders a label must appear in.
	MinFrequency int
	// Lookback is how many recent orders are considered.
	Lookback int
	Exclude  []string
}

func DefaultOptions() Options {
	return Options{MinFrequency: 3, Lookback: 10}
}

// Item is one label the user buys regularly.
type Item struct {
	Label            string              `json:"label"`
	Count            int                 `json:"count"`
	LastSeen         time.Time           `json:"last_seen"`
	TotalQuantity    int                 `json:"total_quantity"`
	AverageUnitPrice decimal.Decimal     `json:"average_unit_price"`
	Preference       *grocery.Preference `json:"preference,omitempty"`
}

// Quantity is the usual amount bought per order, at least 1.
func (it Item) Quantity() int {
	if it.Count == 0 {
		return 1
	}
	q := (it.TotalQuantity + it.Count/2) / it.Count
	if q < 1 {
		return 1
	}
	return q
}

// Usual returns labels that appear in at least MinFrequency of the last
// Lookback orders, most frequent first.
func Usual(ctx context.Context, src Source, opts Options) ([]Item, error) {
	def := DefaultOptions()
	if opts.MinFrequency <= 0 {
		opts.MinFrequency = def.MinFrequency
	}
	if opts.Lookback <= 0 {
		opts.Lookback = def.Lookback
	}
	orders, err := src.Orders(ctx, storage.OrderQuery{Limit: opts.Lookback})
	if err != nil {
		return nil, err
	}

	exclude := make(map[string]bool, len(opts.Exclude))
	for _, e := range opts.Exclude {
		exclude[grocery.NormalizeLabel(e)] = true
	}

	type agg struct {
		item  Item
		spent decimal.Decimal
	}
	byLabel := make(map[string]*agg)
	for _, rec := range orders {
		inOrder := make(map[string]bool)
		for _, it := range rec.Items {
			label := grocery.NormalizeLabel(it.Label)
			if label == "" || exclude[label] {
				continue
			}
			a, ok := byLabel[label]
			if !ok {
				a = &agg{item: Item{Label: label}}
				byLabel[label] = a
			}
			a.item.TotalQuantity += it.Quantity
			a.spent = a.spent.Add(it.LineTotal())
			if !inOrder[label] {
				inOrder[label] = true
				a.item.Count++
			}
			if rec.CompletedAt.After(a.item.LastSeen) {
				a.item.LastSeen = rec.CompletedAt
			}
		}
	}

	var out []Item
	for _, a := range byLabel {
		if a.item.Count < opts.MinFrequency {
			continue
		}
		if a.item.TotalQuantity > 0 {
			a.item.AverageUnitPrice = a.spent.Div(decimal.NewFromInt(int64(a.item.TotalQuantity))).Round(2)
		}
		out = append(out, a.item)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.Label < b.Label
	})

	for i := range out {
		p, err := src.GetPreference(ctx, out[i].Label)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i].Preference = &p
	}
	return out, nil
}

// Suggest returns the usual items missing from a list holding labels.
func Suggest(ctx context.Context, src Source, opts Options, labels []string) ([]Item, error) {
	have := make([]string, 0, len(labels)+len(opts.Exclude))
	have = append(have, opts.Exclude...)
	have = append(have, labels...)
	opts.Exclude = have
	return Usual(ctx, src, opts)
}

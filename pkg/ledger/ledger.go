// Package ledger records completed shops and answers questions about past
// spending. Orders are append-only.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/storage"
)

type Config struct {
	// PurchaseConfidence is given to preferences created by a purchase.
	PurchaseConfidence float64
	// PurchaseStep is added to a preference each time its product is bought.
	PurchaseStep float64
	TopItems     int
}

func DefaultConfig() Config {
	return Config{PurchaseConfidence: 0.5, PurchaseStep: 0.1, TopItems: 5}
}

type Ledger struct {
	db    *storage.DB
	store string
	cfg   Config
	log   catalog.Logger
	now   func() time.Time
}

type Option func(*Ledger)

func WithConfig(cfg Config) Option { return func(l *Ledger) { l.cfg = cfg } }

func WithLogger(log catalog.Logger) Option { return func(l *Ledger) { l.log = log } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// New returns a ledger writing orders for store into db.
func New(db *storage.DB, store string, opts ...Option) *Ledger {
	l := &Ledger{db: db, store: store, cfg: DefaultConfig(), log: catalog.NopLogger{}, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record appends a completed order, then logs its prices and strengthens
// the preference behind each item. Failures after the order is stored are
// logged, not returned.
func (l *Ledger) Record(ctx context.Context, listID int64, items []grocery.OrderItem, totalPaid decimal.NullDecimal, notes string) (grocery.OrderRecord, error) {
	if len(items) == 0 {
		return grocery.OrderRecord{}, errors.New("cannot record an order with no items")
	}
	clean := make([]grocery.OrderItem, 0, len(items))
	estimate := decimal.Zero
	for i, it := range items {
		it.Label = grocery.NormalizeLabel(it.Label)
		if it.Label == "" {
			return grocery.OrderRecord{}, fmt.Errorf("item %d has no label", i+1)
		}
		if it.Stockcode == 0 {
			return grocery.OrderRecord{}, fmt.Errorf("item %q has no product", it.Label)
		}
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		estimate = estimate.Add(it.LineTotal())
		clean = append(clean, it)
	}
	if totalPaid.Valid && totalPaid.Decimal.IsNegative() {
		return grocery.OrderRecord{}, errors.New("total paid cannot be negative")
	}

	rec, err := l.db.AppendOrder(ctx, grocery.OrderRecord{
		ListID:        listID,
		Items:         clean,
		TotalEstimate: estimate,
		TotalPaid:     totalPaid,
		Store:         l.store,
		Notes:         notes,
		CompletedAt:   l.now(),
	})
	if err != nil {
		return grocery.OrderRecord{}, fmt.Errorf("record order: %w", err)
	}
	l.log.Infof("Recorded order %d with %d item(s), estimate $%s", rec.ID, len(rec.Items), rec.TotalEstimate.StringFixed(2))

	points := make([]grocery.PricePoint, 0, len(rec.Items))
	for _, it := range rec.Items {
		points = append(points, grocery.PricePoint{
			Stockcode:   it.Stockcode,
			ProductName: it.ProductName,
			Price:       it.UnitPrice,
			OnSpecial:   it.OnSpecial,
			RecordedAt:  rec.CompletedAt,
		})
	}
	if err := l.db.AppendPricePoints(ctx, points); err != nil {
		l.log.Warnf("Could not record prices for order %d: %v", rec.ID, err)
	}

	seen := make(map[string]bool, len(rec.Items))
	for _, it := range rec.Items {
		if seen[it.Label] {
			continue
		}
		seen[it.Label] = true
		if err := l.confirm(ctx, it, rec.CompletedAt); err != nil {
			l.log.Warnf("Could not update preference %q: %v", it.Label, err)
		}
	}
	return rec, nil
}

// confirm applies a purchase to the preference for it.Label. A purchase
// never replaces an explicit choice of a different product.
func (l *Ledger) confirm(ctx context.Context, it grocery.OrderItem, at time.Time) error {
	existing, err := l.db.GetPreference(ctx, it.Label)
	found := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	pref := grocery.Preference{
		Label:         it.Label,
		Stockcode:     it.Stockcode,
		ProductName:   it.ProductName,
		Brand:         it.Brand,
		LastPrice:     it.UnitPrice,
		Source:        grocery.SourcePurchase,
		Confidence:    l.cfg.PurchaseConfidence,
		PurchaseCount: 1,
		UpdatedAt:     at,
	}
	switch {
	case !found:
	case existing.Stockcode == it.Stockcode:
		pref = existing
		pref.ProductName = it.ProductName
		if it.Brand != "" {
			pref.Brand = it.Brand
		}
		pref.LastPrice = it.UnitPrice
		pref.PurchaseCount++
		pref.Confidence = existing.Confidence + l.cfg.PurchaseStep
		if pref.Confidence > 1 {
			pref.Confidence = 1
		}
		if pref.Source == grocery.SourceInferred {
			pref.Source = grocery.SourcePurchase
		}
		pref.UpdatedAt = at
	case existing.Source == grocery.SourceExplicit:
		l.log.Debugf("Keeping explicit preference %q -> %d over purchased %d", it.Label, existing.Stockcode, it.Stockcode)
		return nil
	}
	return l.db.SavePreference(ctx, pref)
}

// Orders returns orders newest first. limit <= 0 means all, a zero since
// means no lower bound.
func (l *Ledger) Orders(ctx context.Context, limit int, since time.Time) ([]grocery.OrderRecord, error) {
	return l.db.Orders(ctx, storage.OrderQuery{Limit: limit, Since: since})
}

// PriceHistory returns prices paid or seen for stockcode over the last
// days, oldest first. days <= 0 returns everything.
func (l *Ledger) PriceHistory(ctx context.Context, stockcode int64, days int) ([]grocery.PricePoint, error) {
	return l.db.PriceHistory(ctx, stockcode, l.since(days))
}

func (l *Ledger) since(days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return l.now().Add(-time.Duration(days) * 24 * time.Hour)
}

// ItemSpend is the money spent on one label.
type ItemSpend struct {
	Label    string          `json:"label"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

type Spending struct {
	Days     int             `json:"days"`
	Orders   int             `json:"orders"`
	Total    decimal.Decimal `json:"total"`
	Average  decimal.Decimal `json:"average"`
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	TopItems []ItemSpend     `json:"top_items"`
}

// orderTotal prefers what was actually paid over the estimate.
func orderTotal(rec grocery.OrderRecord) decimal.Decimal {
	if rec.TotalPaid.Valid {
		return rec.TotalPaid.Decimal
	}
	return rec.TotalEstimate
}

// Spending summarises orders completed in the last days.
func (l *Ledger) Spending(ctx context.Context, days int) (Spending, error) {
	orders, err := l.db.Orders(ctx, storage.OrderQuery{Since: l.since(days)})
	if err != nil {
		return Spending{}, err
	}
	s := Spending{Days: days, Orders: len(orders)}
	if len(orders) == 0 {
		return s, nil
	}

	byLabel := make(map[string]*ItemSpend)
	for i, rec := range orders {
		t := orderTotal(rec)
		s.Total = s.Total.Add(t)
		if i == 0 || t.LessThan(s.Min) {
			s.Min = t
		}
		if i == 0 || t.GreaterThan(s.Max) {
			s.Max = t
		}
		for _, it := range rec.Items {
			agg, ok := byLabel[it.Label]
			if !ok {
				agg = &ItemSpend{Label: it.Label}
				byLabel[it.Label] = agg
			}
			agg.Quantity += it.Quantity
			agg.Total = agg.Total.Add(it.LineTotal())
		}
	}
	s.Average = s.Total.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)

	for _, agg := range byLabel {
		s.TopItems = append(s.TopItems, *agg)
	}
	sort.Slice(s.TopItems, func(i, j int) bool {
		a, b := s.TopItems[i], s.TopItems[j]
		if !a.Total.Equal(b.Total) {
			return a.Total.GreaterThan(b.Total)
		}
		return a.Label < b.Label
	})
	if n := l.cfg.TopItems; n > 0 && len(s.TopItems) > n {
		s.TopItems = s.TopItems[:n]
	}
	return s, nil
}

// ItemStats describes how often a label has been bought.
type ItemStats struct {
	Label         string          `json:"label"`
	Orders        int             `json:"orders"`
	TotalQuantity int             `json:"total_quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	FirstBought   time.Time       `json:"first_bought"`
	LastBought    time.Time       `json:"last_bought"`
	Products      []string        `json:"products"`
}

// ItemStats scans every order for label. Zero Orders means it was never bought.
func (l *Ledger) ItemStats(ctx context.Context, label string) (ItemStats, error) {
	norm := grocery.NormalizeLabel(label)
	st := ItemStats{Label: norm}
	if norm == "" {
		return st, errors.New("empty item label")
	}
	orders, err := l.db.Orders(ctx, storage.OrderQuery{})
	if err != nil {
		return st, err
	}

	var (
		spent    decimal.Decimal
		products = make(map[string]bool)
	)
	for _, rec := range orders {
		bought := false
		for _, it := range rec.Items {
			if it.Label != norm {
				continue
			}
			bought = true
			st.TotalQuantity += it.Quantity
			spent = spent.Add(it.LineTotal())
			if !products[it.ProductName] {
				products[it.ProductName] = true
				st.Products = append(st.Products, it.ProductName)
			}
		}
		if !bought {
			continue
		}
		st.Orders++
		if st.LastBought.IsZero() || rec.CompletedAt.After(st.LastBought) {
			st.LastBought = rec.CompletedAt
		}
		if st.FirstBought.IsZero() || rec.CompletedAt.Before(st.FirstBought) {
			st.FirstBought = rec.CompletedAt
		}
	}
	if st.TotalQuantity > 0 {
		st.AveragePrice = spent.Div(decimal.NewFromInt(int64(st.TotalQuantity))).Round(2)
	}
	sort.Strings(st.Products)
	return st, nil
}

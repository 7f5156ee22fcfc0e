// Package shopping ties lists, the resolver, the cart builder and the
// ledger into the steps of a weekly shop.
package shopping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/trolleyctl/trolley/pkg/cart"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/ledger"
	"github.com/trolleyctl/trolley/pkg/resolver"
	"github.com/trolleyctl/trolley/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Config holds everything a Workflow needs. DB and Resolver are required
// for resolving; Cart for building; Ledger for completing.
type Config struct {
	DB          *storage.DB
	Resolver    *resolver.Resolver
	Cart        cart.Adder
	Ledger      *ledger.Ledger
	Concurrency int    // defaults to 3 if <= 0
	Log         Logger // optional; nil = no logging

	// OnItemResolved is called per item as resolutions land, from worker
	// goroutines. Nil = no callback.
	OnItemResolved func(item grocery.ListItem, res resolver.Resolution)
}

type Workflow struct {
	cfg Config
	log Logger
}

func New(cfg Config) *Workflow {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &Workflow{cfg: cfg, log: log}
}

// ParseEntries turns free-text entries such as "2 eggs" or "milk x3" into
// list items. Blank entries are dropped.
func ParseEntries(entries []string) []grocery.ListItem {
	var out []grocery.ListItem
	for _, e := range entries {
		for _, part := range strings.Split(e, ",") {
			label, qty := grocery.ParseItem(part)
			if strings.TrimSpace(label) == "" {
				continue
			}
			out = append(out, grocery.ListItem{Label: label, Quantity: qty, Status: grocery.StatusUnresolved})
		}
	}
	return out
}

// CreateList creates an active list holding entries.
func (w *Workflow) CreateList(ctx context.Context, name string, entries []string) (grocery.List, []grocery.ListItem, error) {
	l, err := w.cfg.DB.CreateList(ctx, name)
	if err != nil {
		return grocery.List{}, nil, err
	}
	items, err := w.AddItems(ctx, l.ID, entries)
	if err != nil {
		return l, items, err
	}
	l, err = w.cfg.DB.GetList(ctx, l.ID)
	return l, items, err
}

// AddItems appends entries to a list, merging quantities into items
// already present under the same label.
func (w *Workflow) AddItems(ctx context.Context, listID int64, entries []string) ([]grocery.ListItem, error) {
	var out []grocery.ListItem
	for _, it := range ParseEntries(entries) {
		saved, merged, err := w.cfg.DB.AddListItem(ctx, listID, it)
		if err != nil {
			return out, fmt.Errorf("add %q: %w", it.Label, err)
		}
		if merged {
			w.log.Debugf("Merged %q into existing item, quantity now %d", it.Label, saved.Quantity)
		}
		out = append(out, saved)
	}
	return out, nil
}

// RemoveItems deletes items by label. Labels not on the list are reported
// together after the others are removed.
func (w *Workflow) RemoveItems(ctx context.Context, listID int64, labels []string) error {
	var errs []error
	for _, l := range labels {
		if err := w.cfg.DB.RemoveListItem(ctx, listID, l); err != nil {
			errs = append(errs, fmt.Errorf("remove %q: %w", l, err))
		}
	}
	return errors.Join(errs...)
}

// ItemResolution pairs a list item with what the resolver made of it.
type ItemResolution struct {
	Item       grocery.ListItem
	Resolution resolver.Resolution
	Skipped    bool
}

// ResolveResult holds the outcome of resolving a whole list.
type ResolveResult struct {
	List       grocery.List
	Items      []ItemResolution
	Resolved   int
	Ambiguous  int
	Unresolved int
	Errors     []error // non-fatal errors
}

// ResolveList resolves every item on the list that is not yet resolved,
// concurrently, and stores the outcomes. force also re-resolves
// auto-resolved items. User-confirmed items are never touched.
func (w *Workflow) ResolveList(ctx context.Context, listID int64, force bool) (*ResolveResult, error) {
	l, err := w.cfg.DB.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	items, err := w.cfg.DB.ListItems(ctx, listID)
	if err != nil {
		return nil, err
	}
	result := &ResolveResult{Items: make([]ItemResolution, len(items))}

	jobs := make(chan int, len(items))
	for i, it := range items {
		result.Items[i].Item = it
		if it.Status == grocery.StatusUserConfirmed || (it.Status == grocery.StatusAutoResolved && !force) {
			result.Items[i].Skipped = true
			continue
		}
		jobs <- i
	}
	close(jobs)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for n := 0; n < w.cfg.Concurrency; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs := w.resolveOne(ctx, &result.Items[i])
				if len(errs) > 0 {
					mu.Lock()
					result.Errors = append(result.Errors, errs...)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	for _, ir := range result.Items {
		switch {
		case ir.Skipped && ir.Item.Status.Resolved(), ir.Resolution.Status.Resolved():
			result.Resolved++
		case ir.Resolution.Status == grocery.StatusAmbiguous:
			result.Ambiguous++
		default:
			result.Unresolved++
		}
	}
	if result.List, err = w.cfg.DB.GetList(ctx, l.ID); err != nil {
		w.log.Warnf("Could not reload list %d: %v", l.ID, err)
		result.List = l
	}
	return result, nil
}

func (w *Workflow) resolveOne(ctx context.Context, ir *ItemResolution) []error {
	var errs []error
	it := ir.Item
	res, err := w.cfg.Resolver.Resolve(ctx, resolver.Request{Label: it.Label, Quantity: it.Quantity})
	ir.Resolution = res
	if err != nil {
		w.log.Warnf("Could not resolve %q: %v", it.Label, err)
		errs = append(errs, err)
	}
	status, product := res.Status, res.Product
	if res.Outcome == resolver.OutcomeFailed {
		// a failed attempt must not leave an older product on the item
		status, product = grocery.StatusUnresolved, nil
	}
	if uerr := w.cfg.DB.UpdateItemResolution(ctx, it.ID, status, product); uerr != nil {
		w.log.Warnf("Could not store resolution for %q: %v", it.Label, uerr)
		errs = append(errs, uerr)
	} else {
		ir.Item.Status = status
		ir.Item.Stockcode, ir.Item.ProductName, ir.Item.Brand = 0, "", ""
		ir.Item.Price, ir.Item.OnSpecial = decimal.Zero, false
		if product != nil {
			ir.Item.Stockcode = product.Stockcode
			ir.Item.ProductName = product.Name
			ir.Item.Brand = product.Brand
			ir.Item.Price = product.Price
			ir.Item.OnSpecial = product.OnSpecial
		}
	}
	if w.cfg.OnItemResolved != nil {
		w.cfg.OnItemResolved(ir.Item, res)
	}
	return errs
}

// BuildCart previews, or with confirm adds, the list's resolved items.
func (w *Workflow) BuildCart(ctx context.Context, listID int64, confirm bool) (cart.Report, error) {
	if w.cfg.Cart == nil {
		return cart.Report{}, errors.New("no cart configured")
	}
	items, err := w.cfg.DB.ListItems(ctx, listID)
	if err != nil {
		return cart.Report{}, err
	}
	if len(items) == 0 {
		return cart.Report{}, fmt.Errorf("list %d has no items", listID)
	}
	in := make([]cart.Item, 0, len(items))
	for _, it := range items {
		in = append(in, cart.FromListItem(it))
	}
	b := cart.NewBuilder(w.cfg.Cart, cart.WithConcurrency(w.cfg.Concurrency), cart.WithLogger(w.log))
	rep := b.Build(ctx, in, confirm)
	if rep.Failed > 0 {
		w.log.Warnf("Cart run %s: %d of %d item(s) failed", rep.RunID, rep.Failed, len(in))
	}
	return rep, nil
}

// CompleteResult holds the recorded order and the labels left out of it.
type CompleteResult struct {
	Order   grocery.OrderRecord
	Skipped []string
}

// Complete records the list's resolved items as a purchase and marks the
// list purchased. Unresolved items are left out of the order.
func (w *Workflow) Complete(ctx context.Context, listID int64, totalPaid decimal.NullDecimal, notes string) (*CompleteResult, error) {
	if w.cfg.Ledger == nil {
		return nil, errors.New("no ledger configured")
	}
	l, err := w.cfg.DB.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if l.Status != grocery.ListActive {
		return nil, fmt.Errorf("list %q is already %s", l.Name, l.Status)
	}
	items, err := w.cfg.DB.ListItems(ctx, listID)
	if err != nil {
		return nil, err
	}

	result := &CompleteResult{}
	var bought []grocery.OrderItem
	for _, it := range items {
		if !it.Status.Resolved() || it.Stockcode == 0 {
			result.Skipped = append(result.Skipped, it.Label)
			continue
		}
		bought = append(bought, grocery.OrderItem{
			Label:       it.Label,
			Stockcode:   it.Stockcode,
			ProductName: it.ProductName,
			Brand:       it.Brand,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
			OnSpecial:   it.OnSpecial,
		})
	}
	if len(bought) == 0 {
		return nil, fmt.Errorf("list %q has no resolved items to record", l.Name)
	}

	if result.Order, err = w.cfg.Ledger.Record(ctx, listID, bought, totalPaid, notes); err != nil {
		return nil, err
	}
	if err := w.cfg.DB.SetListStatus(ctx, listID, grocery.ListPurchased); err != nil {
		w.log.Warnf("Could not mark list %d purchased: %v", listID, err)
	}
	return result, nil
}

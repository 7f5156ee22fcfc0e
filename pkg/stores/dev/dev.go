package dev

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/stores"
)

// This is used for offline runs and tests: a fixed catalog and an
// in-memory cart.

type item struct {
	code    int64
	name    string
	brand   string
	size    string
	price   string
	cup     string
	was     string
	special bool
	unavail bool
}

var catalog = []item{
	{code: 123456, name: "Woolworths Full Cream Milk 2L", brand: "Woolworths", size: "2L", price: "3.10", cup: "1.55"},
	{code: 123457, name: "Woolworths Lite Milk 2L", brand: "Woolworths", size: "2L", price: "3.10", cup: "1.55"},
	{code: 654321, name: "a2 Milk Full Cream 2L", brand: "a2 Milk", size: "2L", price: "5.20", cup: "2.60", was: "6.50", special: true},
	{code: 777001, name: "Cadbury Dairy Milk Chocolate Block 180g", brand: "Cadbury", size: "180g", price: "6.00", cup: "3.33"},
	{code: 200100, name: "Woolworths 12 Extra Large Free Range Eggs 700g", brand: "Woolworths", size: "700g", price: "6.50", cup: "0.93"},
	{code: 200200, name: "Sunny Queen 12 Free Range Eggs 600g", brand: "Sunny Queen", size: "600g", price: "7.20", cup: "1.20"},
	{code: 300100, name: "Tip Top The One White Bread 700g", brand: "Tip Top", size: "700g", price: "4.00", cup: "0.57"},
	{code: 300200, name: "Helga's Wholemeal Bread 750g", brand: "Helga's", size: "750g", price: "5.50", cup: "0.73"},
	{code: 133211, name: "Cavendish Bananas", size: "each", price: "0.80", cup: "4.50"},
	{code: 400100, name: "Chobani Greek Yoghurt Plain 907g", brand: "Chobani", size: "907g", price: "8.00", cup: "0.88"},
	{code: 400200, name: "Jalna Greek Yoghurt Plain 1kg", brand: "Jalna", size: "1kg", price: "8.50", cup: "0.85"},
	{code: 500100, name: "Bega Tasty Cheese Block 500g", brand: "Bega", size: "500g", price: "9.00", cup: "1.80", was: "11.00", special: true},
	{code: 600100, name: "Moccona Classic Medium Roast Instant Coffee 200g", brand: "Moccona", size: "200g", price: "16.00", cup: "8.00"},
	{code: 700100, name: "Woolworths Roma Tomatoes", size: "per kg", price: "7.90", cup: "7.90", unavail: true},
}

type Provider struct {
	mu   sync.Mutex
	cart map[int64]int
}

func NewProvider() *Provider { return &Provider{cart: make(map[int64]int)} }

func (p *Provider) Name() string { return "dev" }

// Authenticate is a no-op for the dev store.
func (p *Provider) Authenticate(ctx context.Context, cfg stores.AuthConfig) error { return nil }

func (it item) product() grocery.Product {
	prod := grocery.Product{
		Stockcode:   it.code,
		Name:        it.name,
		Brand:       it.brand,
		PackageSize: it.size,
		Price:       decimal.RequireFromString(it.price),
		CupPrice:    decimal.RequireFromString(it.cup),
		OnSpecial:   it.special,
		Available:   !it.unavail,
		Store:       "dev",
	}
	if it.was != "" {
		prod.WasPrice = decimal.RequireFromString(it.was)
	}
	return prod
}

func (p *Provider) Search(ctx context.Context, req stores.SearchRequest) ([]grocery.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := grocery.Tokens(req.Term)
	var out []grocery.Product
	for _, it := range catalog {
		if req.SpecialsOnly && !it.special {
			continue
		}
		name := " " + grocery.NormalizeLabel(it.name+" "+it.brand) + " "
		hit := len(terms) == 0
		for _, t := range terms {
			if strings.Contains(name, " "+t+" ") {
				hit = true
				break
			}
		}
		if hit {
			out = append(out, it.product())
		}
	}
	if req.PageSize > 0 && len(out) > req.PageSize {
		out = out[:req.PageSize]
	}
	return out, nil
}

func (p *Provider) ProductDetails(ctx context.Context, stockcode int64) (grocery.Product, error) {
	for _, it := range catalog {
		if it.code == stockcode {
			return it.product(), nil
		}
	}
	return grocery.Product{}, stores.Fail(stores.KindNotFound, "product", fmt.Errorf("stockcode %d", stockcode))
}

func (p *Provider) Specials(ctx context.Context, limit int) ([]grocery.Product, error) {
	return p.Search(ctx, stores.SearchRequest{PageSize: limit, SpecialsOnly: true})
}

func (p *Provider) AddToCart(ctx context.Context, stockcode int64, quantity int) error {
	prod, err := p.ProductDetails(ctx, stockcode)
	if err != nil {
		return err
	}
	if !prod.Available {
		return &stores.Error{Kind: stores.KindTransport, Op: "add to cart", Msg: prod.Name + " is unavailable"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cart[stockcode] += quantity
	return nil
}

func (p *Provider) Cart(ctx context.Context) (grocery.CartSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var snap grocery.CartSnapshot
	codes := make([]int64, 0, len(p.cart))
	for code := range p.cart {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	snap.Total = decimal.Zero
	for _, code := range codes {
		prod, _ := p.ProductDetails(ctx, code)
		line := grocery.CartLine{Stockcode: code, Name: prod.Name, Quantity: p.cart[code], Price: prod.Price}
		snap.Items = append(snap.Items, line)
		snap.Total = snap.Total.Add(prod.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return snap, nil
}

package dev

import (
	"context"
	"errors"
	"testing"

	"github.com/trolleyctl/trolley/pkg/stores"
)

func TestSearchMatchesTokens(t *testing.T) {
	p := NewProvider()
	got, err := p.Search(context.Background(), stores.SearchRequest{Term: "Bananas"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Stockcode != 133211 {
		t.Fatalf("Search(bananas) = %+v", got)
	}

	got, _ = p.Search(context.Background(), stores.SearchRequest{Term: "milk", PageSize: 2})
	if len(got) != 2 {
		t.Fatalf("page size not applied: %d results", len(got))
	}
}

func TestCart(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()
	if err := p.AddToCart(ctx, 123456, 2); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if err := p.AddToCart(ctx, 123456, 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if err := p.AddToCart(ctx, 1, 1); !errors.Is(err, stores.ErrNotFound) {
		t.Fatalf("AddToCart unknown = %v", err)
	}
	if err := p.AddToCart(ctx, 700100, 1); !errors.Is(err, stores.ErrTransport) {
		t.Fatalf("AddToCart unavailable = %v", err)
	}
	snap, err := p.Cart(ctx)
	if err != nil {
		t.Fatalf("Cart: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Quantity != 3 || snap.Total.String() != "9.3" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

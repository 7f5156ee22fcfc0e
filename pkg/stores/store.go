package stores

import (
	"context"

	"github.com/trolleyctl/trolley/pkg/grocery"
)

// SearchRequest carries the query and filters for a catalog search.
type SearchRequest struct {
	Term         string
	PageSize     int
	Sort         string
	SpecialsOnly bool
}

// AuthConfig carries optional authentication inputs.
type AuthConfig struct {
	Cookies string
	APIKey  string
	Proxy   string
}

// Provider abstracts a store's catalog and cart endpoints.
type Provider interface {
	Name() string
	// Authenticate configures the provider with credentials, if needed.
	// Providers that don't require auth should return nil.
	Authenticate(ctx context.Context, cfg AuthConfig) error
	Search(ctx context.Context, req SearchRequest) ([]grocery.Product, error)
	ProductDetails(ctx context.Context, stockcode int64) (grocery.Product, error)
	AddToCart(ctx context.Context, stockcode int64, quantity int) error
	Cart(ctx context.Context) (grocery.CartSnapshot, error)
	Specials(ctx context.Context, limit int) ([]grocery.Product, error)
}

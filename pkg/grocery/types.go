package grocery

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is one catalog entry as seen by a store at SeenAt.
type Product struct {
	Stockcode   int64           `json:"stockcode"`
	Name        string          `json:"name"`
	Brand       string          `json:"brand,omitempty"`
	PackageSize string          `json:"package_size,omitempty"`
	Price       decimal.Decimal `json:"price"`
	WasPrice    decimal.Decimal `json:"was_price"`
	CupPrice    decimal.Decimal `json:"cup_price"`
	CupString   string          `json:"cup_string,omitempty"`
	OnSpecial   bool            `json:"on_special"`
	Available   bool            `json:"available"`
	Description string          `json:"description,omitempty"`
	Store       string          `json:"store,omitempty"`
	SeenAt      time.Time       `json:"seen_at"`
}

// Savings is the difference between the was-price and the current price.
func (p Product) Savings() decimal.Decimal {
	if !p.OnSpecial || !p.WasPrice.GreaterThan(p.Price) {
		return decimal.Zero
	}
	return p.WasPrice.Sub(p.Price)
}

type PreferenceSource string

const (
	SourceExplicit PreferenceSource = "explicit"
	SourceInferred PreferenceSource = "inferred"
	SourcePurchase PreferenceSource = "purchase"
)

// Preference maps a normalized item label to the product the user buys for it.
type Preference struct {
	Label         string           `json:"label"`
	Stockcode     int64            `json:"stockcode"`
	ProductName   string           `json:"product_name"`
	Brand         string           `json:"brand,omitempty"`
	PackageSize   string           `json:"package_size,omitempty"`
	LastPrice     decimal.Decimal  `json:"last_price"`
	Source        PreferenceSource `json:"source"`
	Confidence    float64          `json:"confidence"`
	PurchaseCount int              `json:"purchase_count"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type Status string

const (
	StatusUnresolved    Status = "unresolved"
	StatusAutoResolved  Status = "auto-resolved"
	StatusAmbiguous     Status = "ambiguous"
	StatusUserConfirmed Status = "user-confirmed"
)

// Resolved reports whether the item points at a concrete product.
func (s Status) Resolved() bool {
	return s == StatusAutoResolved || s == StatusUserConfirmed
}

type ListStatus string

const (
	ListActive    ListStatus = "active"
	ListPurchased ListStatus = "purchased"
	ListArchived  ListStatus = "archived"
)

type List struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Status        ListStatus      `json:"status"`
	TotalEstimate decimal.Decimal `json:"total_estimate"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ListItem struct {
	ID          int64           `json:"id"`
	ListID      int64           `json:"list_id"`
	Label       string          `json:"label"`
	Quantity    int             `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	Stockcode   int64           `json:"stockcode,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Brand       string          `json:"brand,omitempty"`
	Price       decimal.Decimal `json:"price"`
	OnSpecial   bool            `json:"on_special"`
	Status      Status          `json:"status"`
}

// LineTotal is the estimated cost of the item at its recorded price.
func (i ListItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderItem struct {
	Label       string          `json:"label"`
	Stockcode   int64           `json:"stockcode"`
	ProductName string          `json:"product_name"`
	Brand       string          `json:"brand,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	OnSpecial   bool            `json:"on_special"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderRecord is an immutable record of one completed shop.
type OrderRecord struct {
	ID            int64               `json:"id"`
	ListID        int64               `json:"list_id,omitempty"`
	Items         []OrderItem         `json:"items"`
	TotalEstimate decimal.Decimal     `json:"total_estimate"`
	TotalPaid     decimal.NullDecimal `json:"total_paid"`
	Store         string              `json:"store"`
	Notes         string              `json:"notes,omitempty"`
	CompletedAt   time.Time           `json:"completed_at"`
}

type PricePoint struct {
	Stockcode   int64           `json:"stockcode"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	OnSpecial   bool            `json:"on_special"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

type CartLine struct {
	Stockcode int64           `json:"stockcode"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSnapshot is the remote cart as last fetched.
type CartSnapshot struct {
	Items     []CartLine      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	FetchedAt time.Time       `json:"fetched_at"`
}

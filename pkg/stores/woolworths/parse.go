package woolworths

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/stores"
)

func parseProduct(raw gjson.Result) (grocery.Product, bool) {
	code := raw.Get("Stockcode").Int()
	if code == 0 {
		return grocery.Product{}, false
	}
	onSpecial := raw.Get("IsOnSpecial").Bool() || raw.Get("IsInStoreSpecial").Bool()
	p := grocery.Product{
		Stockcode:   code,
		Name:        stores.First(raw, "Name", "DisplayName").String(),
		Brand:       raw.Get("Brand").String(),
		PackageSize: stores.First(raw, "PackageSize", "Unit").String(),
		Price:       stores.Decimal(stores.First(raw, "Price", "InstorePrice")),
		CupPrice:    stores.Decimal(raw.Get("CupPrice")),
		CupString:   raw.Get("CupString").String(),
		OnSpecial:   onSpecial,
		Available:   true,
		Description: stores.PlainText(raw.Get("Description").String()),
		Store:       "woolworths",
	}
	if v := raw.Get("IsAvailable"); v.Exists() && v.Type != gjson.Null {
		p.Available = v.Bool()
	}
	if onSpecial {
		p.WasPrice = stores.Decimal(raw.Get("WasPrice"))
	}
	return p, true
}

func parseCart(doc gjson.Result) grocery.CartSnapshot {
	var snap grocery.CartSnapshot
	items := stores.First(doc, "TrolleyItems", "Items", "AvailableItems")
	total := decimal.Zero
	items.ForEach(func(_, it gjson.Result) bool {
		line := grocery.CartLine{
			Stockcode: it.Get("Stockcode").Int(),
			Name:      stores.First(it, "DisplayName", "Name").String(),
			Quantity:  int(it.Get("Quantity").Int()),
			Price:     stores.Decimal(stores.First(it, "SalePrice", "Price")),
		}
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		snap.Items = append(snap.Items, line)
		return true
	})
	if t := stores.First(doc, "TotalTrolleyPrice", "Totals.Total", "Subtotal"); t.Exists() {
		snap.Total = stores.Decimal(t)
	} else {
		snap.Total = total
	}
	return snap
}

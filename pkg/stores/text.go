package stores

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// PlainText strips markup from a product description.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("br, p, li").Each(func(_ int, sel *goquery.Selection) {
		sel.BeforeHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Decimal reads a JSON number or numeric string as a decimal. Missing
// and null values read as zero.
func Decimal(r gjson.Result) decimal.Decimal {
	if !r.Exists() || r.Type == gjson.Null {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(r.String()), "$")); err == nil {
		return d
	}
	return decimal.NewFromFloat(r.Float())
}

// First returns the first of paths present and non-null in r.
func First(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

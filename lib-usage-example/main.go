package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/resolver"
	"github.com/trolleyctl/trolley/pkg/storage"
	"github.com/trolleyctl/trolley/pkg/stores"
	"github.com/trolleyctl/trolley/pkg/stores/dev"
	"github.com/trolleyctl/trolley/pkg/stores/woolworths"
)

func main() {
	// Usage: go run . -live "2 eggs" "milk x3" bananas

	live := flag.Bool("live", false, "Query woolworths.com.au instead of the built-in test catalog")
	flag.Parse()

	var provider stores.Provider = dev.NewProvider()
	if *live {
		p, err := woolworths.New(woolworths.Options{})
		if err != nil {
			log.Fatal(err)
		}
		provider = p
	}

	// An in-memory database keeps preferences for this run only.
	db, err := storage.Open(":memory:")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	cat := catalog.New(provider, catalog.WithCache(db.SearchCache()))
	r := resolver.New(cat, db, resolver.DefaultConfig())

	for _, arg := range flag.Args() {
		label, qty := grocery.ParseItem(arg)
		res, err := r.Resolve(context.Background(), resolver.Request{Label: label, Quantity: qty})
		if err != nil {
			fmt.Printf("%s: %v\n", label, err)
			continue
		}
		switch res.Status {
		case grocery.StatusAutoResolved:
			fmt.Printf("%d x %s -> %s ($%s)\n", res.Quantity, label, res.Product.Name, res.Product.Price.StringFixed(2))
		case grocery.StatusAmbiguous:
			fmt.Printf("%s is ambiguous:\n", label)
			for _, c := range res.Candidates {
				fmt.Printf("  %d %s (%.2f)\n", c.Product.Stockcode, c.Product.Name, c.Score)
			}
		default:
			fmt.Printf("%s: no match\n", label)
		}
	}
}

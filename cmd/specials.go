package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/match"
	"github.com/trolleyctl/trolley/pkg/usual"
)

var specialsCmd = &cobra.Command{
	Use:   "specials",
	Short: "List products currently on special",
	Long: `List products currently on special. --for-list and --usual-only narrow the
list to specials on things you are buying or usually buy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		forList, _ := cmd.Flags().GetString("for-list")
		usualOnly, _ := cmd.Flags().GetBool("usual-only")

		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()
		ctx := ctxOf(cmd)

		products, err := a.catalog.Specials(ctx, limit)
		if err != nil {
			return err
		}

		var (
			labels []string
			codes  = make(map[int64]bool)
		)
		if cmd.Flags().Changed("for-list") {
			l, err := findList(cmd, a, optional(forList))
			if err != nil {
				return err
			}
			items, err := a.db.ListItems(ctx, l.ID)
			if err != nil {
				return err
			}
			for _, it := range items {
				labels = append(labels, it.Label)
				if it.Stockcode != 0 {
					codes[it.Stockcode] = true
				}
			}
		}
		if usualOnly {
			items, err := usual.Usual(ctx, a.db, usualOptions(cmd))
			if err != nil {
				return err
			}
			for _, it := range items {
				labels = append(labels, it.Label)
				if it.Preference != nil {
					codes[it.Preference.Stockcode] = true
				}
			}
		}
		if cmd.Flags().Changed("for-list") || usualOnly {
			products = relevantSpecials(products, labels, codes, resolverConfig().MinScore)
		}

		if len(products) == 0 {
			fmt.Println("No matching specials.")
			return nil
		}
		printProducts(products)
		return nil
	},
}

// relevantSpecials keeps products that are already chosen for an item or
// that score at least minScore against one of labels.
func relevantSpecials(products []grocery.Product, labels []string, codes map[int64]bool, minScore float64) []grocery.Product {
	keep := make(map[int64]bool)
	for _, p := range products {
		if codes[p.Stockcode] {
			keep[p.Stockcode] = true
		}
	}
	w := match.DefaultWeights()
	for _, label := range labels {
		for _, s := range match.Rank(label, match.Hints{}, products, w) {
			if s.Score >= minScore {
				keep[s.Product.Stockcode] = true
			}
		}
	}
	var out []grocery.Product
	for _, p := range products {
		if keep[p.Stockcode] {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(specialsCmd)
	specialsCmd.Flags().Int("limit", 40, "Maximum number of specials to fetch")
	specialsCmd.Flags().String("for-list", "", "Only specials for items on this list (empty: newest active list)")
	specialsCmd.Flags().Lookup("for-list").NoOptDefVal = " "
	specialsCmd.Flags().Bool("usual-only", false, "Only specials for your usual items")
	addUsualFlags(specialsCmd)
}

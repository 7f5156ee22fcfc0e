package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/catalog"
	"github.com/trolleyctl/trolley/pkg/grocery"
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the store catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		sort, _ := cmd.Flags().GetString("sort")
		specials, _ := cmd.Flags().GetBool("specials-only")
		brand, _ := cmd.Flags().GetString("brand")
		size, _ := cmd.Flags().GetString("size")

		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.catalog.Search(ctxOf(cmd), catalog.Query{
			Text:         strings.Join(args, " "),
			Brand:        brand,
			Size:         size,
			Sort:         sort,
			Limit:        limit,
			SpecialsOnly: specials,
		})
		if err != nil {
			return err
		}
		if res.Stale {
			fmt.Println(warn(fmt.Sprintf("Store unavailable, showing results cached at %s", res.FetchedAt.Local().Format("Mon 2 Jan 15:04"))))
		}
		if len(res.Products) == 0 {
			fmt.Println("No products found.")
			return nil
		}
		printProducts(res.Products)
		return nil
	},
}

func printProducts(products []grocery.Product) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STOCKCODE\tNAME\tSIZE\tPRICE\tUNIT\tNOTE\t")
	for _, p := range products {
		var note []string
		if p.OnSpecial {
			note = append(note, green("special"))
			if sv := p.Savings(); sv.IsPositive() {
				note = append(note, green("save "+utils.Money(sv)))
			}
		}
		if !p.Available {
			note = append(note, red("unavailable"))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t\n", p.Stockcode, utils.Truncate(p.Name, 48), p.PackageSize, utils.Money(p.Price), p.CupString, strings.Join(note, " "))
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Int("limit", 10, "Maximum number of results")
	searchCmd.Flags().String("sort", "", "Store sort order, e.g. TraderRelevance, PriceAsc, PriceDesc")
	searchCmd.Flags().Bool("specials-only", false, "Only show products on special")
	searchCmd.Flags().String("brand", "", "Brand to search for")
	searchCmd.Flags().String("size", "", "Package size, e.g. 2L or 500g")
}

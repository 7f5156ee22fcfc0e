package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/usual"
)

var usualCmd = &cobra.Command{
	Use:   "usual",
	Short: "Show the items you buy most shops",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := usualOptions(cmd)
		createList, _ := cmd.Flags().GetString("create-list")

		a, err := openApp(cmd, createList != "")
		if err != nil {
			return err
		}
		defer a.close()

		items, err := usual.Usual(ctxOf(cmd), a.db, opts)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Printf("Nothing appears in %d of your last %d orders yet.\n", opts.MinFrequency, opts.Lookback)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM\tORDERS\tQTY\tAVG PRICE\tPRODUCT\t")
		for _, it := range items {
			product := faint("no preference")
			if it.Preference != nil {
				product = utils.Truncate(it.Preference.ProductName, 40)
			}
			fmt.Fprintf(w, "%s\t%d/%d\t%d\t%s\t%s\t\n", it.Label, it.Count, opts.Lookback, it.Quantity(), utils.Money(it.AverageUnitPrice), product)
		}
		w.Flush()

		if createList == "" {
			return nil
		}
		entries := make([]string, 0, len(items))
		for _, it := range items {
			entries = append(entries, fmt.Sprintf("%d %s", it.Quantity(), it.Label))
		}
		l, _, err := a.workflow.CreateList(ctxOf(cmd), createList, entries)
		if err != nil {
			return err
		}
		fmt.Printf("\nCreated list %s (id %d) with %d item(s)\n", bold(l.Name), l.ID, len(entries))
		return nil
	},
}

func usualOptions(cmd *cobra.Command) usual.Options {
	opts := usual.DefaultOptions()
	if n, _ := cmd.Flags().GetInt("min"); n > 0 {
		opts.MinFrequency = n
	}
	if n, _ := cmd.Flags().GetInt("lookback"); n > 0 {
		opts.Lookback = n
	}
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	opts.Exclude = utils.SplitCSV(exclude)
	return opts
}

func addUsualFlags(cmd *cobra.Command) {
	cmd.Flags().Int("min", 3, "Minimum number of orders an item must appear in")
	cmd.Flags().Int("lookback", 10, "Number of recent orders to consider")
	cmd.Flags().StringSlice("exclude", nil, "Items to leave out")
}

func init() {
	rootCmd.AddCommand(usualCmd)
	addUsualFlags(usualCmd)
	usualCmd.Flags().String("create-list", "", "Create a list with this name from the usual items")
}

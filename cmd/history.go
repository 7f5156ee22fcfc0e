package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		days, _ := cmd.Flags().GetInt("days")
		items, _ := cmd.Flags().GetBool("items")

		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		var since time.Time
		if days > 0 {
			since = time.Now().AddDate(0, 0, -days)
		}
		orders, err := a.ledger.Orders(ctxOf(cmd), limit, since)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			fmt.Println("No orders recorded yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tSTORE\tITEMS\tESTIMATE\tPAID\tNOTES\t")
		for _, o := range orders {
			paid := "-"
			if o.TotalPaid.Valid {
				paid = utils.Money(o.TotalPaid.Decimal)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t\n", o.ID, o.CompletedAt.Local().Format("2006-01-02"), o.Store, len(o.Items), utils.Money(o.TotalEstimate), paid, o.Notes)
			if items {
				for _, it := range o.Items {
					fmt.Fprintf(w, "\t\t%s\t%d\t%s\t\t%s\t\n", faint(it.Label), it.Quantity, utils.Money(it.LineTotal()), faint(utils.Truncate(it.ProductName, 40)))
				}
			}
		}
		return w.Flush()
	},
}

var pricesCmd = &cobra.Command{
	Use:   "prices <stockcode|item>",
	Short: "Show the price history of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()
		ctx := ctxOf(cmd)

		code, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			pref, perr := a.db.GetPreference(ctx, args[0])
			if errors.Is(perr, storage.ErrNotFound) {
				return &notFoundHint{err: fmt.Errorf("no product saved for %q: %w", args[0], perr), hint: "Pass a stockcode, or save one with: trolley pick <item> <stockcode>"}
			}
			if perr != nil {
				return perr
			}
			code = pref.Stockcode
		}

		points, err := a.ledger.PriceHistory(ctx, code, days)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Printf("No prices recorded for %d.\n", code)
			return nil
		}
		fmt.Println(bold(points[len(points)-1].ProductName))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tPRICE\tSPECIAL\t")
		low, high := points[0].Price, points[0].Price
		for _, p := range points {
			special := ""
			if p.OnSpecial {
				special = green("yes")
			}
			if p.Price.LessThan(low) {
				low = p.Price
			}
			if p.Price.GreaterThan(high) {
				high = p.Price
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", p.RecordedAt.Local().Format("2006-01-02"), utils.Money(p.Price), special)
		}
		w.Flush()
		fmt.Printf("low %s, high %s over %d record(s)\n", utils.Money(low), utils.Money(high), len(points))
		return nil
	},
}

var spendingCmd = &cobra.Command{
	Use:   "spending",
	Short: "Summarise spending over recent days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		s, err := a.ledger.Spending(ctxOf(cmd), days)
		if err != nil {
			return err
		}
		period := fmt.Sprintf("the last %d days", days)
		if days <= 0 {
			period = "all time"
		}
		if s.Orders == 0 {
			fmt.Printf("No orders in %s.\n", period)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "Orders\t%d\t\n", s.Orders)
		fmt.Fprintf(w, "Total\t%s\t\n", utils.Money(s.Total))
		fmt.Fprintf(w, "Average\t%s\t\n", utils.Money(s.Average))
		fmt.Fprintf(w, "Smallest\t%s\t\n", utils.Money(s.Min))
		fmt.Fprintf(w, "Largest\t%s\t\n", utils.Money(s.Max))
		fmt.Printf("Spending over %s\n", bold(period))
		w.Flush()

		if len(s.TopItems) > 0 {
			fmt.Println("\nTop items")
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, it := range s.TopItems {
				fmt.Fprintf(w, "  %s\t%d\t%s\t\n", it.Label, it.Quantity, utils.Money(it.Total))
			}
			w.Flush()
		}
		return nil
	},
}

var itemStatsCmd = &cobra.Command{
	Use:   "item-stats <item>",
	Short: "Show how often and at what price you buy an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		st, err := a.ledger.ItemStats(ctxOf(cmd), args[0])
		if err != nil {
			return err
		}
		if st.Orders == 0 {
			fmt.Printf("You have not bought %s yet.\n", bold(st.Label))
			return nil
		}
		fmt.Printf("%s: bought in %d order(s), %d in total, average %s each\n", bold(st.Label), st.Orders, st.TotalQuantity, utils.Money(st.AveragePrice))
		fmt.Printf("first %s, last %s\n", st.FirstBought.Local().Format("2006-01-02"), st.LastBought.Local().Format("2006-01-02"))
		for _, p := range st.Products {
			fmt.Printf("  - %s\n", p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd, pricesCmd, spendingCmd, itemStatsCmd)
	historyCmd.Flags().Int("limit", 20, "Maximum number of orders")
	historyCmd.Flags().Int("days", 0, "Only orders from the last N days")
	historyCmd.Flags().Bool("items", false, "Show the items in each order")
	pricesCmd.Flags().Int("days", 90, "How far back to look (0 for everything)")
	spendingCmd.Flags().Int("days", 30, "Period to summarise (0 for everything)")
}

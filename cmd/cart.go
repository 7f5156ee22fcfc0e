package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/cart"
)

const checkoutURL = "https://www.woolworths.com.au/shop/checkout"

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Fill and inspect the store trolley",
}

var cartBuildCmd = &cobra.Command{
	Use:   "build [list]",
	Short: "Add a list's resolved items to the trolley",
	Long: `Add a list's resolved items to the trolley. Without --confirm this only
previews what would be added. Ambiguous and unresolved items are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		resolve, _ := cmd.Flags().GetBool("resolve")
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		l, err := findList(cmd, a, args)
		if err != nil {
			return err
		}
		if resolve {
			if _, err := a.workflow.ResolveList(ctxOf(cmd), l.ID, false); err != nil {
				return err
			}
		}
		rep, err := a.workflow.BuildCart(ctxOf(cmd), l.ID, confirm)
		if err != nil {
			return err
		}
		printReport(rep)
		if rep.NeedsReauth() {
			fmt.Println(warn("Your store session has expired. Update your cookies: trolley setup --cookies '<cookie header>'"))
		}
		if rep.Failed > 0 {
			return fmt.Errorf("%w: %d of %d", errPartial, rep.Failed, len(rep.Results))
		}
		if !confirm && rep.Previewed > 0 {
			fmt.Println(faint("Preview only. Re-run with --confirm to add these to your trolley."))
		}
		return nil
	},
}

func printReport(rep cart.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QTY\tITEM\tPRODUCT\tLINE\tRESULT\t")
	for _, r := range rep.Results {
		product, line := "-", "-"
		if r.Item.Product != nil {
			product = utils.Truncate(r.Item.Product.Name, 40)
			line = utils.Money(r.LineTotal())
		}
		result := string(r.Outcome)
		switch r.Outcome {
		case cart.OutcomeAdded:
			result = green(result)
		case cart.OutcomeSkipped:
			result = warn(result + ": " + r.Reason)
		case cart.OutcomeFailed:
			result = red(fmt.Sprintf("%s: %v", result, r.Err))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", r.Item.Quantity, r.Item.Label, product, line, result)
	}
	w.Flush()
	fmt.Printf("\n%d added, %d previewed, %d skipped, %d failed. Estimated total %s %s\n",
		rep.Added, rep.Previewed, rep.Skipped, rep.Failed, bold(utils.Money(rep.EstimatedTotal)), faint("run "+rep.RunID))
}

var cartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is in the store trolley now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		snap, err := a.catalog.CurrentCart(ctxOf(cmd))
		if err != nil {
			return err
		}
		if len(snap.Items) == 0 {
			fmt.Println("Your trolley is empty.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "QTY\tPRODUCT\tSTOCKCODE\tLINE\t")
		for _, line := range snap.Items {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t\n", line.Quantity, utils.Truncate(line.Name, 48), line.Stockcode, utils.Money(line.LineTotal()))
		}
		fmt.Fprintf(w, "\tTOTAL\t\t%s\t\n", bold(utils.Money(snap.Total)))
		return w.Flush()
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Print the link to finish checkout in the browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Finish your order at %s\n", bold(checkoutURL))
		fmt.Println(faint("Then record it with: trolley complete --total-paid <amount> --confirm"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cartCmd, checkoutCmd)
	cartCmd.AddCommand(cartBuildCmd, cartStatusCmd)
	cartBuildCmd.Flags().Bool("confirm", false, "Actually add items to the trolley")
	cartBuildCmd.Flags().Bool("resolve", true, "Resolve pending items first")
}

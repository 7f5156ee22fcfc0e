package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/grocery"
	"github.com/trolleyctl/trolley/pkg/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <item> [item...]",
	Short: "Resolve free-text items to products",
	Long: `Resolve free-text items such as "2 eggs" or "milk x3" to store products.
Items that match your saved preferences are resolved without searching.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		brand, _ := cmd.Flags().GetString("brand")
		size, _ := cmd.Flags().GetString("size")

		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		var reqs []resolver.Request
		for _, arg := range utils.SplitCSV(args) {
			label, qty := grocery.ParseItem(arg)
			reqs = append(reqs, resolver.Request{Label: label, Quantity: qty, Brand: brand, Size: size})
		}
		out, err := a.resolver.ResolveAll(ctxOf(cmd), reqs)
		for _, res := range out {
			printResolution(res)
		}
		return err
	},
}

func printResolution(res resolver.Resolution) {
	label := res.Query
	if res.Quantity > 1 {
		label = fmt.Sprintf("%s x%d", label, res.Quantity)
	}
	switch res.Outcome {
	case resolver.OutcomeResolved:
		via := "search"
		if res.Source == resolver.SourcePreference {
			via = "saved preference"
		}
		fmt.Printf("%s %s -> %s %s\n", green("✔"), bold(label), productLine(*res.Product), faint("("+via+")"))
	case resolver.OutcomeAmbiguous:
		fmt.Printf("%s %s is ambiguous, pick one of these:\n", warn("?"), bold(label))
		for i, c := range res.Candidates {
			fmt.Printf("    %d. %s %s\n", i+1, productLine(c.Product), faint(fmt.Sprintf("score %.2f", c.Score)))
		}
		fmt.Printf("    then run: trolley pick %q <stockcode>\n", res.Label)
	case resolver.OutcomeNoMatch:
		fmt.Printf("%s %s: nothing matched\n", red("✘"), bold(label))
	default:
		fmt.Printf("%s %s: could not resolve\n", red("✘"), bold(label))
	}
	if res.Stale {
		fmt.Println(faint("    (from cached results, the store did not answer)"))
	}
}

var pickCmd = &cobra.Command{
	Use:   "pick <label> <stockcode>",
	Short: "Save the product to use for an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad stockcode %q", args[1])
		}
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		pref, err := a.resolver.SavePreference(ctxOf(cmd), args[0], code)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s -> %s (%d)\n", green("Saved"), bold(pref.Label), pref.ProductName, pref.Stockcode)
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <label>",
	Short: "Delete the saved product for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.resolver.Forget(ctxOf(cmd), args[0]); err != nil {
			return fmt.Errorf("forget %q: %w", args[0], err)
		}
		fmt.Printf("Forgot %s\n", bold(grocery.NormalizeLabel(args[0])))
		return nil
	},
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "List saved item preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		prefs, err := a.db.ListPreferences(ctxOf(cmd))
		if err != nil {
			return err
		}
		if len(prefs) == 0 {
			fmt.Println("No preferences saved yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tPRODUCT\tSTOCKCODE\tSOURCE\tCONFIDENCE\tBOUGHT\t")
		for _, p := range prefs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2f\t%d\t\n", p.Label, utils.Truncate(p.ProductName, 40), p.Stockcode, p.Source, p.Confidence, p.PurchaseCount)
		}
		return w.Flush()
	},
}

// errPartial is returned when a command did some but not all of its work.
var errPartial = errors.New("some items failed")

func init() {
	rootCmd.AddCommand(resolveCmd, pickCmd, forgetCmd, prefsCmd)
	resolveCmd.Flags().String("brand", "", "Preferred brand")
	resolveCmd.Flags().String("size", "", "Preferred package size, e.g. 2L")
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"
)

var completeCmd = &cobra.Command{
	Use:   "complete [list]",
	Short: "Record a finished shop in the ledger",
	Long: `Record a finished shop. The list's resolved items are written to the
purchase ledger, their prices to the price history, and the products you
bought become stronger preferences. The list is marked purchased.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paid, _ := cmd.Flags().GetString("total-paid")
		notes, _ := cmd.Flags().GetString("notes")
		confirm, _ := cmd.Flags().GetBool("confirm")

		var total decimal.NullDecimal
		if paid = strings.TrimPrefix(strings.TrimSpace(paid), "$"); paid != "" {
			d, err := decimal.NewFromString(paid)
			if err != nil {
				return fmt.Errorf("bad --total-paid %q: %w", paid, err)
			}
			total = decimal.NewNullDecimal(d)
		}

		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		l, err := findList(cmd, a, args)
		if err != nil {
			return err
		}
		if !confirm {
			if err := showList(cmd, a, l, true); err != nil {
				return err
			}
			fmt.Println(faint("\nThis would record the resolved items above as purchased. Re-run with --confirm."))
			return nil
		}

		res, err := a.workflow.Complete(ctxOf(cmd), l.ID, total, notes)
		if err != nil {
			return err
		}
		fmt.Printf("%s order %d: %d item(s), estimate %s", green("Recorded"), res.Order.ID, len(res.Order.Items), utils.Money(res.Order.TotalEstimate))
		if res.Order.TotalPaid.Valid {
			fmt.Printf(", paid %s", bold(utils.Money(res.Order.TotalPaid.Decimal)))
		}
		fmt.Println()
		if len(res.Skipped) > 0 {
			fmt.Println(warn("Not recorded (unresolved): " + strings.Join(res.Skipped, ", ")))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completeCmd)
	completeCmd.Flags().String("total-paid", "", "Amount actually paid, e.g. 84.20")
	completeCmd.Flags().String("notes", "", "Free-text note stored with the order")
	completeCmd.Flags().Bool("confirm", false, "Actually record the order")
}

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"
	"github.com/trolleyctl/trolley/pkg/grocery"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Manage shopping lists",
	Long: `Manage shopping lists. Commands that take [list] accept a list id or
name and default to the newest active list.`,
}

var listCreateCmd = &cobra.Command{
	Use:   "create <name> [item...]",
	Short: "Create a list, optionally with items",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		l, _, err := a.workflow.CreateList(ctxOf(cmd), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Created list %s (id %d)\n", bold(l.Name), l.ID)
		return showList(cmd, a, l, false)
	},
}

var listShowCmd = &cobra.Command{
	Use:   "show [list]",
	Short: "Show a list's items",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolve, _ := cmd.Flags().GetBool("resolve")
		force, _ := cmd.Flags().GetBool("force")
		a, err := openApp(cmd, resolve)
		if err != nil {
			return err
		}
		defer a.close()

		l, err := findList(cmd, a, args)
		if err != nil {
			return err
		}
		if resolve {
			res, err := a.workflow.ResolveList(ctxOf(cmd), l.ID, force)
			if err != nil {
				return err
			}
			for _, ir := range res.Items {
				if !ir.Skipped && !ir.Resolution.Status.Resolved() {
					printResolution(ir.Resolution)
				}
			}
			fmt.Printf("%d resolved, %d ambiguous, %d unresolved\n\n", res.Resolved, res.Ambiguous, res.Unresolved)
			for _, e := range res.Errors {
				utils.Log.Warnf("%v", e)
			}
			l = res.List
		}
		return showList(cmd, a, l, true)
	},
}

func showList(cmd *cobra.Command, a *app, l grocery.List, header bool) error {
	items, err := a.db.ListItems(ctxOf(cmd), l.ID)
	if err != nil {
		return err
	}
	if header {
		fmt.Printf("%s (id %d, %s)\n", bold(l.Name), l.ID, l.Status)
	}
	if len(items) == 0 {
		fmt.Println("  (empty)")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QTY\tITEM\tPRODUCT\tPRICE\tSTATUS\t")
	for _, it := range items {
		product, price := "-", "-"
		if it.Stockcode != 0 {
			product = utils.Truncate(it.ProductName, 40)
			price = utils.Money(it.LineTotal())
			if it.OnSpecial {
				price += " " + green("*")
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", it.Quantity, it.Label, product, price, statusColor(it.Status))
	}
	fmt.Fprintf(w, "\t\tESTIMATE\t%s\t\t\n", bold(utils.Money(l.TotalEstimate)))
	return w.Flush()
}

var listAddCmd = &cobra.Command{
	Use:   "add <item> [item...]",
	Short: "Add items to a list, merging quantities",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, _ := cmd.Flags().GetString("list")
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		l, err := findList(cmd, a, optional(ref))
		if err != nil {
			return err
		}
		items, err := a.workflow.AddItems(ctxOf(cmd), l.ID, args)
		for _, it := range items {
			fmt.Printf("%s %s (now %d)\n", green("+"), it.Label, it.Quantity)
		}
		return err
	},
}

var listRemoveCmd = &cobra.Command{
	Use:   "remove <item> [item...]",
	Short: "Remove items from a list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, _ := cmd.Flags().GetString("list")
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		l, err := findList(cmd, a, optional(ref))
		if err != nil {
			return err
		}
		return a.workflow.RemoveItems(ctxOf(cmd), l.ID, args)
	},
}

var listLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List shopping lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		lists, err := a.db.ListLists(ctxOf(cmd), grocery.ListStatus(status), limit)
		if err != nil {
			return err
		}
		if len(lists) == 0 {
			fmt.Println("No lists.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tESTIMATE\tUPDATED\t")
		for _, l := range lists {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", l.ID, l.Name, l.Status, utils.Money(l.TotalEstimate), l.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var listClearCmd = &cobra.Command{
	Use:   "clear [list]",
	Short: "Remove every item from a list",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
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
			fmt.Printf("This would clear every item from %s. Re-run with --confirm.\n", bold(l.Name))
			return nil
		}
		if err := a.db.ClearList(ctxOf(cmd), l.ID); err != nil {
			return err
		}
		fmt.Printf("Cleared %s\n", bold(l.Name))
		return nil
	},
}

var listArchiveCmd = &cobra.Command{
	Use:   "archive [list]",
	Short: "Archive a list without recording a purchase",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		l, err := findList(cmd, a, args)
		if err != nil {
			return err
		}
		return a.db.SetListStatus(ctxOf(cmd), l.ID, grocery.ListArchived)
	},
}

func optional(ref string) []string {
	if ref == "" {
		return nil
	}
	return []string{ref}
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.AddCommand(listCreateCmd, listShowCmd, listAddCmd, listRemoveCmd, listLsCmd, listClearCmd, listArchiveCmd)

	listShowCmd.Flags().Bool("resolve", false, "Resolve pending items before showing")
	listShowCmd.Flags().Bool("force", false, "With --resolve, also re-resolve auto-resolved items")
	listAddCmd.Flags().String("list", "", "List id or name (default: newest active list)")
	listRemoveCmd.Flags().String("list", "", "List id or name (default: newest active list)")
	listLsCmd.Flags().String("status", "", "Only lists with this status: active, purchased, archived")
	listLsCmd.Flags().Int("limit", 20, "Maximum number of lists")
	listClearCmd.Flags().Bool("confirm", false, "Actually clear the list")
}

package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the trolley database",
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		abs, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", abs)
		}

		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, abs, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, abs)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print counts of what the database holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()
		return printStats(cmd, a)
	},
}

func printStats(cmd *cobra.Command, a *app) error {
	stats, err := a.db.GetStats(ctxOf(cmd))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "TABLE\tROWS\t")
	fmt.Fprintf(w, "preferences\t%d\t\n", stats.Preferences)
	fmt.Fprintf(w, "lists (active)\t%d (%d)\t\n", stats.Lists, stats.ActiveLists)
	fmt.Fprintf(w, "orders\t%d\t\n", stats.Orders)
	fmt.Fprintf(w, "price points\t%d\t\n", stats.PricePoints)
	fmt.Fprintf(w, "cached searches\t%d\t\n", stats.CacheEntries)
	if !stats.LastOrderAt.IsZero() {
		fmt.Fprintf(w, "last order\t%s\t\n", stats.LastOrderAt.Local().Format("2006-01-02"))
	}
	return w.Flush()
}

var pruneCacheCmd = &cobra.Command{
	Use:   "prune-cache",
	Short: "Delete cached catalog answers older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		a, err := openApp(cmd, true)
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.db.SearchCache().Prune(ctxOf(cmd), time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d cached catalog answer(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd, dbStatsCmd, pruneCacheCmd)
	pruneCacheCmd.Flags().Duration("older-than", 7*24*time.Hour, "Age of entries to remove")
}

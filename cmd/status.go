package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trolleyctl/trolley/internal/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show version, credentials and database state",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		abs, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Version\t%s\t\n", Version)
		fmt.Fprintf(w, "Config\t%s\t\n", viper.ConfigFileUsed())
		fmt.Fprintf(w, "Store\t%s\t\n", storeName(cmd))
		cookies := red("missing")
		if viper.GetString("woolworths.cookies") != "" {
			cookies = green("set")
		}
		fmt.Fprintf(w, "Woolworths cookies\t%s\t\n", cookies)
		fmt.Fprintf(w, "Database\t%s\t\n", abs)
		w.Flush()

		if _, err := os.Stat(abs); os.IsNotExist(err) {
			fmt.Println(faint("\nNo database yet. It is created on first use."))
			return nil
		}
		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()
		return printStats(cmd, a)
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Save store credentials and defaults to the config file",
	Long: `Save store credentials and defaults to the config file.

Copy the Cookie request header from a logged-in browser session on
woolworths.com.au and pass it with --cookies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		changed := false
		for flag, key := range map[string]string{
			"cookies": "woolworths.cookies",
			"apikey":  "woolworths.apikey",
			"store":   "store",
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				viper.Set(key, v)
				changed = true
			}
		}
		if !changed {
			return cmd.Help()
		}

		path := viper.ConfigFileUsed()
		if path == "" {
			home, err := homedir.Dir()
			if err != nil {
				return err
			}
			path = filepath.Join(home, ".trolley.yaml")
		}
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("could not write %s: %w", path, err)
		}
		if err := os.Chmod(path, 0o600); err != nil {
			utils.Log.Warnf("Could not restrict permissions on %s: %v", path, err)
		}
		fmt.Printf("Saved to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, setupCmd)
	setupCmd.Flags().String("cookies", "", "Woolworths Cookie header from a logged-in browser session")
	setupCmd.Flags().String("apikey", "", "Woolworths API key, if your account needs one")
}

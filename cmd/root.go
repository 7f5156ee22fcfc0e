package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/trolleyctl/trolley/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// Version is set at build time.
var Version = "dev"

const (
	LOGO = `  _             _ _
 | |_ _ _ ___ | | |___ _  _
 |  _| '_/ _ \| | / -_) || |
  \__|_| \___/|_|_\___|\_, |
                       |__/
`
)

var rootCmd = &cobra.Command{
	Use:   "trolley",
	Short: "Turn a grocery list into a Woolworths cart.",
	Long: LOGO + `
trolley resolves free-text shopping list items to store products, remembers
what you usually buy, fills your online trolley and keeps a ledger of every
shop.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute runs the root command. Cancelling ctx aborts in-flight store calls.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		if hint := guidance(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.trolley.yaml)")

	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/trolley/trolley.sqlite)")
	rootCmd.PersistentFlags().String("store", "", "Store to use: woolworths, danmurphys or dev (default from config, else woolworths)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	home, err := homedir.Dir()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(home)
		viper.SetConfigName(".trolley")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("trolley")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("store", "woolworths")
	viper.SetDefault("woolworths.cookies", "")
	viper.SetDefault("woolworths.apikey", "")
	viper.SetDefault("woolworths.baseurl", "")
	viper.SetDefault("danmurphys.baseurl", "")
	viper.SetDefault("danmurphys.homepage", "")
	viper.SetDefault("http.retrymax", 2)
	viper.SetDefault("catalog.rate", 5)
	viper.SetDefault("catalog.period", "1s")
	viper.SetDefault("catalog.timeout", "10s")
	viper.SetDefault("catalog.searchttl", "1h")
	viper.SetDefault("catalog.productttl", "24h")
	viper.SetDefault("catalog.specialsttl", "4h")
	viper.SetDefault("catalog.stalebound", "24h")
	viper.SetDefault("match.minscore", 0.4)
	viper.SetDefault("match.minmargin", 0.1)
	viper.SetDefault("match.maxcandidates", 5)
	viper.SetDefault("cart.concurrency", 3)
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// first run: write the defaults out for the user to fill in
			if err := viper.SafeWriteConfigAs(filepath.Join(home, ".trolley.yaml")); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating config file: %s\n", err)
			}
		} else if cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
		}
	}

	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if err := utils.SetLogLevel(levelString); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if noColor, _ := rootCmd.PersistentFlags().GetBool("no-color"); noColor {
		color.NoColor = true
	}
}

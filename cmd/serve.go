package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trolleyctl/trolley/internal/server"
	"github.com/trolleyctl/trolley/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local JSON API",
	Long: `Serve a JSON API over the local database for scripts and home
automation: resolve items, manage preferences and lists, read the usual
items, orders and spending. Set server.username and server.password in the
config file to require basic auth.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")

		a, err := openApp(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		dbPath, _ := cmd.Flags().GetString("dbpath")
		lock, err := utils.NewDBLock(dbPath)
		if err != nil {
			return err
		}
		s := &server.Server{
			DB:       a.db,
			Resolver: a.resolver,
			Workflow: a.workflow,
			Ledger:   a.ledger,
			Lock:     lock,
			Username: viper.GetString("server.username"),
			Password: viper.GetString("server.password"),
		}
		if s.Username == "" && s.Password == "" {
			utils.Log.Warn("No server.username/server.password set, the API is open to anyone who can reach it")
		}
		return s.Start(listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "127.0.0.1:8377", "HTTP listen address")
}

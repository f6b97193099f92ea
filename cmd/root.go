package cmd

import (
	"github.com/spf13/cobra"

	"whiteboard/config"
	"whiteboard/pkg/logger"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "whiteboard",
	Short: "Whiteboard - real-time collaborative drawing backend",
	Long: `Whiteboard serves the real-time drawing channel over WebSockets, persists every
drawing event to Postgres before it is broadcast, and exposes the board and
mind-map REST API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
}

// loadConfig reads the configuration and sets up the global logger from it.
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	if !cfg.EnvFileLoaded {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}
	return cfg
}

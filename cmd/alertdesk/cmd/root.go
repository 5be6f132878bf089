package cmd

import (
	"fmt"
	"os"

	"AlertDesk/pkg/config"
	"AlertDesk/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	// addr overrides ADDR when set.
	addr string

	rootCmd = &cobra.Command{
		Use:   "alertdesk",
		Short: "Multi-tenant emergency alert backend.",
		Long: `AlertDesk receives alerts from beneficiaries over SMS or the REST API,
tracks them through New, Attended and Closed, and pushes new alerts live to the
operators of the owning organization over websocket or server-sent events.

Configuration is read from the environment and from .env.<APP_ENV> / .env files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := config.Load(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				config.GlobalConfig.Addr = addr
			}
			return logger.Init(config.GlobalConfig.Log, config.GlobalConfig.Mode)
		},
	}
)

// Execute runs the CLI and exits with non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", "", "HTTP listen address, overrides ADDR")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

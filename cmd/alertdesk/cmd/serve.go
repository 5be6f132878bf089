package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"AlertDesk/internal/bootstrap"
	"AlertDesk/pkg/config"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, live gateways and scheduled jobs.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		app, err := bootstrap.New(ctx, config.GlobalConfig)
		if err != nil {
			return err
		}
		return app.Run(ctx)
	},
}

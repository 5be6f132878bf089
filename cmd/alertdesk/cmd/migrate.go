package cmd

import (
	"AlertDesk/internal/bootstrap"
	"AlertDesk/pkg/config"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return bootstrap.Migrate(config.GlobalConfig)
	},
}

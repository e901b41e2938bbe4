package cmd

import (
	"github.com/spf13/cobra"

	"github.com/guidepath/guidepath/pkg/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the postgres schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := postgres.NewStore(&cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.AutoMigrate(); err != nil {
			return err
		}
		logger.Info("schema migrated")
		return nil
	},
}

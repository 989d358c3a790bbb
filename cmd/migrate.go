package cmd

import (
	"referral-ledger/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		if err := database.Migrate(a.db); err != nil {
			return err
		}
		a.log.Info("schema migrated")
		return nil
	},
}

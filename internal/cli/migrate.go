package cli

import (
	"casino_ledger/internal/app"
	"casino_ledger/internal/database"
	"casino_ledger/internal/logger"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := database.Open(cfg.DBConnStr, database.DefaultOptions())
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := app.Migrate(db); err != nil {
			return err
		}
		logger.Info("migration complete")
		return nil
	},
}

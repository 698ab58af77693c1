package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"padlink/api/internal/store"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	Long:  "Apply pending database migrations and exit. With --rollback N the last N applied migrations are reverted instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.DefaultPoolOptions())
		if err != nil {
			return err
		}
		defer db.Close()

		if rollbackSteps > 0 {
			reverted, err := store.RollbackMigrations(cmd.Context(), db, cfg.MigrationsDir, rollbackSteps)
			if err != nil {
				return err
			}
			logger.Info("migrations reverted", zap.Strings("versions", reverted))
			return nil
		}

		applied, err := store.ApplyMigrations(cmd.Context(), db, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Strings("versions", applied))
		return nil
	},
}

func init() {
	migrateCmd.Flags().IntVar(&rollbackSteps, "rollback", 0, "revert the last N applied migrations")
	rootCmd.AddCommand(migrateCmd)
}

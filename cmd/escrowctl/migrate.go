package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EdulogyIT/holibayt-backend/internal/infrastructure/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the escrow tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := database.NewConnection(cmd.Context(), &cfg.Database, log)
			if err != nil {
				return err
			}
			defer database.Close(db, log)

			if err := database.Migrate(db, log); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

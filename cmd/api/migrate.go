package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.db.Close()

			if err := a.db.Migrate(cmd.Context()); err != nil {
				a.logger.Error("failed to run migrations", slog.Any("error", err))
				return err
			}
			a.logger.Info("migrations applied")
			return nil
		},
	}
}

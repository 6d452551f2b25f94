package main

import (
	"fmt"
	"log/slog"

	"github.com/BradenHooton/authenticator/internal/background"
	"github.com/BradenHooton/authenticator/internal/repositories"
	pkglogger "github.com/BradenHooton/authenticator/pkg/logger"
	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Clear expired password reset codes and tokens once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.db.Close()

			cm := background.NewCleanupManager(
				repositories.NewUserRepository(a.db),
				pkglogger.NewAuditLogger(a.logger),
				a.logger,
				a.cfg.Auth.ResetCleanupInterval,
			)
			cleared, err := cm.RunOnce(cmd.Context())
			if err != nil {
				a.logger.Error("cleanup failed", slog.Any("error", err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d expired password resets\n", cleared)
			return nil
		},
	}
}

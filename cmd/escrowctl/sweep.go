package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/app"
)

func sweepCmd() *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release escrow for every booking past its automatic release time",
		Long: `Run the automatic release sweep once and print its summary.

With --every the sweep repeats on that interval until interrupted. Several
sweeps may run at the same time against one database; each booking is
released by exactly one of them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, func(a *app.App, log *zap.Logger) error {
				if every <= 0 {
					return runSweep(ctx, cmd, a)
				}

				ticker := time.NewTicker(every)
				defer ticker.Stop()
				for {
					if err := runSweep(ctx, cmd, a); err != nil {
						log.Error("Sweep failed", zap.Error(err))
					}
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}

	cmd.Flags().DurationVar(&every, "every", 0, "repeat the sweep on this interval until interrupted")
	return cmd
}

func runSweep(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	summary, err := a.Scheduler.Sweep(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), summary)
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair bookings and commissions left behind by partially recorded releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App, log *zap.Logger) error {
				summary, err := a.Reconciler.Run(cmd.Context())
				if err != nil {
					return err
				}
				if summary.Failed > 0 {
					log.Warn("Some payments still need manual attention",
						zap.Strings("payment_ids", summary.FailedPaymentIDs))
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

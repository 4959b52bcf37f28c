package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/app"
)

func webhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Inspect stored Stripe webhook events",
	}

	var limit int
	pending := &cobra.Command{
		Use:   "pending",
		Short: "List events that were received but not processed successfully",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App, _ *zap.Logger) error {
				events, err := a.Webhooks.PendingEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), events)
			})
		},
	}
	pending.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of events")

	cmd.AddCommand(pending)
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/app"
	notificationmsg "github.com/EdulogyIT/holibayt-backend/internal/infrastructure/messaging"
)

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Follow escrow notifications published to Redis",
	}

	var userID string
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Print notifications as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, func(a *app.App, log *zap.Logger) error {
				if a.Redis == nil {
					return errors.New("redis is not configured")
				}

				channel := notificationmsg.NotificationsChannel
				if userID != "" {
					channel = notificationmsg.UserChannel(userID)
				}

				messages, err := a.Redis.Subscribe(ctx, channel)
				if err != nil {
					return err
				}
				log.Info("Watching notifications", zap.String("channel", channel))

				for msg := range messages {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", msg.Time.Format("15:04:05"), msg.Payload)
				}
				return nil
			})
		},
	}
	watch.Flags().StringVar(&userID, "user", "", "only show notifications for this user id")

	cmd.AddCommand(watch)
	return cmd
}

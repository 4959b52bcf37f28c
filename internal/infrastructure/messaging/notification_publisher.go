package messaging

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/pkg/messaging"
)

// NotificationsChannel receives every notification; per-user channels are
// NotificationsChannel + ":" + userID.
const NotificationsChannel = "notifications"

// UserChannel is the channel a client of userID subscribes to.
func UserChannel(userID string) string {
	return fmt.Sprintf("%s:%s", NotificationsChannel, userID)
}

// NotificationPublisher fans stored notifications out over Redis pub/sub.
type NotificationPublisher struct {
	client messaging.RedisClient
	logger *zap.Logger
}

func NewNotificationPublisher(client messaging.RedisClient, logger *zap.Logger) *NotificationPublisher {
	return &NotificationPublisher{
		client: client,
		logger: logger.Named("notification-publisher"),
	}
}

func (p *NotificationPublisher) Publish(ctx context.Context, n *model.Notification) error {
	if err := p.client.Publish(ctx, UserChannel(n.UserID), n); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", UserChannel(n.UserID), err)
	}
	if err := p.client.Publish(ctx, NotificationsChannel, n); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", NotificationsChannel, err)
	}

	p.logger.Debug("Notification published",
		zap.String("user_id", n.UserID),
		zap.String("type", n.Type))
	return nil
}

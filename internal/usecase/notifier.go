package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

// NotificationPublisher pushes a stored notification to live subscribers.
type NotificationPublisher interface {
	Publish(ctx context.Context, n *model.Notification) error
}

// Notifier delivers user-facing messages. Delivery is fire-and-forget: failures
// are logged and never returned.
type Notifier struct {
	repo      domainRepo.NotificationRepository
	publisher NotificationPublisher
	logger    *zap.Logger
}

// NewNotifier creates a notifier. publisher may be nil.
func NewNotifier(repo domainRepo.NotificationRepository, publisher NotificationPublisher, logger *zap.Logger) *Notifier {
	return &Notifier{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (n *Notifier) Notify(ctx context.Context, userID, title, message, notificationType, relatedID string) {
	if n == nil || userID == "" {
		return
	}

	notification := &model.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    notificationType,
	}
	if relatedID != "" {
		notification.RelatedID = &relatedID
	}

	if err := n.repo.Insert(ctx, notification); err != nil {
		n.logger.Warn("Failed to store notification",
			zap.String("user_id", userID),
			zap.String("type", notificationType),
			zap.Error(err))
		return
	}

	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, notification); err != nil {
		n.logger.Warn("Failed to publish notification",
			zap.String("user_id", userID),
			zap.String("notification_id", notification.ID),
			zap.Error(err))
	}
}

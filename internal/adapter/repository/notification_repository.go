package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) domainRepo.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Insert(ctx context.Context, n *model.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

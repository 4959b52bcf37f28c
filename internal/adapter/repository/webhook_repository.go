package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

const maxRetryBackoff = 24 * time.Hour

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WebhookRepository {
	return &webhookRepository{
		db:     db,
		logger: logger,
	}
}

func (r *webhookRepository) SaveEvent(ctx context.Context, eventID, eventType string, data json.RawMessage) error {
	var eventData map[string]interface{}
	if err := json.Unmarshal(data, &eventData); err != nil {
		r.logger.Warn("Failed to parse webhook event data",
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	var stripeCreatedAt *time.Time
	if created, ok := eventData["created"].(float64); ok {
		t := time.Unix(int64(created), 0).UTC()
		stripeCreatedAt = &t
	}

	var apiVersion *string
	if v, ok := eventData["api_version"].(string); ok && v != "" {
		apiVersion = &v
	}

	if eventData == nil {
		eventData = map[string]interface{}{}
	}

	event := &model.StripeWebhookEvent{
		StripeEventID:   eventID,
		EventType:       eventType,
		Status:          model.WebhookStatusPending,
		Data:            model.JSONB(eventData),
		APIVersion:      apiVersion,
		StripeCreatedAt: stripeCreatedAt,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_event_id"}}, DoNothing: true}).
		Create(event).Error
	if err != nil {
		r.logger.Error("Failed to save webhook event",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return fmt.Errorf("failed to save webhook event: %w", err)
	}

	return nil
}

func (r *webhookRepository) GetEvent(ctx context.Context, eventID string) (*model.StripeWebhookEvent, error) {
	var event model.StripeWebhookEvent

	err := r.db.WithContext(ctx).
		Where("stripe_event_id = ?", eventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return &event, nil
}

func (r *webhookRepository) MarkProcessing(ctx context.Context, eventID string) error {
	return r.setStatus(ctx, eventID, map[string]interface{}{
		"status":              model.WebhookStatusProcessing,
		"processing_attempts": gorm.Expr("processing_attempts + 1"),
	})
}

func (r *webhookRepository) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	return r.setStatus(ctx, eventID, map[string]interface{}{
		"status":       model.WebhookStatusCompleted,
		"processed_at": &now,
		"last_error":   nil,
	})
}

// MarkFailed records err and schedules the next retry with exponential backoff
// (10m, 20m, 40m ... capped at 24h).
func (r *webhookRepository) MarkFailed(ctx context.Context, eventID string, cause error) error {
	event, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}

	attempts := event.ProcessingAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := 5 * time.Minute * time.Duration(1<<min(attempts, 10))
	if backoff > maxRetryBackoff {
		backoff = maxRetryBackoff
	}
	nextRetry := time.Now().UTC().Add(backoff)
	errorMsg := cause.Error()

	return r.setStatus(ctx, eventID, map[string]interface{}{
		"status":              model.WebhookStatusFailed,
		"processing_attempts": attempts,
		"last_error":          &errorMsg,
		"next_retry_at":       &nextRetry,
	})
}

func (r *webhookRepository) setStatus(ctx context.Context, eventID string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.StripeWebhookEvent{}).
		Where("stripe_event_id = ?", eventID).
		Updates(fields)
	if result.Error != nil {
		r.logger.Error("Failed to update webhook event",
			zap.String("event_id", eventID),
			zap.Any("status", fields["status"]),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update webhook event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}
	return nil
}

func (r *webhookRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.StripeWebhookEvent, error) {
	var events []*model.StripeWebhookEvent

	query := r.db.WithContext(ctx).
		Where("status IN ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			[]model.WebhookStatus{model.WebhookStatusPending, model.WebhookStatusFailed},
			time.Now().UTC()).
		Order("created_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&events).Error; err != nil {
		r.logger.Error("Failed to get pending webhook events", zap.Error(err))
		return nil, fmt.Errorf("failed to get pending webhook events: %w", err)
	}

	return events, nil
}

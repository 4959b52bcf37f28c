package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

type paymentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB, logger *zap.Logger) domainRepo.PaymentRepository {
	return &paymentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		r.logger.Error("Failed to create payment",
			zap.String("booking_id", payment.BookingID),
			zap.Int64("amount", payment.Amount),
			zap.Error(err))
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	return r.getWhere(ctx, "id = ?", id)
}

func (r *paymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	return r.getWhere(ctx, "provider_session_id = ?", sessionID)
}

func (r *paymentRepository) getWhere(ctx context.Context, cond string, arg string) (*model.Payment, error) {
	var payment model.Payment

	err := r.db.WithContext(ctx).Where(cond, arg).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

func (r *paymentRepository) UpdateWhere(ctx context.Context, id string, expected, fields domainRepo.Fields) (bool, error) {
	applied, err := updateWhere(ctx, r.db, &model.Payment{}, "id", id, expected, fields)
	if err != nil {
		r.logger.Error("Failed to update payment",
			zap.String("payment_id", id),
			zap.Any("expected", expected),
			zap.Error(err))
		return false, fmt.Errorf("failed to update payment %s: %w", id, err)
	}
	return applied, nil
}

func (r *paymentRepository) FindReleasedNeedingRepair(ctx context.Context, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment

	query := r.db.WithContext(ctx).
		Joins("JOIN bookings ON bookings.id = payments.booking_id").
		Joins("LEFT JOIN commission_transactions ON commission_transactions.payment_id = payments.id").
		Where("payments.escrow_status = ?", model.EscrowStatusReleased).
		Where("bookings.status <> ? OR commission_transactions.id IS NULL OR commission_transactions.status <> ?",
			model.BookingStatusCompleted, model.CommissionStatusCompleted).
		Order("payments.escrow_released_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&payments).Error; err != nil {
		r.logger.Error("Failed to query released payments needing repair", zap.Error(err))
		return nil, fmt.Errorf("failed to query released payments: %w", err)
	}

	return payments, nil
}

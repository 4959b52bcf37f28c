package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

type bookingRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *gorm.DB, logger *zap.Logger) domainRepo.BookingRepository {
	return &bookingRepository{
		db:     db,
		logger: logger,
	}
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	var booking model.Booking

	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking %s: %w", id, err)
	}

	return &booking, nil
}

func (r *bookingRepository) UpdateWhere(ctx context.Context, id string, expected, fields domainRepo.Fields) (bool, error) {
	applied, err := updateWhere(ctx, r.db, &model.Booking{}, "id", id, expected, fields)
	if err != nil {
		r.logger.Error("Failed to update booking",
			zap.String("booking_id", id),
			zap.Any("expected", expected),
			zap.Error(err))
		return false, fmt.Errorf("failed to update booking %s: %w", id, err)
	}
	return applied, nil
}

func (r *bookingRepository) ClaimAutoRelease(ctx context.Context, id string) (bool, error) {
	return r.UpdateWhere(ctx, id,
		domainRepo.Fields{
			"auto_release_scheduled": false,
			"status":                 model.BookingStatusPaymentEscrowed,
		},
		domainRepo.Fields{"auto_release_scheduled": true},
	)
}

func (r *bookingRepository) ResetAutoReleaseClaim(ctx context.Context, id string) (bool, error) {
	return r.UpdateWhere(ctx, id,
		domainRepo.Fields{"auto_release_scheduled": true},
		domainRepo.Fields{"auto_release_scheduled": false},
	)
}

func (r *bookingRepository) FindEligibleForAutoRelease(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	var bookings []*model.Booking

	query := r.db.WithContext(ctx).
		Where("status = ? AND auto_release_scheduled = ?", model.BookingStatusPaymentEscrowed, false).
		Where("escrow_release_eligible_at IS NOT NULL AND escrow_release_eligible_at <= ?", now).
		Order("escrow_release_eligible_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&bookings).Error; err != nil {
		r.logger.Error("Failed to query bookings eligible for auto release", zap.Error(err))
		return nil, fmt.Errorf("failed to query eligible bookings: %w", err)
	}

	return bookings, nil
}

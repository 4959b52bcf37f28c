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

type commissionTransactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewCommissionTransactionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.CommissionTransactionRepository {
	return &commissionTransactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *commissionTransactionRepository) Create(ctx context.Context, tx *model.CommissionTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		r.logger.Error("Failed to create commission transaction",
			zap.String("payment_id", tx.PaymentID),
			zap.Error(err))
		return fmt.Errorf("failed to create commission transaction: %w", err)
	}
	return nil
}

func (r *commissionTransactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*model.CommissionTransaction, error) {
	var tx model.CommissionTransaction

	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get commission transaction: %w", err)
	}

	return &tx, nil
}

func (r *commissionTransactionRepository) UpdateByPaymentWhere(ctx context.Context, paymentID string, expected, fields domainRepo.Fields) (bool, error) {
	applied, err := updateWhere(ctx, r.db, &model.CommissionTransaction{}, "payment_id", paymentID, expected, fields)
	if err != nil {
		r.logger.Error("Failed to update commission transaction",
			zap.String("payment_id", paymentID),
			zap.Error(err))
		return false, fmt.Errorf("failed to update commission transaction: %w", err)
	}
	return applied, nil
}

package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/commission"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

// ReconcileSummary reports one repair pass.
type ReconcileSummary struct {
	Examined            int      `json:"examined"`
	BookingsRepaired    int      `json:"bookings_repaired"`
	CommissionsRepaired int      `json:"commissions_repaired"`
	Failed              int      `json:"failed"`
	FailedPaymentIDs    []string `json:"failed_payment_ids,omitempty"`
}

// Reconciler repairs released payments whose booking or commission row was not
// updated after the release. The released payment row is authoritative; the
// processor is never called.
type Reconciler struct {
	bookingRepo    domainRepo.BookingRepository
	paymentRepo    domainRepo.PaymentRepository
	propertyRepo   domainRepo.PropertyRepository
	commissionRepo domainRepo.CommissionTransactionRepository
	settings       Settings
	batchSize      int
	logger         *zap.Logger
}

func NewReconciler(
	bookingRepo domainRepo.BookingRepository,
	paymentRepo domainRepo.PaymentRepository,
	propertyRepo domainRepo.PropertyRepository,
	commissionRepo domainRepo.CommissionTransactionRepository,
	settings Settings,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		bookingRepo:    bookingRepo,
		paymentRepo:    paymentRepo,
		propertyRepo:   propertyRepo,
		commissionRepo: commissionRepo,
		settings:       settings,
		batchSize:      settings.SweepBatchSize,
		logger:         logger.Named("reconciler"),
	}
}

func (r *Reconciler) Run(ctx context.Context) (*ReconcileSummary, error) {
	payments, err := r.paymentRepo.FindReleasedNeedingRepair(ctx, r.batchSize)
	if err != nil {
		return nil, err
	}

	summary := &ReconcileSummary{Examined: len(payments)}
	for _, payment := range payments {
		bookingFixed, commissionFixed, ok := r.repair(ctx, payment)
		if bookingFixed {
			summary.BookingsRepaired++
		}
		if commissionFixed {
			summary.CommissionsRepaired++
		}
		if !ok {
			summary.Failed++
			summary.FailedPaymentIDs = append(summary.FailedPaymentIDs, payment.ID)
		}
	}

	r.logger.Info("Reconciliation finished",
		zap.Int("examined", summary.Examined),
		zap.Int("bookings_repaired", summary.BookingsRepaired),
		zap.Int("commissions_repaired", summary.CommissionsRepaired),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

func (r *Reconciler) repair(ctx context.Context, payment *model.Payment) (bookingFixed, commissionFixed, ok bool) {
	logger := r.logger.With(
		zap.String("payment_id", payment.ID),
		zap.String("booking_id", payment.BookingID))

	releasedAt := payment.UpdatedAt
	if payment.EscrowReleasedAt != nil {
		releasedAt = *payment.EscrowReleasedAt
	}
	guestConfirmed := payment.EscrowReleaseReason != nil &&
		*payment.EscrowReleaseReason == model.ReleaseReasonGuestConfirmed

	ok = true

	booking, err := r.bookingRepo.GetByID(ctx, payment.BookingID)
	switch {
	case err != nil:
		logger.Error("Failed to load booking", zap.Error(err))
		ok = false
	case booking == nil:
		logger.Error("Released payment references a missing booking")
		ok = false
	case booking.Status == model.BookingStatusPaymentEscrowed:
		applied, err := r.bookingRepo.UpdateWhere(ctx, booking.ID,
			domainRepo.Fields{"status": model.BookingStatusPaymentEscrowed},
			domainRepo.Fields{
				"status":                     model.BookingStatusCompleted,
				"completed_at":               releasedAt,
				"guest_confirmed_completion": guestConfirmed,
			})
		if err != nil {
			logger.Error("Failed to complete booking", zap.Error(err))
			ok = false
		} else {
			bookingFixed = applied
		}
	case booking.Status != model.BookingStatusCompleted:
		logger.Warn("Released payment on a booking in unexpected status",
			zap.String("booking_status", string(booking.Status)))
		ok = false
	}

	commissionFixed, commissionOK := r.repairCommission(ctx, logger, payment, releasedAt)
	if !commissionOK {
		ok = false
	}

	if bookingFixed || commissionFixed {
		logger.Info("Repaired released payment",
			zap.Bool("booking_repaired", bookingFixed),
			zap.Bool("commission_repaired", commissionFixed))
	}
	return bookingFixed, commissionFixed, ok
}

func (r *Reconciler) repairCommission(ctx context.Context, logger *zap.Logger, payment *model.Payment, releasedAt time.Time) (fixed, ok bool) {
	existing, err := r.commissionRepo.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		logger.Error("Failed to load commission transaction", zap.Error(err))
		return false, false
	}
	if existing != nil && existing.Status == model.CommissionStatusCompleted {
		return false, true
	}

	snapshot := payment.CommissionRate
	if !snapshot.Valid {
		property, err := r.propertyRepo.GetByID(ctx, payment.PropertyID)
		if err != nil {
			logger.Error("Failed to load property", zap.Error(err))
			return false, false
		}
		if property != nil {
			snapshot = property.CommissionRate
		}
	}
	rate := commission.ResolveRate(r.settings.DefaultRate, snapshot)
	split := commission.Compute(payment.Amount, rate)

	if !completeCommission(ctx, r.commissionRepo, logger, payment, split, rate, payment.ProviderTransferID, releasedAt) {
		return false, false
	}
	return true, true
}

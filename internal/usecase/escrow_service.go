package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/commission"
	escrowErr "github.com/EdulogyIT/holibayt-backend/internal/domain/errors"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/provider"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
	apperrors "github.com/EdulogyIT/holibayt-backend/pkg/errors"
)

// ReleaseRequest asks for the escrowed payment of a booking to be paid out to the host.
type ReleaseRequest struct {
	BookingID string
	Reason    string
	Caller    Caller

	// claimHeld is set by the scheduler, which already holds the booking's latch.
	claimHeld bool
}

// ReleaseResult describes a completed release.
type ReleaseResult struct {
	BookingID         string  `json:"booking_id"`
	PaymentID         string  `json:"payment_id"`
	TransferReference *string `json:"transfer_reference,omitempty"`
	HostPayoutAmount  int64   `json:"host_payout_amount"`
	CommissionAmount  int64   `json:"commission_amount"`
	// ReconciliationRequired is set when the payment was released but the booking
	// or commission row could not be updated. The reconciler repairs those rows.
	ReconciliationRequired bool `json:"reconciliation_required"`
}

// RefundRequest asks for the escrowed payment of a booking to be returned to the guest.
type RefundRequest struct {
	BookingID string
	Reason    string
	Caller    Caller
}

type RefundResult struct {
	BookingID              string `json:"booking_id"`
	PaymentID              string `json:"payment_id"`
	RefundReference        string `json:"refund_reference"`
	ReconciliationRequired bool   `json:"reconciliation_required"`
}

// Releaser releases escrow for one booking.
type Releaser interface {
	Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error)
}

// EscrowService is the only writer of the released and refunded escrow states.
type EscrowService struct {
	bookingRepo     domainRepo.BookingRepository
	paymentRepo     domainRepo.PaymentRepository
	propertyRepo    domainRepo.PropertyRepository
	commissionRepo  domainRepo.CommissionTransactionRepository
	paymentProvider provider.PaymentProvider
	clock           domainRepo.Clock
	notifier        *Notifier
	settings        Settings
	logger          *zap.Logger
}

// NewEscrowService creates a new escrow service
func NewEscrowService(
	bookingRepo domainRepo.BookingRepository,
	paymentRepo domainRepo.PaymentRepository,
	propertyRepo domainRepo.PropertyRepository,
	commissionRepo domainRepo.CommissionTransactionRepository,
	paymentProvider provider.PaymentProvider,
	clock domainRepo.Clock,
	notifier *Notifier,
	settings Settings,
	logger *zap.Logger,
) *EscrowService {
	return &EscrowService{
		bookingRepo:     bookingRepo,
		paymentRepo:     paymentRepo,
		propertyRepo:    propertyRepo,
		commissionRepo:  commissionRepo,
		paymentProvider: paymentProvider,
		clock:           clock,
		notifier:        notifier,
		settings:        settings,
		logger:          logger,
	}
}

// escrowTarget is a booking together with the payment and property it references,
// after the status preconditions have been checked.
type escrowTarget struct {
	booking  *model.Booking
	payment  *model.Payment
	property *model.Property
}

// Release pays the host out of escrow.
//
// The processor transfer always happens before the payment row is marked released,
// and only a booking in payment_escrowed whose payment is escrowed can get that far.
// A repeated call for the same booking therefore fails with INVALID_STATE instead of
// transferring twice. The transfer carries an idempotency key derived from the booking
// id, so a retry after an unknown outcome cannot pay twice either. Release and Refund
// both take the booking's auto_release_scheduled latch before calling the processor,
// so at most one of them moves money for a booking.
func (s *EscrowService) Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error) {
	logger := s.logger.With(
		zap.String("booking_id", req.BookingID),
		zap.String("reason", req.Reason))

	booking, err := s.bookingRepo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, s.unknown(logger, req.BookingID, "failed to load booking", err)
	}
	if booking == nil {
		return nil, escrowErr.NewNotFoundError(req.BookingID, "booking")
	}

	if err := authorizeRelease(req, booking); err != nil {
		logger.Warn("Release rejected", zap.String("caller", req.Caller.UserID), zap.Error(err))
		return nil, err
	}

	target, err := s.loadEscrowed(ctx, logger, booking, model.BookingStatusPaymentEscrowed)
	if err != nil {
		return nil, err
	}
	payment, property := target.payment, target.property

	now, err := s.clock.Now(ctx)
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to read store clock", err)
	}

	if property.Category == model.PropertyCategoryShortStay && req.Reason != model.ReleaseReasonGuestConfirmed {
		checkoutAt := booking.CheckoutAt(s.settings.CheckoutCutoffHour, s.settings.Location)
		if now.Before(checkoutAt) {
			logger.Info("Release attempted before checkout",
				zap.Time("checkout_at", checkoutAt),
				zap.Time("now", now))
			return nil, escrowErr.NewTooEarlyError(booking.ID,
				fmt.Sprintf("stay ends at %s", checkoutAt.Format(time.RFC3339)))
		}
	}

	rate := commission.ResolveRate(s.settings.DefaultRate, payment.CommissionRate, property.CommissionRate)
	split := commission.Compute(payment.Amount, rate)
	destination := destinationAccount(payment, property)

	logger = logger.With(
		zap.String("payment_id", payment.ID),
		zap.Int64("gross_amount", split.GrossAmount),
		zap.Int64("commission_amount", split.CommissionAmount),
		zap.Int64("host_payout_amount", split.HostPayout))

	claimedHere := false
	if !req.claimHeld {
		claimed, err := s.bookingRepo.ClaimAutoRelease(ctx, booking.ID)
		if err != nil {
			return nil, s.unknown(logger, booking.ID, "failed to claim booking", err)
		}
		if !claimed {
			logger.Warn("Booking escrow is already being settled")
			return nil, escrowErr.NewInvalidStateError(booking.ID, "escrow is already being released or refunded")
		}
		claimedHere = true
	}
	// Only for failures where no money moved.
	unclaim := func() {
		if claimedHere {
			s.resetClaim(ctx, logger, booking.ID)
		}
	}

	var transferRef *string
	switch {
	case destination != "" && split.HostPayout > 0:
		transfer, err := s.paymentProvider.CreateTransfer(ctx, &provider.TransferRequest{
			Amount:             split.HostPayout,
			Currency:           payment.Currency,
			DestinationAccount: destination,
			Description:        fmt.Sprintf("Escrow release for booking %s", booking.ID),
			TransferGroup:      booking.ID,
			IdempotencyKey:     ReleaseIdempotencyKey(booking.ID),
			Metadata: map[string]string{
				"booking_id":  booking.ID,
				"property_id": property.ID,
				"payment_id":  payment.ID,
				"reason":      req.Reason,
			},
		})
		if err != nil {
			logger.Error("Escrow transfer failed, payment left escrowed",
				zap.String("destination", destination),
				zap.Error(err))
			unclaim()
			return nil, escrowErr.NewTransferFailedError(booking.ID, err)
		}
		transferRef = &transfer.ID
		logger.Info("Escrow transfer created", zap.String("transfer_id", transfer.ID))
	case destination == "":
		logger.Warn("Releasing escrow without transfer: host payout account not configured")
	}

	reason := req.Reason
	applied, err := s.paymentRepo.UpdateWhere(ctx, payment.ID,
		domainRepo.Fields{"escrow_status": model.EscrowStatusEscrowed},
		domainRepo.Fields{
			"escrow_status":         model.EscrowStatusReleased,
			"status":                model.PaymentStatusCompleted,
			"escrow_released_at":    now,
			"escrow_release_reason": reason,
			"provider_transfer_id":  transferRef,
		})
	if err != nil {
		if transferRef != nil {
			apperrors.LogError(logger, err, "Transfer succeeded but payment could not be marked released",
				zap.String("transfer_id", *transferRef),
				zap.Bool("reconciliation_required", true))
			return nil, escrowErr.NewPartialReleaseError(booking.ID, err)
		}
		unclaim()
		return nil, s.unknown(logger, booking.ID, "failed to mark payment released", err)
	}
	if !applied {
		if transferRef == nil {
			logger.Warn("Payment left escrowed state concurrently")
			unclaim()
			return nil, escrowErr.NewInvalidStateError(booking.ID, "payment is no longer in escrow")
		}
		return nil, s.lostRelease(ctx, logger, booking.ID, payment.ID, *transferRef)
	}

	result := &ReleaseResult{
		BookingID:         booking.ID,
		PaymentID:         payment.ID,
		TransferReference: transferRef,
		HostPayoutAmount:  split.HostPayout,
		CommissionAmount:  split.CommissionAmount,
	}

	if !s.completeBooking(ctx, logger, booking.ID, now, reason == model.ReleaseReasonGuestConfirmed) {
		result.ReconciliationRequired = true
	}
	if !completeCommission(ctx, s.commissionRepo, logger, payment, split, rate, transferRef, now) {
		result.ReconciliationRequired = true
	}

	logger.Info("Escrow released",
		zap.Bool("reconciliation_required", result.ReconciliationRequired))

	s.notifier.Notify(ctx, booking.GuestID, "Payment released",
		"Payment released to host", model.NotificationTypeEscrow, booking.ID)
	s.notifier.Notify(ctx, property.HostID, "Payout on its way",
		fmt.Sprintf("%d %s from booking %s has been released to you", split.HostPayout, payment.Currency, booking.ID),
		model.NotificationTypeEscrow, booking.ID)

	return result, nil
}

// Refund returns an escrowed payment to the guest and cancels the booking. Admin only.
func (s *EscrowService) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	logger := s.logger.With(
		zap.String("booking_id", req.BookingID),
		zap.String("reason", req.Reason))

	booking, err := s.bookingRepo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, s.unknown(logger, req.BookingID, "failed to load booking", err)
	}
	if booking == nil {
		return nil, escrowErr.NewNotFoundError(req.BookingID, "booking")
	}
	if !req.Caller.IsAdmin {
		return nil, escrowErr.NewUnauthorizedError(booking.ID, "only administrators can refund escrow")
	}

	// A cancelled booking can still hold an escrowed payment when the payment
	// arrived after cancellation; refund is the only way to return it.
	target, err := s.loadEscrowed(ctx, logger, booking,
		model.BookingStatusPaymentEscrowed, model.BookingStatusCancelled)
	if err != nil {
		return nil, err
	}
	payment, property := target.payment, target.property

	if payment.ProviderPaymentIntentID == nil || *payment.ProviderPaymentIntentID == "" {
		return nil, escrowErr.NewInvalidStateError(booking.ID, "payment has no captured charge to refund")
	}

	logger = logger.With(zap.String("payment_id", payment.ID))

	claimed, err := s.bookingRepo.UpdateWhere(ctx, booking.ID,
		domainRepo.Fields{"status": booking.Status, "auto_release_scheduled": false},
		domainRepo.Fields{"auto_release_scheduled": true})
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to claim booking", err)
	}
	if !claimed {
		logger.Warn("Booking escrow is already being settled")
		return nil, escrowErr.NewInvalidStateError(booking.ID, "escrow is already being released or refunded")
	}

	refund, err := s.paymentProvider.CreateRefund(ctx, &provider.RefundRequest{
		PaymentIntentID: *payment.ProviderPaymentIntentID,
		IdempotencyKey:  RefundIdempotencyKey(booking.ID),
		Metadata: map[string]string{
			"booking_id": booking.ID,
			"payment_id": payment.ID,
			"reason":     req.Reason,
		},
	})
	if err != nil {
		logger.Error("Escrow refund failed, payment left escrowed", zap.Error(err))
		s.resetClaim(ctx, logger, booking.ID)
		return nil, escrowErr.NewTransferFailedError(booking.ID, err)
	}

	applied, err := s.paymentRepo.UpdateWhere(ctx, payment.ID,
		domainRepo.Fields{"escrow_status": model.EscrowStatusEscrowed},
		domainRepo.Fields{
			"escrow_status":      model.EscrowStatusRefunded,
			"provider_refund_id": refund.ID,
		})
	if err != nil {
		apperrors.LogError(logger, err, "Refund succeeded but payment could not be marked refunded",
			zap.String("refund_id", refund.ID),
			zap.Bool("reconciliation_required", true))
		return nil, escrowErr.NewPartialRefundError(booking.ID, err)
	}
	if !applied {
		logger.Error("Refund succeeded but payment had already left escrow",
			zap.String("refund_id", refund.ID),
			zap.Bool("reconciliation_required", true))
		return nil, escrowErr.NewPartialRefundError(booking.ID,
			fmt.Errorf("payment %s was no longer escrowed after refund %s", payment.ID, refund.ID))
	}

	result := &RefundResult{
		BookingID:       booking.ID,
		PaymentID:       payment.ID,
		RefundReference: refund.ID,
	}

	if booking.Status != model.BookingStatusCancelled {
		bookingApplied, err := s.bookingRepo.UpdateWhere(ctx, booking.ID,
			domainRepo.Fields{"status": model.BookingStatusPaymentEscrowed},
			domainRepo.Fields{"status": model.BookingStatusCancelled})
		if err != nil || !bookingApplied {
			logger.Error("Payment refunded but booking not cancelled",
				zap.Bool("reconciliation_required", true),
				zap.Error(err))
			result.ReconciliationRequired = true
		}
	}

	commissionApplied, err := s.commissionRepo.UpdateByPaymentWhere(ctx, payment.ID,
		domainRepo.Fields{"status": []interface{}{model.CommissionStatusPending, model.CommissionStatusFailed}},
		domainRepo.Fields{"status": model.CommissionStatusRefunded})
	if err != nil {
		logger.Error("Payment refunded but commission transaction not updated",
			zap.Bool("reconciliation_required", true),
			zap.Error(err))
		result.ReconciliationRequired = true
	} else if !commissionApplied {
		logger.Warn("No open commission transaction for refunded payment")
	}

	logger.Info("Escrow refunded",
		zap.String("refund_id", refund.ID),
		zap.Bool("reconciliation_required", result.ReconciliationRequired))

	s.notifier.Notify(ctx, booking.GuestID, "Payment refunded",
		"Your payment has been refunded", model.NotificationTypeEscrow, booking.ID)
	s.notifier.Notify(ctx, property.HostID, "Booking cancelled",
		fmt.Sprintf("Booking %s was cancelled and the guest refunded", booking.ID),
		model.NotificationTypeEscrow, booking.ID)

	return result, nil
}

func authorizeRelease(req ReleaseRequest, booking *model.Booking) error {
	switch {
	case req.Caller.IsSystem:
		if req.Reason == model.ReleaseReasonAutoRelease {
			return nil
		}
		return escrowErr.NewUnauthorizedError(booking.ID, "system callers may only perform automatic release")
	case req.Caller.IsAdmin:
		if isReleaseReason(req.Reason) {
			return nil
		}
		return escrowErr.NewUnauthorizedError(booking.ID, fmt.Sprintf("unknown release reason %q", req.Reason))
	case req.Caller.owns(booking.GuestID):
		if req.Reason == model.ReleaseReasonGuestConfirmed {
			return nil
		}
		return escrowErr.NewUnauthorizedError(booking.ID, "guests may only confirm completion")
	}
	return escrowErr.NewUnauthorizedError(booking.ID, "not allowed to release this booking")
}

func isReleaseReason(reason string) bool {
	switch reason {
	case model.ReleaseReasonGuestConfirmed, model.ReleaseReasonAutoRelease, model.ReleaseReasonAdmin:
		return true
	}
	return false
}

// loadEscrowed checks that the booking is in one of allowed and its payment is
// escrowed, then loads the property.
func (s *EscrowService) loadEscrowed(ctx context.Context, logger *zap.Logger, booking *model.Booking, allowed ...model.BookingStatus) (*escrowTarget, error) {
	if !containsStatus(allowed, booking.Status) {
		return nil, escrowErr.NewInvalidStateError(booking.ID,
			fmt.Sprintf("booking is %s, not %s", booking.Status, model.BookingStatusPaymentEscrowed))
	}
	if booking.PaymentID == nil {
		return nil, escrowErr.NewInvalidStateError(booking.ID, "booking has no payment")
	}

	payment, err := s.paymentRepo.GetByID(ctx, *booking.PaymentID)
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to load payment", err)
	}
	if payment == nil {
		return nil, escrowErr.NewNotFoundError(booking.ID, "payment")
	}
	if payment.EscrowStatus != model.EscrowStatusEscrowed {
		return nil, escrowErr.NewInvalidStateError(booking.ID,
			fmt.Sprintf("payment escrow is %s, not %s", payment.EscrowStatus, model.EscrowStatusEscrowed))
	}

	property, err := s.propertyRepo.GetByID(ctx, booking.PropertyID)
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to load property", err)
	}
	if property == nil {
		return nil, escrowErr.NewNotFoundError(booking.ID, "property")
	}

	return &escrowTarget{booking: booking, payment: payment, property: property}, nil
}

func containsStatus(statuses []model.BookingStatus, status model.BookingStatus) bool {
	for _, st := range statuses {
		if st == status {
			return true
		}
	}
	return false
}

func (s *EscrowService) resetClaim(ctx context.Context, logger *zap.Logger, bookingID string) {
	if _, err := s.bookingRepo.ResetAutoReleaseClaim(ctx, bookingID); err != nil {
		logger.Error("Failed to reset booking latch", zap.Error(err))
	}
}

// lostRelease handles a transfer that went through while the payment row had
// already left escrow. The latch stays set.
func (s *EscrowService) lostRelease(ctx context.Context, logger *zap.Logger, bookingID, paymentID, transferID string) error {
	current, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err == nil && current != nil && current.EscrowStatus == model.EscrowStatusReleased {
		// Released by another call with the same idempotency key.
		logger.Warn("Payment released concurrently")
		return escrowErr.NewInvalidStateError(bookingID, "payment is no longer in escrow")
	}

	status := "unknown"
	if current != nil {
		status = string(current.EscrowStatus)
	}
	cause := fmt.Errorf("payment %s is %s after transfer %s", paymentID, status, transferID)
	if err != nil {
		cause = fmt.Errorf("failed to reload payment %s after transfer %s: %w", paymentID, transferID, err)
	}
	apperrors.LogError(logger, cause, "Transfer succeeded but payment had already left escrow",
		zap.String("transfer_id", transferID),
		zap.Bool("reconciliation_required", true))
	return escrowErr.NewPartialReleaseError(bookingID, cause)
}

func (s *EscrowService) completeBooking(ctx context.Context, logger *zap.Logger, bookingID string, at time.Time, guestConfirmed bool) bool {
	applied, err := s.bookingRepo.UpdateWhere(ctx, bookingID,
		domainRepo.Fields{"status": model.BookingStatusPaymentEscrowed},
		domainRepo.Fields{
			"status":                     model.BookingStatusCompleted,
			"completed_at":               at,
			"guest_confirmed_completion": guestConfirmed,
		})
	if err != nil || !applied {
		logger.Error("Payment released but booking not completed",
			zap.Bool("reconciliation_required", true),
			zap.Bool("applied", applied),
			zap.Error(err))
		return false
	}
	return true
}

// completeCommission marks the commission transaction of a released payment completed,
// creating it when the checkout never recorded one. It reports whether the row is completed.
func completeCommission(
	ctx context.Context,
	repo domainRepo.CommissionTransactionRepository,
	logger *zap.Logger,
	payment *model.Payment,
	split commission.Split,
	rate decimal.Decimal,
	transferRef *string,
	at time.Time,
) bool {
	fields := domainRepo.Fields{
		"status":             model.CommissionStatusCompleted,
		"transfer_reference": transferRef,
		"released_at":        at,
		"commission_amount":  split.CommissionAmount,
		"host_payout_amount": split.HostPayout,
	}

	applied, err := repo.UpdateByPaymentWhere(ctx, payment.ID,
		domainRepo.Fields{"status": []interface{}{model.CommissionStatusPending, model.CommissionStatusFailed}},
		fields)
	if err != nil {
		logger.Error("Payment released but commission transaction not completed",
			zap.Bool("reconciliation_required", true),
			zap.Error(err))
		return false
	}
	if applied {
		return true
	}

	existing, err := repo.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		logger.Error("Failed to load commission transaction",
			zap.Bool("reconciliation_required", true),
			zap.Error(err))
		return false
	}
	if existing != nil {
		if existing.Status == model.CommissionStatusCompleted {
			return true
		}
		logger.Error("Commission transaction in unexpected state",
			zap.String("commission_status", string(existing.Status)),
			zap.Bool("reconciliation_required", true))
		return false
	}

	tx := &model.CommissionTransaction{
		PaymentID:         payment.ID,
		BookingID:         payment.BookingID,
		GrossAmount:       split.GrossAmount,
		CommissionAmount:  split.CommissionAmount,
		HostPayoutAmount:  split.HostPayout,
		Status:            model.CommissionStatusCompleted,
		TransferReference: transferRef,
		CommissionRate:    rate,
		ReleasedAt:        &at,
	}
	if err := repo.Create(ctx, tx); err != nil {
		logger.Error("Failed to create commission transaction",
			zap.Bool("reconciliation_required", true),
			zap.Error(err))
		return false
	}
	return true
}

func destinationAccount(payment *model.Payment, property *model.Property) string {
	if payment.DestinationAccount != nil && *payment.DestinationAccount != "" {
		return *payment.DestinationAccount
	}
	if property != nil && property.HostPayoutAccount != nil {
		return *property.HostPayoutAccount
	}
	return ""
}

func (s *EscrowService) unknown(logger *zap.Logger, bookingID, msg string, err error) error {
	e := escrowErr.NewUnknownError(bookingID, msg, err)
	apperrors.LogError(logger, e, msg)
	return e
}

// ReleaseIdempotencyKey is the processor idempotency key of the payout transfer of a booking.
func ReleaseIdempotencyKey(bookingID string) string {
	return "escrow-release-" + bookingID
}

// RefundIdempotencyKey is the processor idempotency key of the escrow refund of a booking.
func RefundIdempotencyKey(bookingID string) string {
	return "escrow-refund-" + bookingID
}

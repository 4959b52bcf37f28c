package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	escrowErr "github.com/EdulogyIT/holibayt-backend/internal/domain/errors"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/provider"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
	apperrors "github.com/EdulogyIT/holibayt-backend/pkg/errors"
)

// ConfirmationResult reports the state of a payment after confirmation.
type ConfirmationResult struct {
	PaymentID     string              `json:"payment_id"`
	BookingID     string              `json:"booking_id"`
	Status        model.PaymentStatus `json:"status"`
	EscrowStatus  model.EscrowStatus  `json:"escrow_status"`
	SessionStatus string              `json:"session_status,omitempty"`
	// AlreadyProcessed is set when an earlier delivery already applied the confirmation.
	AlreadyProcessed bool       `json:"already_processed"`
	EligibleAt       *time.Time `json:"escrow_release_eligible_at,omitempty"`
}

// ConfirmationService applies processor confirmations to payments: escrow kinds
// move none -> escrowed, fee-split kinds complete directly.
type ConfirmationService struct {
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

func NewConfirmationService(
	bookingRepo domainRepo.BookingRepository,
	paymentRepo domainRepo.PaymentRepository,
	propertyRepo domainRepo.PropertyRepository,
	commissionRepo domainRepo.CommissionTransactionRepository,
	paymentProvider provider.PaymentProvider,
	clock domainRepo.Clock,
	notifier *Notifier,
	settings Settings,
	logger *zap.Logger,
) *ConfirmationService {
	return &ConfirmationService{
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

// ConfirmCheckoutSession applies a paid checkout session. Repeated deliveries of
// the same session succeed with AlreadyProcessed set.
func (s *ConfirmationService) ConfirmCheckoutSession(ctx context.Context, session *provider.CheckoutSession) (*ConfirmationResult, error) {
	logger := s.logger.With(zap.String("session_id", session.ID))

	if !session.IsPaid() {
		return nil, escrowErr.NewInvalidStateError("", fmt.Sprintf("checkout session is %s", session.PaymentStatus))
	}

	payment, err := s.findPayment(ctx, session)
	if err != nil {
		return nil, s.unknown(logger, "", "failed to load payment", err)
	}
	if payment == nil {
		logger.Warn("No payment for checkout session")
		return nil, escrowErr.NewNotFoundError("", "payment")
	}

	logger = logger.With(
		zap.String("payment_id", payment.ID),
		zap.String("booking_id", payment.BookingID),
		zap.String("kind", string(payment.Kind)))

	if session.AmountTotal != 0 && session.AmountTotal != payment.Amount {
		logger.Error("Checkout amount does not match payment",
			zap.Int64("session_amount", session.AmountTotal),
			zap.Int64("payment_amount", payment.Amount))
		return nil, escrowErr.NewInvalidAmountError(
			fmt.Sprintf("session amount %d does not match payment amount %d", session.AmountTotal, payment.Amount))
	}

	if payment.Kind.HeldInEscrow() {
		return s.confirmEscrow(ctx, logger, payment, session)
	}
	return s.confirmFeeSplit(ctx, logger, payment, session)
}

func (s *ConfirmationService) confirmEscrow(ctx context.Context, logger *zap.Logger, payment *model.Payment, session *provider.CheckoutSession) (*ConfirmationResult, error) {
	fields := domainRepo.Fields{
		"escrow_status":       model.EscrowStatusEscrowed,
		"status":              model.PaymentStatusCompleted,
		"provider_session_id": session.ID,
	}
	if session.PaymentIntentID != "" {
		fields["provider_payment_intent_id"] = session.PaymentIntentID
	}

	applied, err := s.paymentRepo.UpdateWhere(ctx, payment.ID,
		domainRepo.Fields{"escrow_status": model.EscrowStatusNone, "status": model.PaymentStatusPending},
		fields)
	if err != nil {
		return nil, s.unknown(logger, payment.BookingID, "failed to mark payment escrowed", err)
	}

	result := &ConfirmationResult{
		PaymentID:     payment.ID,
		BookingID:     payment.BookingID,
		Status:        model.PaymentStatusCompleted,
		EscrowStatus:  model.EscrowStatusEscrowed,
		SessionStatus: session.Status,
	}

	if !applied {
		current, err := s.paymentRepo.GetByID(ctx, payment.ID)
		if err != nil {
			return nil, s.unknown(logger, payment.BookingID, "failed to reload payment", err)
		}
		if current == nil || current.EscrowStatus == model.EscrowStatusNone {
			return nil, escrowErr.NewInvalidStateError(payment.BookingID,
				fmt.Sprintf("payment is %s and cannot be escrowed", payment.Status))
		}
		result.Status = current.Status
		result.EscrowStatus = current.EscrowStatus
		result.AlreadyProcessed = true
		if current.EscrowStatus != model.EscrowStatusEscrowed {
			logger.Info("Payment already past escrow", zap.String("escrow_status", string(current.EscrowStatus)))
			return result, nil
		}
	}

	booking, err := s.bookingRepo.GetByID(ctx, payment.BookingID)
	if err != nil {
		return nil, s.unknown(logger, payment.BookingID, "failed to load booking", err)
	}
	if booking == nil {
		return nil, escrowErr.NewNotFoundError(payment.BookingID, "booking")
	}
	property, err := s.propertyRepo.GetByID(ctx, booking.PropertyID)
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to load property", err)
	}
	if property == nil {
		return nil, escrowErr.NewNotFoundError(booking.ID, "property")
	}

	eligibleAt := s.releaseEligibleAt(booking, property)
	result.EligibleAt = eligibleAt

	bookingApplied, err := s.bookingRepo.UpdateWhere(ctx, booking.ID,
		domainRepo.Fields{"status": []interface{}{model.BookingStatusPending, model.BookingStatusConfirmed}},
		domainRepo.Fields{
			"status":                     model.BookingStatusPaymentEscrowed,
			"payment_id":                 payment.ID,
			"escrow_release_eligible_at": eligibleAt,
			"auto_release_scheduled":     false,
		})
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to mark booking escrowed", err)
	}
	if !bookingApplied {
		current, err := s.bookingRepo.GetByID(ctx, booking.ID)
		if err != nil {
			return nil, s.unknown(logger, booking.ID, "failed to reload booking", err)
		}
		switch {
		case current != nil && (current.Status == model.BookingStatusPaymentEscrowed || current.Status == model.BookingStatusCompleted):
			result.AlreadyProcessed = true
			return result, nil
		default:
			logger.Error("Escrowed payment for a booking that cannot accept it",
				zap.Bool("refund_required", true))
			return nil, escrowErr.NewInvalidStateError(booking.ID, "booking can no longer accept payment")
		}
	}

	if result.AlreadyProcessed {
		return result, nil
	}

	logger.Info("Payment placed in escrow", zap.Timep("escrow_release_eligible_at", eligibleAt))

	s.notifier.Notify(ctx, booking.GuestID, "Payment received",
		"Your payment is held securely until your stay is complete",
		model.NotificationTypePayment, booking.ID)
	s.notifier.Notify(ctx, property.HostID, "New booking paid",
		fmt.Sprintf("A payment for booking %s is held in escrow", booking.ID),
		model.NotificationTypePayment, booking.ID)

	return result, nil
}

func (s *ConfirmationService) confirmFeeSplit(ctx context.Context, logger *zap.Logger, payment *model.Payment, session *provider.CheckoutSession) (*ConfirmationResult, error) {
	fields := domainRepo.Fields{
		"status":              model.PaymentStatusCompleted,
		"provider_session_id": session.ID,
	}
	if session.PaymentIntentID != "" {
		fields["provider_payment_intent_id"] = session.PaymentIntentID
	}

	applied, err := s.paymentRepo.UpdateWhere(ctx, payment.ID,
		domainRepo.Fields{"status": model.PaymentStatusPending},
		fields)
	if err != nil {
		return nil, s.unknown(logger, payment.BookingID, "failed to complete payment", err)
	}

	result := &ConfirmationResult{
		PaymentID:     payment.ID,
		BookingID:     payment.BookingID,
		Status:        model.PaymentStatusCompleted,
		EscrowStatus:  model.EscrowStatusNone,
		SessionStatus: session.Status,
	}
	if !applied {
		if payment.Status == model.PaymentStatusCompleted {
			result.AlreadyProcessed = true
			return result, nil
		}
		return nil, escrowErr.NewInvalidStateError(payment.BookingID,
			fmt.Sprintf("payment is %s and cannot be completed", payment.Status))
	}

	// The processor already split the fee; the commission is settled with the charge.
	var chargeRef *string
	if session.PaymentIntentID != "" {
		chargeRef = &session.PaymentIntentID
	}
	if now, err := s.clock.Now(ctx); err != nil {
		logger.Error("Failed to read store clock, commission left pending",
			zap.Bool("reconciliation_required", true),
			zap.Error(err))
	} else if _, err := s.commissionRepo.UpdateByPaymentWhere(ctx, payment.ID,
		domainRepo.Fields{"status": model.CommissionStatusPending},
		domainRepo.Fields{
			"status":             model.CommissionStatusCompleted,
			"transfer_reference": chargeRef,
			"released_at":        now,
		}); err != nil {
		logger.Error("Failed to complete commission transaction", zap.Error(err))
	}

	if _, err := s.bookingRepo.UpdateWhere(ctx, payment.BookingID,
		domainRepo.Fields{"status": model.BookingStatusPending},
		domainRepo.Fields{"status": model.BookingStatusConfirmed}); err != nil {
		logger.Error("Failed to confirm booking", zap.Error(err))
	}

	logger.Info("Fee-split payment completed")
	s.notifier.Notify(ctx, payment.PayerID, "Payment received",
		"Your payment has been received", model.NotificationTypePayment, payment.BookingID)

	return result, nil
}

// FailCheckoutSession marks the pending payment of an expired or failed session failed.
func (s *ConfirmationService) FailCheckoutSession(ctx context.Context, session *provider.CheckoutSession) (*ConfirmationResult, error) {
	logger := s.logger.With(zap.String("session_id", session.ID))

	payment, err := s.findPayment(ctx, session)
	if err != nil {
		return nil, s.unknown(logger, "", "failed to load payment", err)
	}
	if payment == nil {
		return nil, escrowErr.NewNotFoundError("", "payment")
	}

	applied, err := s.paymentRepo.UpdateWhere(ctx, payment.ID,
		domainRepo.Fields{"status": model.PaymentStatusPending},
		domainRepo.Fields{"status": model.PaymentStatusFailed})
	if err != nil {
		return nil, s.unknown(logger, payment.BookingID, "failed to mark payment failed", err)
	}

	result := &ConfirmationResult{
		PaymentID:     payment.ID,
		BookingID:     payment.BookingID,
		Status:        model.PaymentStatusFailed,
		EscrowStatus:  payment.EscrowStatus,
		SessionStatus: session.Status,
	}
	if !applied {
		result.Status = payment.Status
		result.AlreadyProcessed = true
		return result, nil
	}

	if _, err := s.commissionRepo.UpdateByPaymentWhere(ctx, payment.ID,
		domainRepo.Fields{"status": model.CommissionStatusPending},
		domainRepo.Fields{"status": model.CommissionStatusFailed}); err != nil {
		logger.Warn("Failed to mark commission transaction failed", zap.Error(err))
	}

	logger.Info("Checkout payment failed", zap.String("payment_id", payment.ID))
	s.notifier.Notify(ctx, payment.PayerID, "Payment not completed",
		"Your payment could not be completed. You can try again from your booking.",
		model.NotificationTypePayment, payment.BookingID)

	return result, nil
}

// VerifySession is the client-redirect path: it fetches the session from the
// processor and confirms it if paid.
func (s *ConfirmationService) VerifySession(ctx context.Context, sessionID string, caller Caller) (*ConfirmationResult, error) {
	session, err := s.paymentProvider.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		var providerErr *provider.ProviderError
		if errors.As(err, &providerErr) && providerErr.Code == provider.ErrCodeNotFound {
			return nil, escrowErr.NewNotFoundError("", "checkout session")
		}
		return nil, escrowErr.NewTransferFailedError("", err)
	}

	payment, err := s.findPayment(ctx, session)
	if err != nil {
		return nil, s.unknown(s.logger, "", "failed to load payment", err)
	}
	if payment == nil {
		return nil, escrowErr.NewNotFoundError("", "payment")
	}
	if !caller.IsAdmin && !caller.owns(payment.PayerID) {
		return nil, escrowErr.NewUnauthorizedError(payment.BookingID, "not allowed to view this payment")
	}

	if session.IsPaid() {
		return s.ConfirmCheckoutSession(ctx, session)
	}

	return &ConfirmationResult{
		PaymentID:     payment.ID,
		BookingID:     payment.BookingID,
		Status:        payment.Status,
		EscrowStatus:  payment.EscrowStatus,
		SessionStatus: session.Status,
	}, nil
}

func (s *ConfirmationService) findPayment(ctx context.Context, session *provider.CheckoutSession) (*model.Payment, error) {
	payment, err := s.paymentRepo.GetBySessionID(ctx, session.ID)
	if err != nil || payment != nil {
		return payment, err
	}
	if id := session.Metadata["payment_id"]; id != "" {
		return s.paymentRepo.GetByID(ctx, id)
	}
	return nil, nil
}

// releaseEligibleAt is the earliest automatic release time: the checkout cutoff
// plus the configured delay for short stays, none for rentals and sales.
func (s *ConfirmationService) releaseEligibleAt(booking *model.Booking, property *model.Property) *time.Time {
	if property.Category != model.PropertyCategoryShortStay {
		return nil
	}
	at := booking.CheckoutAt(s.settings.CheckoutCutoffHour, s.settings.Location).
		Add(s.settings.AutoReleaseDelay).UTC()
	return &at
}

func (s *ConfirmationService) unknown(logger *zap.Logger, bookingID, msg string, err error) error {
	e := escrowErr.NewUnknownError(bookingID, msg, err)
	apperrors.LogError(logger, e, msg)
	return e
}

package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/commission"
	escrowErr "github.com/EdulogyIT/holibayt-backend/internal/domain/errors"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/provider"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
	apperrors "github.com/EdulogyIT/holibayt-backend/pkg/errors"
)

// CheckoutRequest starts a payment for a booking.
type CheckoutRequest struct {
	BookingID   string
	PropertyID  string
	GrossAmount int64
	// CommissionRate overrides the property rate when set.
	CommissionRate *decimal.Decimal
	// Kind defaults from the property category when empty.
	Kind     model.PaymentKind
	Currency string
	Caller   Caller
}

type CheckoutResult struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
	PaymentID   string `json:"payment_id"`
}

// CheckoutService creates processor checkout sessions and the payment rows the
// escrow engine later depends on.
type CheckoutService struct {
	bookingRepo     domainRepo.BookingRepository
	paymentRepo     domainRepo.PaymentRepository
	propertyRepo    domainRepo.PropertyRepository
	commissionRepo  domainRepo.CommissionTransactionRepository
	paymentProvider provider.PaymentProvider
	settings        Settings
	logger          *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	bookingRepo domainRepo.BookingRepository,
	paymentRepo domainRepo.PaymentRepository,
	propertyRepo domainRepo.PropertyRepository,
	commissionRepo domainRepo.CommissionTransactionRepository,
	paymentProvider provider.PaymentProvider,
	settings Settings,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		bookingRepo:     bookingRepo,
		paymentRepo:     paymentRepo,
		propertyRepo:    propertyRepo,
		commissionRepo:  commissionRepo,
		paymentProvider: paymentProvider,
		settings:        settings,
		logger:          logger,
	}
}

// CreateCheckout validates the request, records a pending payment and opens a
// checkout session. Escrow kinds keep the funds on the platform account until
// release; fee-split kinds pass the host share on at charge time.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.GrossAmount < s.settings.MinChargeAmount {
		return nil, escrowErr.NewInvalidAmountError(
			fmt.Sprintf("amount must be at least %d minor units", s.settings.MinChargeAmount))
	}
	if req.CommissionRate != nil && !commission.ValidRate(*req.CommissionRate) {
		return nil, escrowErr.NewInvalidRateError(
			fmt.Sprintf("commission rate %s must be strictly between 0 and 1", req.CommissionRate.String()))
	}

	logger := s.logger.With(
		zap.String("booking_id", req.BookingID),
		zap.String("property_id", req.PropertyID))

	booking, err := s.bookingRepo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, s.unknown(logger, req.BookingID, "failed to load booking", err)
	}
	if booking == nil {
		return nil, escrowErr.NewNotFoundError(req.BookingID, "booking")
	}
	if !req.Caller.IsAdmin && !req.Caller.owns(booking.GuestID) {
		return nil, escrowErr.NewUnauthorizedError(booking.ID, "not allowed to pay for this booking")
	}
	if booking.PropertyID != req.PropertyID {
		return nil, escrowErr.NewInvalidStateError(booking.ID, "booking does not belong to this property")
	}
	if !booking.Status.AcceptsPayment() {
		return nil, escrowErr.NewInvalidStateError(booking.ID,
			fmt.Sprintf("booking is %s and cannot be paid", booking.Status))
	}

	if existing, err := s.reusableCheckout(ctx, logger, booking); err != nil || existing != nil {
		return existing, err
	}

	property, err := s.propertyRepo.GetByID(ctx, req.PropertyID)
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to load property", err)
	}
	if property == nil {
		return nil, escrowErr.NewNotFoundError(booking.ID, "property")
	}

	var explicit decimal.NullDecimal
	if req.CommissionRate != nil {
		explicit = decimal.NewNullDecimal(*req.CommissionRate)
	}
	rate := commission.ResolveRate(s.settings.DefaultRate, explicit, property.CommissionRate)
	if !commission.ValidRate(rate) {
		return nil, escrowErr.NewInvalidRateError(
			fmt.Sprintf("commission rate %s must be strictly between 0 and 1", rate.String()))
	}

	if property.HostPayoutAccount == nil || strings.TrimSpace(*property.HostPayoutAccount) == "" {
		return nil, escrowErr.NewOwnerAccountNotFoundError(booking.ID)
	}
	destination := *property.HostPayoutAccount

	kind := req.Kind
	if kind == "" {
		kind = kindForCategory(property.Category)
	}
	if !kind.IsValid() {
		return nil, escrowErr.NewInvalidStateError(booking.ID, fmt.Sprintf("unsupported payment kind %q", kind))
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.settings.DefaultCurrency
	}

	split := commission.Compute(req.GrossAmount, rate)
	payment := &model.Payment{
		ID:                 uuid.NewString(),
		BookingID:          booking.ID,
		PropertyID:         property.ID,
		PayerID:            booking.GuestID,
		Amount:             req.GrossAmount,
		Currency:           currency,
		Kind:               kind,
		Status:             model.PaymentStatusPending,
		EscrowStatus:       model.EscrowStatusNone,
		DestinationAccount: &destination,
		CommissionRate:     decimal.NewNullDecimal(rate),
	}
	if !kind.HeldInEscrow() {
		fee := split.CommissionAmount
		payment.ApplicationFeeAmount = &fee
	}

	metadata := map[string]string{
		"booking_id":          booking.ID,
		"property_id":         property.ID,
		"payment_id":          payment.ID,
		"destination_account": destination,
		"commission_rate":     rate.String(),
		"kind":                string(kind),
	}
	payment.Metadata = model.JSONB{}
	for k, v := range metadata {
		payment.Metadata[k] = v
	}

	logger = logger.With(
		zap.String("payment_id", payment.ID),
		zap.String("kind", string(kind)),
		zap.Int64("amount", req.GrossAmount))

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to create payment", err)
	}

	if err := s.commissionRepo.Create(ctx, &model.CommissionTransaction{
		PaymentID:        payment.ID,
		BookingID:        booking.ID,
		GrossAmount:      split.GrossAmount,
		CommissionAmount: split.CommissionAmount,
		HostPayoutAmount: split.HostPayout,
		CommissionRate:   rate,
		Status:           model.CommissionStatusPending,
	}); err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to create commission transaction", err)
	}

	sessionReq := &provider.CheckoutSessionRequest{
		Amount:            req.GrossAmount,
		Currency:          currency,
		ProductName:       productName(property, kind),
		SuccessURL:        s.settings.ClientURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.settings.ClientURL + "/payment/cancel?booking_id=" + booking.ID,
		ClientReferenceID: payment.ID,
		IdempotencyKey:    CheckoutIdempotencyKey(payment.ID),
		TransferGroup:     booking.ID,
		Metadata:          metadata,
	}
	if !kind.HeldInEscrow() {
		sessionReq.ApplicationFeeAmount = payment.ApplicationFeeAmount
		sessionReq.DestinationAccount = destination
	}

	session, err := s.paymentProvider.CreateCheckoutSession(ctx, sessionReq)
	if err != nil {
		logger.Error("Failed to create checkout session", zap.Error(err))
		if _, markErr := s.paymentRepo.UpdateWhere(ctx, payment.ID,
			domainRepo.Fields{"status": model.PaymentStatusPending},
			domainRepo.Fields{"status": model.PaymentStatusFailed}); markErr != nil {
			logger.Warn("Failed to mark payment failed", zap.Error(markErr))
		}
		return nil, escrowErr.NewTransferFailedError(booking.ID, err)
	}

	if _, err := s.paymentRepo.UpdateWhere(ctx, payment.ID,
		domainRepo.Fields{"status": model.PaymentStatusPending},
		domainRepo.Fields{"provider_session_id": session.ID}); err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to store checkout session", err)
	}

	linked, err := s.bookingRepo.UpdateWhere(ctx, booking.ID,
		domainRepo.Fields{"status": []interface{}{model.BookingStatusPending, model.BookingStatusConfirmed}},
		domainRepo.Fields{"payment_id": payment.ID})
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to link payment to booking", err)
	}
	if !linked {
		logger.Warn("Booking changed status during checkout")
		return nil, escrowErr.NewInvalidStateError(booking.ID, "booking can no longer be paid")
	}

	logger.Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.Int64("commission_amount", split.CommissionAmount))

	return &CheckoutResult{
		CheckoutURL: session.URL,
		SessionID:   session.ID,
		PaymentID:   payment.ID,
	}, nil
}

// reusableCheckout returns the still-open session of the booking's pending payment,
// so a double submit does not open a second charge.
func (s *CheckoutService) reusableCheckout(ctx context.Context, logger *zap.Logger, booking *model.Booking) (*CheckoutResult, error) {
	if booking.PaymentID == nil {
		return nil, nil
	}

	payment, err := s.paymentRepo.GetByID(ctx, *booking.PaymentID)
	if err != nil {
		return nil, s.unknown(logger, booking.ID, "failed to load payment", err)
	}
	if payment == nil {
		return nil, nil
	}
	if payment.Status == model.PaymentStatusCompleted {
		return nil, escrowErr.NewInvalidStateError(booking.ID, "booking is already paid")
	}
	if payment.Status != model.PaymentStatusPending || payment.ProviderSessionID == nil {
		return nil, nil
	}

	session, err := s.paymentProvider.RetrieveCheckoutSession(ctx, *payment.ProviderSessionID)
	if err != nil {
		logger.Warn("Failed to retrieve previous checkout session", zap.Error(err))
		return nil, nil
	}
	if session.Status != "open" || session.URL == "" {
		return nil, nil
	}

	logger.Info("Reusing open checkout session",
		zap.String("payment_id", payment.ID),
		zap.String("session_id", session.ID))
	return &CheckoutResult{
		CheckoutURL: session.URL,
		SessionID:   session.ID,
		PaymentID:   payment.ID,
	}, nil
}

func kindForCategory(category model.PropertyCategory) model.PaymentKind {
	if category == model.PropertyCategorySale {
		return model.PaymentKindSale
	}
	return model.PaymentKindRent
}

func productName(property *model.Property, kind model.PaymentKind) string {
	title := property.Title
	if title == "" {
		title = "Holibayt property"
	}
	switch kind {
	case model.PaymentKindBookingFee:
		return "Booking fee - " + title
	case model.PaymentKindSecurityDeposit:
		return "Security deposit - " + title
	case model.PaymentKindSale:
		return "Purchase - " + title
	}
	return title
}

func (s *CheckoutService) unknown(logger *zap.Logger, bookingID, msg string, err error) error {
	e := escrowErr.NewUnknownError(bookingID, msg, err)
	apperrors.LogError(logger, e, msg)
	return e
}

// CheckoutIdempotencyKey is the processor idempotency key of a payment's checkout session.
func CheckoutIdempotencyKey(paymentID string) string {
	return "checkout-" + paymentID
}

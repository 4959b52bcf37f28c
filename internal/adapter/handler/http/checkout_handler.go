package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/internal/middleware/auth"
	"github.com/EdulogyIT/holibayt-backend/internal/usecase"
)

type CheckoutUsecase interface {
	CreateCheckout(ctx context.Context, req usecase.CheckoutRequest) (*usecase.CheckoutResult, error)
}

type SessionVerifier interface {
	VerifySession(ctx context.Context, sessionID string, caller usecase.Caller) (*usecase.ConfirmationResult, error)
}

type CheckoutHandler struct {
	checkout CheckoutUsecase
	verifier SessionVerifier
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout CheckoutUsecase, verifier SessionVerifier, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		verifier: verifier,
		logger:   logger,
	}
}

type CreateCheckoutRequest struct {
	BookingID   string `json:"bookingId" validate:"required"`
	PropertyID  string `json:"propertyId" validate:"required"`
	GrossAmount int64  `json:"grossAmount"`
	// CommissionRate accepts a JSON number or string, e.g. 0.15 or "0.15".
	CommissionRate *decimal.Decimal `json:"commissionRate,omitempty"`
	Kind           string           `json:"kind" validate:"omitempty,oneof=booking_fee security_deposit rent sale"`
	Currency       string           `json:"currency" validate:"omitempty,len=3,alpha"`
}

type CreateCheckoutResponse struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
	PaymentID   string `json:"paymentId"`
}

func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req CreateCheckoutRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	h.logger.Info("Creating checkout session",
		zap.String("booking_id", req.BookingID),
		zap.String("property_id", req.PropertyID),
		zap.Int64("gross_amount", req.GrossAmount),
		zap.String("user_id", user.UserID))

	result, err := h.checkout.CreateCheckout(c.Request().Context(), usecase.CheckoutRequest{
		BookingID:      req.BookingID,
		PropertyID:     req.PropertyID,
		GrossAmount:    req.GrossAmount,
		CommissionRate: req.CommissionRate,
		Kind:           model.PaymentKind(req.Kind),
		Currency:       req.Currency,
		Caller:         callerFrom(user),
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusCreated, CreateCheckoutResponse{
		Success:     true,
		CheckoutURL: result.CheckoutURL,
		SessionID:   result.SessionID,
		PaymentID:   result.PaymentID,
	})
}

// CheckSessionStatus is hit by the client after the processor redirects back.
func (h *CheckoutHandler) CheckSessionStatus(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	sessionID := c.Param("sessionId")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Session ID is required",
		})
	}

	result, err := h.verifier.VerifySession(c.Request().Context(), sessionID, callerFrom(user))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":          true,
		"sessionId":        sessionID,
		"sessionStatus":    result.SessionStatus,
		"paymentId":        result.PaymentID,
		"bookingId":        result.BookingID,
		"paymentStatus":    result.Status,
		"escrowStatus":     result.EscrowStatus,
		"alreadyProcessed": result.AlreadyProcessed,
		"eligibleAt":       result.EligibleAt,
	})
}

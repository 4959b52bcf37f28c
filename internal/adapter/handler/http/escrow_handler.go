package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/internal/middleware/auth"
	"github.com/EdulogyIT/holibayt-backend/internal/usecase"
)

// EscrowUsecase is the part of the escrow engine the handler drives.
type EscrowUsecase interface {
	Release(ctx context.Context, req usecase.ReleaseRequest) (*usecase.ReleaseResult, error)
	Refund(ctx context.Context, req usecase.RefundRequest) (*usecase.RefundResult, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (*usecase.SweepSummary, error)
}

type Reconciler interface {
	Run(ctx context.Context) (*usecase.ReconcileSummary, error)
}

type EscrowHandler struct {
	escrow     EscrowUsecase
	sweeper    Sweeper
	reconciler Reconciler
	logger     *zap.Logger
}

func NewEscrowHandler(escrow EscrowUsecase, sweeper Sweeper, reconciler Reconciler, logger *zap.Logger) *EscrowHandler {
	return &EscrowHandler{
		escrow:     escrow,
		sweeper:    sweeper,
		reconciler: reconciler,
		logger:     logger,
	}
}

type ReleaseEscrowRequest struct {
	BookingID string `json:"bookingId" validate:"required"`
	// Reason defaults from the caller: guests confirm, the system auto-releases,
	// admins release manually.
	Reason string `json:"reason" validate:"omitempty,oneof=guest_confirmed auto_release_24h_post_checkout admin_release"`
}

type RefundEscrowRequest struct {
	BookingID string `json:"bookingId" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

func (h *EscrowHandler) Release(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req ReleaseEscrowRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	caller := callerFrom(user)
	reason := req.Reason
	if reason == "" {
		reason = defaultReason(caller)
	}

	h.logger.Info("Escrow release requested",
		zap.String("booking_id", req.BookingID),
		zap.String("reason", reason),
		zap.String("user_id", user.UserID))

	result, err := h.escrow.Release(c.Request().Context(), usecase.ReleaseRequest{
		BookingID: req.BookingID,
		Reason:    reason,
		Caller:    caller,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	body := echo.Map{
		"success":          true,
		"message":          "Payment released to host",
		"bookingId":        result.BookingID,
		"hostPayoutAmount": result.HostPayoutAmount,
		"commissionAmount": result.CommissionAmount,
	}
	if result.TransferReference != nil {
		body["transferReference"] = *result.TransferReference
	}
	if result.ReconciliationRequired {
		body["reconciliationRequired"] = true
	}
	return c.JSON(http.StatusOK, body)
}

func (h *EscrowHandler) Sweep(c echo.Context) error {
	summary, err := h.sweeper.Sweep(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":           true,
		"processed":         summary.Processed,
		"succeeded":         summary.Succeeded,
		"failed":            summary.Failed,
		"skipped":           summary.Skipped,
		"perBookingResults": summary.Results,
	})
}

func (h *EscrowHandler) Refund(c echo.Context) error {
	user, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req RefundEscrowRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	h.logger.Info("Escrow refund requested",
		zap.String("booking_id", req.BookingID),
		zap.String("user_id", user.UserID))

	result, err := h.escrow.Refund(c.Request().Context(), usecase.RefundRequest{
		BookingID: req.BookingID,
		Reason:    req.Reason,
		Caller:    callerFrom(user),
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":                true,
		"bookingId":              result.BookingID,
		"refundReference":        result.RefundReference,
		"reconciliationRequired": result.ReconciliationRequired,
	})
}

func (h *EscrowHandler) Reconcile(c echo.Context) error {
	summary, err := h.reconciler.Run(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":             true,
		"examined":            summary.Examined,
		"bookingsRepaired":    summary.BookingsRepaired,
		"commissionsRepaired": summary.CommissionsRepaired,
		"failed":              summary.Failed,
		"failedPaymentIds":    summary.FailedPaymentIDs,
	})
}

func defaultReason(caller usecase.Caller) string {
	switch {
	case caller.IsSystem:
		return model.ReleaseReasonAutoRelease
	case caller.IsAdmin:
		return model.ReleaseReasonAdmin
	}
	return model.ReleaseReasonGuestConfirmed
}

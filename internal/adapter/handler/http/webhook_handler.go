package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/usecase"
)

// maxWebhookBody matches the processor's documented payload ceiling.
const maxWebhookBody = int64(65536)

type WebhookProcessor interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (*usecase.WebhookOutcome, error)
}

type WebhookHandler struct {
	processor WebhookProcessor
	logger    *zap.Logger
}

func NewWebhookHandler(processor WebhookProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")

	outcome, err := h.processor.HandleEvent(c.Request().Context(), body, sig)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidSignature) {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error": "Webhook signature verification failed",
			})
		}
		// A 5xx makes the processor redeliver the event later.
		h.logger.Error("Webhook processing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Webhook processing failed",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"received":  true,
		"eventId":   outcome.EventID,
		"duplicate": outcome.Duplicate,
		"ignored":   outcome.Ignored,
	})
}

package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	escrowErr "github.com/EdulogyIT/holibayt-backend/internal/domain/errors"
	"github.com/EdulogyIT/holibayt-backend/internal/middleware/auth"
	"github.com/EdulogyIT/holibayt-backend/internal/usecase"
	apperrors "github.com/EdulogyIT/holibayt-backend/pkg/errors"
)

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validator: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// bindAndValidate reports whether the request body was usable; on false the
// 400 response has already been written.
func bindAndValidate(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Invalid request body",
			"code":    apperrors.ErrInvalidArgument,
		})
	}
	if err := c.Validate(req); err != nil {
		msg := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			if m, ok := httpErr.Message.(string); ok {
				msg = m
			}
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   msg,
			"code":    apperrors.ErrInvalidArgument,
		})
	}
	return true, nil
}

// respondError writes the structured failure body for err. Escrow error kinds
// pick the status; anything else is a 500 with a generic message.
func respondError(c echo.Context, logger *zap.Logger, err error) error {
	var e *escrowErr.EscrowError
	if !errors.As(err, &e) {
		apperrors.LogError(logger, err, "Request failed",
			zap.String("path", c.Request().URL.Path))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success": false,
			"error":   "Something went wrong - please try again",
			"code":    string(escrowErr.KindUnknown),
		})
	}

	status := apperrors.ToHTTPStatus(e.Code())
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.Request().URL.Path),
			zap.String("error_kind", string(e.Kind)),
			zap.Bool("partial", e.Partial),
			zap.Error(err))
	}

	body := echo.Map{
		"success": false,
		"error":   e.UserMessage(),
		"code":    string(e.Kind),
	}
	if escrowErr.IsRetryable(err) {
		body["retryable"] = true
	}
	return c.JSON(status, body)
}

// callerFrom maps the authenticated user onto the usecase caller.
func callerFrom(user *auth.AuthUser) usecase.Caller {
	if user.IsSystem {
		return usecase.SystemCaller()
	}
	return usecase.Caller{UserID: user.UserID, IsAdmin: user.IsAdmin}
}

package errors

import (
	"errors"
	"fmt"

	apperrors "github.com/EdulogyIT/holibayt-backend/pkg/errors"
)

// Kind is the machine-checkable failure kind of an escrow operation.
type Kind string

const (
	KindNotFound             Kind = "NOT_FOUND"
	KindUnauthorized         Kind = "UNAUTHORIZED"
	KindInvalidState         Kind = "INVALID_STATE"
	KindTooEarly             Kind = "TOO_EARLY"
	KindInvalidAmount        Kind = "INVALID_AMOUNT"
	KindInvalidRate          Kind = "INVALID_RATE"
	KindOwnerAccountNotFound Kind = "OWNER_ACCOUNT_NOT_FOUND"
	KindTransferFailed       Kind = "TRANSFER_FAILED"
	KindUnknown              Kind = "UNKNOWN"
)

var kindCodes = map[Kind]string{
	KindNotFound:             apperrors.ErrNotFound,
	KindUnauthorized:         apperrors.ErrUnauthorized,
	KindInvalidState:         apperrors.ErrFailedPrecondition,
	KindTooEarly:             apperrors.ErrTooEarly,
	KindInvalidAmount:        apperrors.ErrInvalidArgument,
	KindInvalidRate:          apperrors.ErrInvalidArgument,
	KindOwnerAccountNotFound: apperrors.ErrInvalidArgument,
	KindTransferFailed:       apperrors.ErrUnavailable,
	KindUnknown:              apperrors.ErrInternal,
}

// EscrowError describes why an escrow operation did not complete.
type EscrowError struct {
	Kind      Kind
	Message   string
	BookingID string
	// Partial is set when some external effect (a transfer) happened but local
	// state could not be written. Such errors need reconciliation, not a blind retry.
	Partial bool
	Cause   error
}

func (e *EscrowError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.BookingID != "" {
		msg += fmt.Sprintf(" (booking: %s)", e.BookingID)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" - %v", e.Cause)
	}
	return msg
}

func (e *EscrowError) Unwrap() error {
	return e.Cause
}

// Code maps the kind onto the shared error code table so transports can pick a status.
func (e *EscrowError) Code() string {
	if code, ok := kindCodes[e.Kind]; ok {
		return code
	}
	return apperrors.ErrInternal
}

// UserMessage is the short text shown to guests.
func (e *EscrowError) UserMessage() string {
	switch e.Kind {
	case KindTooEarly:
		return "This stay hasn't ended yet"
	case KindNotFound, KindUnauthorized, KindInvalidState,
		KindInvalidAmount, KindInvalidRate, KindOwnerAccountNotFound:
		return e.Message
	default:
		return "Something went wrong - please try again"
	}
}

// KindOf returns the kind of the first EscrowError in err's chain, KindUnknown for
// any other non-nil error and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var escrowErr *EscrowError
	if errors.As(err, &escrowErr) {
		return escrowErr.Kind
	}
	return KindUnknown
}

// Is reports whether err is an EscrowError of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsPartial reports whether err signals a half-applied release.
func IsPartial(err error) bool {
	var escrowErr *EscrowError
	return errors.As(err, &escrowErr) && escrowErr.Partial
}

// IsRetryable reports whether the operation can be retried from the same state
// without operator action.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransferFailed, KindTooEarly:
		return true
	case KindUnknown:
		return !IsPartial(err)
	}
	return false
}

func newError(kind Kind, bookingID, message string, cause error) *EscrowError {
	return &EscrowError{Kind: kind, Message: message, BookingID: bookingID, Cause: cause}
}

func NewNotFoundError(bookingID, what string) *EscrowError {
	return newError(KindNotFound, bookingID, what+" not found", nil)
}

func NewUnauthorizedError(bookingID, message string) *EscrowError {
	return newError(KindUnauthorized, bookingID, message, nil)
}

func NewInvalidStateError(bookingID, message string) *EscrowError {
	return newError(KindInvalidState, bookingID, message, nil)
}

func NewTooEarlyError(bookingID, message string) *EscrowError {
	return newError(KindTooEarly, bookingID, message, nil)
}

func NewInvalidAmountError(message string) *EscrowError {
	return newError(KindInvalidAmount, "", message, nil)
}

func NewInvalidRateError(message string) *EscrowError {
	return newError(KindInvalidRate, "", message, nil)
}

func NewOwnerAccountNotFoundError(bookingID string) *EscrowError {
	return newError(KindOwnerAccountNotFound, bookingID, "host payout account is not configured", nil)
}

func NewTransferFailedError(bookingID string, cause error) *EscrowError {
	return newError(KindTransferFailed, bookingID, "payment processor rejected the operation", cause)
}

func NewUnknownError(bookingID, message string, cause error) *EscrowError {
	return newError(KindUnknown, bookingID, message, cause)
}

// NewPartialReleaseError marks a release whose transfer went out but whose
// payment row could not be marked released.
func NewPartialReleaseError(bookingID string, cause error) *EscrowError {
	e := newError(KindUnknown, bookingID, "transfer succeeded but payment could not be marked released", cause)
	e.Partial = true
	return e
}

// NewPartialRefundError marks a refund issued by the processor whose payment row
// could not be marked refunded.
func NewPartialRefundError(bookingID string, cause error) *EscrowError {
	e := newError(KindUnknown, bookingID, "refund succeeded but payment could not be marked refunded", cause)
	e.Partial = true
	return e
}

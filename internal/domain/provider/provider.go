package provider

import (
	"context"
	"encoding/json"
	"time"
)

// PaymentProvider is the payment processor capability used by the escrow core.
type PaymentProvider interface {
	// CreateCheckoutSession creates a hosted checkout for the payer.
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)

	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// CreateTransfer moves funds from the platform balance to a connected account.
	// Requests with the same IdempotencyKey produce at most one transfer.
	CreateTransfer(ctx context.Context, req *TransferRequest) (*Transfer, error)

	CreateRefund(ctx context.Context, req *RefundRequest) (*Refund, error)

	// ConstructWebhookEvent verifies the signature header and decodes the event.
	ConstructWebhookEvent(payload []byte, signature string) (*WebhookEvent, error)

	GetProviderName() string
}

// CheckoutSessionRequest describes one hosted checkout.
type CheckoutSessionRequest struct {
	// Amount is in minor units.
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ProductName string `json:"product_name"`
	SuccessURL  string `json:"success_url"`
	CancelURL   string `json:"cancel_url"`
	// ClientReferenceID is our payment id.
	ClientReferenceID string `json:"client_reference_id"`
	IdempotencyKey    string `json:"idempotency_key"`

	// Set only for fee-split charges; escrowed charges stay on the platform account.
	ApplicationFeeAmount *int64 `json:"application_fee_amount,omitempty"`
	DestinationAccount   string `json:"destination_account,omitempty"`

	TransferGroup string            `json:"transfer_group,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CheckoutSession is the processor's view of a checkout.
type CheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Session payment statuses.
const (
	SessionPaymentStatusPaid   = "paid"
	SessionPaymentStatusUnpaid = "unpaid"
)

// IsPaid reports whether the payer's funds were captured.
func (s *CheckoutSession) IsPaid() bool {
	return s.PaymentStatus == SessionPaymentStatusPaid
}

type TransferRequest struct {
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	DestinationAccount string            `json:"destination_account"`
	Description        string            `json:"description"`
	TransferGroup      string            `json:"transfer_group,omitempty"`
	IdempotencyKey     string            `json:"idempotency_key"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type Transfer struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type RefundRequest struct {
	PaymentIntentID string            `json:"payment_intent_id"`
	Reason          string            `json:"reason,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// WebhookEvent is a verified processor event.
type WebhookEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	APIVersion string          `json:"api_version,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Raw        json.RawMessage `json:"raw"`
	// Session is decoded for checkout.session.* events.
	Session *CheckoutSession `json:"session,omitempty"`
}

// Event types handled by the webhook endpoint.
const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutSessionExpired               = "checkout.session.expired"
)

// ProviderType represents the type of payment provider
type ProviderType string

const (
	ProviderTypeStripe ProviderType = "stripe"
)

// ProviderError is returned for failures reported by the processor.
type ProviderError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Provider error codes
const (
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
	ErrCodeRequestFailed    = "REQUEST_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
)

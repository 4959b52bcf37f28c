package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/provider"
)

// Config configures the Stripe provider.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// APIURL replaces the Stripe API base URL when set.
	APIURL string
	// MaxNetworkRetries is passed to the backend; nil keeps the library default.
	MaxNetworkRetries *int64
}

// StripeProvider implements provider.PaymentProvider with an injected Stripe client.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeProvider creates a new Stripe payment provider
func NewStripeProvider(cfg Config, logger *zap.Logger) *StripeProvider {
	backendConfig := &stripe.BackendConfig{
		LeveledLogger:     logger.Named("stripe").Sugar(),
		MaxNetworkRetries: cfg.MaxNetworkRetries,
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.APIURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// GetProviderName returns the provider name
func (p *StripeProvider) GetProviderName() string {
	return string(provider.ProviderTypeStripe)
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req *provider.CheckoutSessionRequest) (*provider.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
		Metadata:          req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	if req.TransferGroup != "" {
		params.PaymentIntentData.TransferGroup = stripe.String(req.TransferGroup)
	}
	if req.ApplicationFeeAmount != nil {
		params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(*req.ApplicationFeeAmount)
	}
	if req.DestinationAccount != "" {
		params.PaymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.DestinationAccount),
		}
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		p.logger.Error("Failed to create checkout session",
			zap.String("client_reference_id", req.ClientReferenceID),
			zap.Int64("amount", req.Amount),
			zap.Error(err))
		return nil, toProviderError("failed to create checkout session", err)
	}

	return sessionFromStripe(s), nil
}

func (p *StripeProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*provider.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, toProviderError("failed to retrieve checkout session", err)
	}
	return sessionFromStripe(s), nil
}

func (p *StripeProvider) CreateTransfer(ctx context.Context, req *provider.TransferRequest) (*provider.Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.DestinationAccount),
		Description: stripe.String(req.Description),
		Metadata:    req.Metadata,
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}

	t, err := p.api.Transfers.New(params)
	if err != nil {
		p.logger.Error("Stripe transfer failed",
			zap.String("destination", req.DestinationAccount),
			zap.Int64("amount", req.Amount),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
		return nil, toProviderError("failed to create transfer", err)
	}

	return &provider.Transfer{ID: t.ID, Amount: t.Amount, Currency: string(t.Currency)}, nil
}

func (p *StripeProvider) CreateRefund(ctx context.Context, req *provider.RefundRequest) (*provider.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Metadata:      req.Metadata,
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}

	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, toProviderError("failed to create refund", err)
	}
	return &provider.Refund{ID: r.ID, Status: string(r.Status)}, nil
}

// ConstructWebhookEvent verifies the Stripe-Signature header. API version
// mismatches are tolerated since only the checkout session object is read.
func (p *StripeProvider) ConstructWebhookEvent(payload []byte, signature string) (*provider.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, &provider.ProviderError{
			Code:    provider.ErrCodeInvalidSignature,
			Message: "webhook signature verification failed",
			Details: err.Error(),
		}
	}

	out := &provider.WebhookEvent{
		EventID:    event.ID,
		EventType:  string(event.Type),
		APIVersion: event.APIVersion,
		CreatedAt:  time.Unix(event.Created, 0).UTC(),
		Raw:        json.RawMessage(payload),
	}

	if event.Data != nil && isCheckoutSessionEvent(out.EventType) {
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session in event %s: %w", event.ID, err)
		}
		out.Session = sessionFromStripe(&s)
	}

	return out, nil
}

func isCheckoutSessionEvent(eventType string) bool {
	switch eventType {
	case provider.EventCheckoutSessionCompleted,
		provider.EventCheckoutSessionAsyncPaymentSucceeded,
		provider.EventCheckoutSessionAsyncPaymentFailed,
		provider.EventCheckoutSessionExpired:
		return true
	}
	return false
}

func sessionFromStripe(s *stripe.CheckoutSession) *provider.CheckoutSession {
	out := &provider.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

func toProviderError(message string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := provider.ErrCodeRequestFailed
		if stripeErr.HTTPStatusCode == 404 {
			code = provider.ErrCodeNotFound
		}
		return &provider.ProviderError{
			Code:       code,
			Message:    message,
			Details:    fmt.Sprintf("%s (%s)", stripeErr.Msg, stripeErr.Code),
			HTTPStatus: stripeErr.HTTPStatusCode,
		}
	}
	return &provider.ProviderError{
		Code:    provider.ErrCodeRequestFailed,
		Message: message,
		Details: err.Error(),
	}
}

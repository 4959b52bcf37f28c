package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	escrowErr "github.com/EdulogyIT/holibayt-backend/internal/domain/errors"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
	"github.com/EdulogyIT/holibayt-backend/internal/domain/provider"
	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
)

// ErrInvalidSignature is returned for webhook payloads that fail verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookOutcome describes how a verified event was handled.
type WebhookOutcome struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	// Duplicate is set when the event was already processed by an earlier delivery.
	Duplicate bool `json:"duplicate,omitempty"`
	// Ignored is set for event types this service does not act on.
	Ignored bool                `json:"ignored,omitempty"`
	Result  *ConfirmationResult `json:"result,omitempty"`
}

// WebhookService verifies processor events, records them once and applies them.
type WebhookService struct {
	paymentProvider provider.PaymentProvider
	webhookRepo     domainRepo.WebhookRepository
	confirmation    *ConfirmationService
	logger          *zap.Logger
}

func NewWebhookService(
	paymentProvider provider.PaymentProvider,
	webhookRepo domainRepo.WebhookRepository,
	confirmation *ConfirmationService,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		paymentProvider: paymentProvider,
		webhookRepo:     webhookRepo,
		confirmation:    confirmation,
		logger:          logger.Named("webhook"),
	}
}

// HandleEvent processes one webhook delivery. An error means the processor should
// retry the delivery, except for ErrInvalidSignature which must never be retried.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	event, err := s.paymentProvider.ConstructWebhookEvent(payload, signature)
	if err != nil {
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	logger := s.logger.With(
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType))
	logger.Info("Webhook event received", zap.Time("created", event.CreatedAt))

	outcome := &WebhookOutcome{EventID: event.EventID, EventType: event.EventType}

	if err := s.webhookRepo.SaveEvent(ctx, event.EventID, event.EventType, event.Raw); err != nil {
		return nil, err
	}

	stored, err := s.webhookRepo.GetEvent(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.Status == model.WebhookStatusCompleted {
		logger.Info("Webhook event already processed")
		outcome.Duplicate = true
		return outcome, nil
	}

	if err := s.webhookRepo.MarkProcessing(ctx, event.EventID); err != nil {
		return nil, err
	}

	result, err := s.dispatch(ctx, event)
	switch {
	case err == nil:
	case escrowErr.Is(err, escrowErr.KindInvalidState), escrowErr.Is(err, escrowErr.KindNotFound):
		// The desired end state already holds or the event is not ours; retrying cannot help.
		logger.Info("Webhook event has nothing to apply",
			zap.String("error_kind", string(escrowErr.KindOf(err))),
			zap.Error(err))
		outcome.Ignored = true
	default:
		logger.Error("Webhook event processing failed", zap.Error(err))
		if markErr := s.webhookRepo.MarkFailed(ctx, event.EventID, err); markErr != nil {
			logger.Error("Failed to record webhook failure", zap.Error(markErr))
		}
		return nil, err
	}

	if result == nil && err == nil {
		outcome.Ignored = true
	}
	outcome.Result = result

	if err := s.webhookRepo.MarkProcessed(ctx, event.EventID); err != nil {
		logger.Error("Failed to mark webhook event processed", zap.Error(err))
	}
	return outcome, nil
}

func (s *WebhookService) dispatch(ctx context.Context, event *provider.WebhookEvent) (*ConfirmationResult, error) {
	switch event.EventType {
	case provider.EventCheckoutSessionCompleted, provider.EventCheckoutSessionAsyncPaymentSucceeded:
		if event.Session == nil {
			return nil, fmt.Errorf("event %s carries no checkout session", event.EventID)
		}
		if !event.Session.IsPaid() {
			// Delayed payment methods complete later with async_payment_succeeded.
			return nil, nil
		}
		return s.confirmation.ConfirmCheckoutSession(ctx, event.Session)
	case provider.EventCheckoutSessionExpired, provider.EventCheckoutSessionAsyncPaymentFailed:
		if event.Session == nil {
			return nil, fmt.Errorf("event %s carries no checkout session", event.EventID)
		}
		return s.confirmation.FailCheckoutSession(ctx, event.Session)
	}
	return nil, nil
}

// PendingEvents lists events waiting for retry.
func (s *WebhookService) PendingEvents(ctx context.Context, limit int) ([]*model.StripeWebhookEvent, error) {
	return s.webhookRepo.GetPendingEvents(ctx, limit)
}

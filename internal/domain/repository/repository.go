// Package repository declares the storage operations the escrow core depends on.
//
// Lookups return (nil, nil) when the row does not exist. Every state change goes
// through a conditional update that only applies while the row still matches the
// expected column values, and reports whether it applied.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/EdulogyIT/holibayt-backend/internal/domain/model"
)

// Fields maps column names to values.
type Fields map[string]interface{}

type BookingRepository interface {
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	UpdateWhere(ctx context.Context, id string, expected, fields Fields) (bool, error)

	// ClaimAutoRelease sets the auto-release latch if it is still clear and the
	// booking is still payment_escrowed.
	ClaimAutoRelease(ctx context.Context, id string) (bool, error)
	// ResetAutoReleaseClaim clears a latch previously claimed.
	ResetAutoReleaseClaim(ctx context.Context, id string) (bool, error)
	// FindEligibleForAutoRelease lists unclaimed payment_escrowed bookings whose
	// eligibility time is at or before now.
	FindEligibleForAutoRelease(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id string) (*model.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	UpdateWhere(ctx context.Context, id string, expected, fields Fields) (bool, error)

	// FindReleasedNeedingRepair lists released payments whose booking is not
	// completed or whose commission transaction is not completed.
	FindReleasedNeedingRepair(ctx context.Context, limit int) ([]*model.Payment, error)
}

type PropertyRepository interface {
	GetByID(ctx context.Context, id string) (*model.Property, error)
}

type CommissionTransactionRepository interface {
	Create(ctx context.Context, tx *model.CommissionTransaction) error
	GetByPaymentID(ctx context.Context, paymentID string) (*model.CommissionTransaction, error)
	UpdateByPaymentWhere(ctx context.Context, paymentID string, expected, fields Fields) (bool, error)
}

type NotificationRepository interface {
	Insert(ctx context.Context, n *model.Notification) error
}

// WebhookRepository handles webhook event storage and processing
type WebhookRepository interface {
	// SaveEvent stores the event once; a duplicate event id is ignored.
	SaveEvent(ctx context.Context, eventID, eventType string, data json.RawMessage) error
	GetEvent(ctx context.Context, eventID string) (*model.StripeWebhookEvent, error)
	MarkProcessing(ctx context.Context, eventID string) error
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, err error) error
	GetPendingEvents(ctx context.Context, limit int) ([]*model.StripeWebhookEvent, error)
}

// RoleRepository resolves platform roles of identity-provider users.
type RoleRepository interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Clock is the store's notion of the current time.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

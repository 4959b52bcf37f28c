package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is one charge attempt and its escrow position.
type Payment struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	BookingID  string `gorm:"type:uuid;not null;index" json:"booking_id"`
	PropertyID string `gorm:"type:uuid;not null;index" json:"property_id"`
	PayerID    string `gorm:"type:uuid;not null;index" json:"payer_id"`

	Amount       int64         `gorm:"not null" json:"amount"`
	Currency     string        `gorm:"size:3;not null" json:"currency"`
	Kind         PaymentKind   `gorm:"type:payment_kind;not null" json:"kind"`
	Status       PaymentStatus `gorm:"type:payment_status;not null;default:'pending';index" json:"status"`
	EscrowStatus EscrowStatus  `gorm:"type:escrow_status;not null;default:'none';index" json:"escrow_status"`

	EscrowReleasedAt    *time.Time `json:"escrow_released_at,omitempty"`
	EscrowReleaseReason *string    `gorm:"size:100" json:"escrow_release_reason,omitempty"`

	ProviderSessionID       *string `gorm:"column:provider_session_id;unique;size:255" json:"provider_session_id,omitempty"`
	ProviderPaymentIntentID *string `gorm:"column:provider_payment_intent_id;size:255" json:"provider_payment_intent_id,omitempty"`
	ProviderTransferID      *string `gorm:"column:provider_transfer_id;size:255" json:"provider_transfer_id,omitempty"`
	ProviderRefundID        *string `gorm:"column:provider_refund_id;size:255" json:"provider_refund_id,omitempty"`

	DestinationAccount   *string             `gorm:"size:255" json:"destination_account,omitempty"`
	CommissionRate       decimal.NullDecimal `gorm:"type:decimal(6,4)" json:"commission_rate"`
	ApplicationFeeAmount *int64              `json:"application_fee_amount,omitempty"`

	Metadata  JSONB     `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate assigns an id when the caller did not.
func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

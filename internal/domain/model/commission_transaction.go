package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusCompleted CommissionStatus = "completed"
	CommissionStatusFailed    CommissionStatus = "failed"
	CommissionStatusRefunded  CommissionStatus = "refunded"
)

// Scan implements sql.Scanner interface
func (s *CommissionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = CommissionStatus(v)
	case []byte:
		*s = CommissionStatus(v)
	default:
		*s = CommissionStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s CommissionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// CommissionTransaction records the platform/host split of one payment.
type CommissionTransaction struct {
	ID                string           `gorm:"primaryKey;type:uuid" json:"id"`
	PaymentID         string           `gorm:"type:uuid;not null;unique" json:"payment_id"`
	BookingID         string           `gorm:"type:uuid;not null;index" json:"booking_id"`
	GrossAmount       int64            `gorm:"not null" json:"gross_amount"`
	CommissionAmount  int64            `gorm:"not null" json:"commission_amount"`
	HostPayoutAmount  int64            `gorm:"not null" json:"host_payout_amount"`
	CommissionRate    decimal.Decimal  `gorm:"type:decimal(6,4);not null" json:"commission_rate"`
	Status            CommissionStatus `gorm:"type:commission_status;not null;default:'pending';index" json:"status"`
	TransferReference *string          `gorm:"size:255" json:"transfer_reference,omitempty"`
	ReleasedAt        *time.Time       `json:"released_at,omitempty"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (CommissionTransaction) TableName() string {
	return "commission_transactions"
}

func (t *CommissionTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

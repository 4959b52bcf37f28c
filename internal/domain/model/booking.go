package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"
	BookingStatusConfirmed       BookingStatus = "confirmed"
	BookingStatusPaymentEscrowed BookingStatus = "payment_escrowed"
	BookingStatusCompleted       BookingStatus = "completed"
	BookingStatusCancelled       BookingStatus = "cancelled"
)

// AcceptsPayment reports whether a checkout may be started for a booking in this status.
func (s BookingStatus) AcceptsPayment() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Scan implements sql.Scanner interface
func (s *BookingStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = BookingStatus(v)
	case []byte:
		*s = BookingStatus(v)
	default:
		*s = BookingStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s BookingStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Booking is a guest's reservation of a property.
type Booking struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	PropertyID   string         `gorm:"type:uuid;not null;index" json:"property_id"`
	GuestID      string         `gorm:"type:uuid;not null;index" json:"guest_id"`
	PaymentID    *string        `gorm:"type:uuid;unique" json:"payment_id,omitempty"`
	CheckInDate  datatypes.Date `gorm:"not null" json:"check_in_date"`
	CheckOutDate datatypes.Date `gorm:"not null" json:"check_out_date"`
	Status       BookingStatus  `gorm:"type:booking_status;not null;default:'pending';index:idx_bookings_auto_release,priority:1" json:"status"`

	EscrowReleaseEligibleAt  *time.Time `gorm:"index:idx_bookings_auto_release,priority:3" json:"escrow_release_eligible_at,omitempty"`
	AutoReleaseScheduled     bool       `gorm:"not null;default:false;index:idx_bookings_auto_release,priority:2" json:"auto_release_scheduled"`
	GuestConfirmedCompletion bool       `gorm:"not null;default:false" json:"guest_confirmed_completion"`
	CompletedAt              *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// CheckoutAt returns the moment the stay ends: the check-out date at cutoffHour in loc.
func (b *Booking) CheckoutAt(cutoffHour int, loc *time.Location) time.Time {
	d := time.Time(b.CheckOutDate)
	return time.Date(d.Year(), d.Month(), d.Day(), cutoffHour, 0, 0, 0, loc)
}

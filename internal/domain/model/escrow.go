package model

import "database/sql/driver"

// EscrowStatus tracks where the money of a payment currently sits.
type EscrowStatus string

const (
	EscrowStatusNone     EscrowStatus = "none"
	EscrowStatusEscrowed EscrowStatus = "escrowed"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusNone:     {EscrowStatusEscrowed},
	EscrowStatusEscrowed: {EscrowStatusReleased, EscrowStatusRefunded},
}

// CanTransitionTo reports whether moving from s to next is a legal forward step.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

// Scan implements sql.Scanner interface
func (s *EscrowStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = EscrowStatus(v)
	case []byte:
		*s = EscrowStatus(v)
	default:
		*s = EscrowStatusNone
	}
	return nil
}

// Value implements driver.Valuer interface
func (s EscrowStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// PaymentStatus is the charge lifecycle, independent of escrow.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Scan implements sql.Scanner interface
func (s *PaymentStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = PaymentStatus(v)
	case []byte:
		*s = PaymentStatus(v)
	default:
		*s = PaymentStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s PaymentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// PaymentKind says what a payment pays for and therefore which checkout flow it uses.
type PaymentKind string

const (
	PaymentKindBookingFee      PaymentKind = "booking_fee"
	PaymentKindSecurityDeposit PaymentKind = "security_deposit"
	PaymentKindRent            PaymentKind = "rent"
	PaymentKindSale            PaymentKind = "sale"
)

// IsValid reports whether k is a known kind.
func (k PaymentKind) IsValid() bool {
	switch k {
	case PaymentKindBookingFee, PaymentKindSecurityDeposit, PaymentKindRent, PaymentKindSale:
		return true
	}
	return false
}

// HeldInEscrow reports whether funds of this kind stay on the platform account
// until release. The other kinds split the fee at charge time.
func (k PaymentKind) HeldInEscrow() bool {
	return k == PaymentKindRent || k == PaymentKindSale
}

// Scan implements sql.Scanner interface
func (k *PaymentKind) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*k = PaymentKind(v)
	case []byte:
		*k = PaymentKind(v)
	default:
		*k = PaymentKindRent
	}
	return nil
}

// Value implements driver.Valuer interface
func (k PaymentKind) Value() (driver.Value, error) {
	return string(k), nil
}

// Reasons recorded on a released payment.
const (
	ReleaseReasonGuestConfirmed = "guest_confirmed"
	ReleaseReasonAutoRelease    = "auto_release_24h_post_checkout"
	ReleaseReasonAdmin          = "admin_release"
)

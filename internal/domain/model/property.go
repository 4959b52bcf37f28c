package model

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

type PropertyCategory string

const (
	PropertyCategoryShortStay PropertyCategory = "short-stay"
	PropertyCategoryRent      PropertyCategory = "rent"
	PropertyCategorySale      PropertyCategory = "sale"
)

// Scan implements sql.Scanner interface
func (c *PropertyCategory) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*c = PropertyCategory(v)
	case []byte:
		*c = PropertyCategory(v)
	default:
		*c = PropertyCategoryShortStay
	}
	return nil
}

// Value implements driver.Valuer interface
func (c PropertyCategory) Value() (driver.Value, error) {
	return string(c), nil
}

// Property is owned by the listings side; this service only reads it.
type Property struct {
	ID                string              `gorm:"primaryKey;type:uuid" json:"id"`
	HostID            string              `gorm:"type:uuid;not null;index" json:"host_id"`
	Title             string              `gorm:"size:255" json:"title"`
	Category          PropertyCategory    `gorm:"type:property_category;not null" json:"category"`
	CommissionRate    decimal.NullDecimal `gorm:"type:decimal(6,4)" json:"commission_rate"`
	HostPayoutAccount *string             `gorm:"column:host_payout_account;size:255" json:"host_payout_account,omitempty"`
}

// TableName specifies the table name for GORM
func (Property) TableName() string {
	return "properties"
}

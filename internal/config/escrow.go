package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// EscrowConfig holds the release and checkout rules.
type EscrowConfig struct {
	// DefaultCommissionRate applies when neither payment nor property carries a rate.
	DefaultCommissionRate string `yaml:"default_commission_rate"`
	// CheckoutCutoffHour is the local hour on the check-out date after which a
	// short-stay is considered over.
	CheckoutCutoffHour int    `yaml:"checkout_cutoff_hour"`
	Timezone           string `yaml:"timezone"`
	// AutoReleaseDelay is added to the checkout cutoff to get escrow_release_eligible_at.
	AutoReleaseDelay time.Duration `yaml:"auto_release_delay"`
	MinChargeAmount  int64         `yaml:"min_charge_amount"`
	InternalToken    string        `yaml:"internal_token"`
	SweepBatchSize   int           `yaml:"sweep_batch_size"`
	SweepConcurrency int           `yaml:"sweep_concurrency"`
}

func (c *EscrowConfig) setDefaults() {
	if c.DefaultCommissionRate == "" {
		c.DefaultCommissionRate = "0.15"
	}
	if c.CheckoutCutoffHour == 0 {
		c.CheckoutCutoffHour = 11
	}
	if c.Timezone == "" {
		c.Timezone = "Africa/Algiers"
	}
	if c.AutoReleaseDelay == 0 {
		c.AutoReleaseDelay = 24 * time.Hour
	}
	if c.MinChargeAmount == 0 {
		c.MinChargeAmount = 50
	}
	if c.SweepBatchSize == 0 {
		c.SweepBatchSize = 100
	}
	if c.SweepConcurrency == 0 {
		c.SweepConcurrency = 4
	}
}

func (c *EscrowConfig) validate() error {
	rate, err := c.CommissionRate()
	if err != nil {
		return err
	}
	if !rate.IsPositive() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("default commission rate %s must be within (0,1)", rate)
	}
	if c.CheckoutCutoffHour < 0 || c.CheckoutCutoffHour > 23 {
		return fmt.Errorf("checkout cutoff hour %d out of range", c.CheckoutCutoffHour)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *EscrowConfig) CommissionRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.DefaultCommissionRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid default commission rate %q: %w", c.DefaultCommissionRate, err)
	}
	return rate, nil
}

func (c *EscrowConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

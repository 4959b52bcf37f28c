package usecase

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EdulogyIT/holibayt-backend/internal/config"
)

// Settings are the business rules shared by the escrow use cases.
type Settings struct {
	DefaultRate        decimal.Decimal
	CheckoutCutoffHour int
	Location           *time.Location
	AutoReleaseDelay   time.Duration
	MinChargeAmount    int64
	DefaultCurrency    string
	ClientURL          string
	SweepBatchSize     int
	SweepConcurrency   int
}

// SettingsFromConfig converts the validated configuration.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	rate, err := cfg.Escrow.CommissionRate()
	if err != nil {
		return Settings{}, err
	}
	loc, err := cfg.Escrow.Location()
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		DefaultRate:        rate,
		CheckoutCutoffHour: cfg.Escrow.CheckoutCutoffHour,
		Location:           loc,
		AutoReleaseDelay:   cfg.Escrow.AutoReleaseDelay,
		MinChargeAmount:    cfg.Escrow.MinChargeAmount,
		DefaultCurrency:    strings.ToLower(cfg.Service.DefaultCurrency),
		ClientURL:          strings.TrimRight(cfg.Service.ClientURL, "/"),
		SweepBatchSize:     cfg.Escrow.SweepBatchSize,
		SweepConcurrency:   cfg.Escrow.SweepConcurrency,
	}, nil
}

// Caller identifies who triggered an operation.
type Caller struct {
	UserID   string
	IsAdmin  bool
	IsSystem bool
}

// SystemCaller is the identity used by scheduled jobs.
func SystemCaller() Caller {
	return Caller{IsSystem: true}
}

func (c Caller) owns(userID string) bool {
	return c.UserID != "" && c.UserID == userID
}

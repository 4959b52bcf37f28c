// Package commission computes the split between the platform and the host.
// It is the only place where commission amounts are derived, for both the
// fee-at-charge and the transfer-at-release checkout flows.
package commission

import "github.com/shopspring/decimal"

// DefaultRate is used when neither the payment nor the property carries a rate.
var DefaultRate = decimal.RequireFromString("0.15")

var one = decimal.NewFromInt(1)

// Split is the result of dividing a gross amount. All amounts are in minor units.
type Split struct {
	GrossAmount      int64
	CommissionAmount int64
	HostPayout       int64
}

// Compute splits gross at rate. Commission is rounded half-up and the host payout
// takes the remainder, so CommissionAmount+HostPayout always equals gross.
// For gross >= 1 the commission is clamped to [0, gross-1], leaving the host at
// least one minor unit even for degenerate rates. Non-positive gross yields a zero split.
func Compute(gross int64, rate decimal.Decimal) Split {
	if gross <= 0 {
		return Split{GrossAmount: gross}
	}

	// decimal.Round rounds half away from zero; both operands are non-negative here.
	commission := decimal.NewFromInt(gross).Mul(rate).Round(0).IntPart()
	if commission < 0 {
		commission = 0
	}
	if commission > gross-1 {
		commission = gross - 1
	}

	return Split{
		GrossAmount:      gross,
		CommissionAmount: commission,
		HostPayout:       gross - commission,
	}
}

// ValidRate reports whether rate lies strictly inside (0,1).
func ValidRate(rate decimal.Decimal) bool {
	return rate.IsPositive() && rate.LessThan(one)
}

// ResolveRate picks the first set rate of candidates, falling back to fallback.
func ResolveRate(fallback decimal.Decimal, candidates ...decimal.NullDecimal) decimal.Decimal {
	for _, c := range candidates {
		if c.Valid {
			return c.Decimal
		}
	}
	return fallback
}

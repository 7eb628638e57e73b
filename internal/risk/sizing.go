// Package risk converts a risk budget into an integer share quantity.
package risk

import "github.com/shopspring/decimal"

// SizeParams bundles the sizing knobs. RoundLot <= 1 means no lot rounding;
// MaxQty <= 0 means no cap.
type SizeParams struct {
	AccountSize decimal.Decimal
	RiskPct     decimal.Decimal
	RoundLot    int64
	MaxQty      int64
}

// QuantityFromRisk returns floor(account*riskPct / (entry-stop)), rounded down
// to the nearest RoundLot and capped at MaxQty. A non-positive risk budget or
// risk-per-share yields 0, never a negative quantity and never a division by
// a non-positive denominator. Pure function; callers treat 0 as "do not
// place this trade".
func QuantityFromRisk(entry, stopLoss decimal.Decimal, p SizeParams) int64 {
	riskAmount := p.AccountSize.Mul(p.RiskPct)
	riskPerShare := entry.Sub(stopLoss)

	if riskAmount.LessThanOrEqual(decimal.Zero) || riskPerShare.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	// IntPart truncates toward zero, which is floor for a positive quotient.
	qty := riskAmount.Div(riskPerShare).IntPart()
	if p.RoundLot > 1 {
		qty = qty / p.RoundLot * p.RoundLot
	}
	if p.MaxQty > 0 && qty > p.MaxQty {
		qty = p.MaxQty
	}
	if qty < 0 {
		return 0
	}
	return qty
}

package signal

import (
	"github.com/shopspring/decimal"

	"github.com/yoyowasa/BOT-WEBULL/internal/model"
)

// NearDuplicate reports whether two entry prices are within tol relative
// tolerance of the candidate price. This is a deliberate near-match filter,
// not exact deduplication: re-runs over the same session data land within a
// fraction of a tick of each other but rarely byte-identical.
func NearDuplicate(candidate, existing, tol decimal.Decimal) bool {
	if !candidate.IsPositive() {
		return false
	}
	return existing.Sub(candidate).Abs().Div(candidate).LessThanOrEqual(tol)
}

// FilterNearDuplicates drops candidates that already have a signal for the
// same date, setup, and symbol with an entry price inside the tolerance band.
func FilterNearDuplicates(candidates, existing []model.Signal, tol decimal.Decimal) []model.Signal {
	out := make([]model.Signal, 0, len(candidates))
	for _, c := range candidates {
		dup := false
		for _, e := range existing {
			if e.Date != c.Date || e.Setup != c.Setup || e.Symbol != c.Symbol {
				continue
			}
			if NearDuplicate(c.EntryPrice(), e.EntryPrice(), tol) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

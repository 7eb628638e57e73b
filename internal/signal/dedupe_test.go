package signal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/yoyowasa/BOT-WEBULL/internal/model"
)

func sig(date, setup, symbol string, entry float64) model.Signal {
	return model.Signal{
		Date:   date,
		Setup:  setup,
		Symbol: symbol,
		Entry:  model.Entry{Price: decimal.NewFromFloat(entry)},
	}
}

func TestNearDuplicate(t *testing.T) {
	tol := decimal.NewFromFloat(0.001)

	// 10.05 vs 10.054 is within 0.1%.
	assert.True(t, NearDuplicate(decimal.NewFromFloat(10.05), decimal.NewFromFloat(10.054), tol))
	// 10.05 vs 10.07 is not.
	assert.False(t, NearDuplicate(decimal.NewFromFloat(10.05), decimal.NewFromFloat(10.07), tol))
	// Identical prices always match.
	assert.True(t, NearDuplicate(decimal.NewFromFloat(10.05), decimal.NewFromFloat(10.05), tol))
	// Degenerate candidate never matches.
	assert.False(t, NearDuplicate(decimal.Zero, decimal.NewFromFloat(10.05), tol))
}

func TestFilterNearDuplicates(t *testing.T) {
	tol := decimal.NewFromFloat(0.001)

	existing := []model.Signal{sig("20250314", "A", "X", 10.05)}

	// Same session/setup/symbol within tolerance: suppressed.
	out := FilterNearDuplicates([]model.Signal{sig("20250314", "A", "X", 10.054)}, existing, tol)
	assert.Empty(t, out)

	// Different symbol, setup, or date: kept.
	keep := []model.Signal{
		sig("20250314", "A", "Y", 10.054),
		sig("20250314", "B", "X", 10.054),
		sig("20250315", "A", "X", 10.054),
	}
	out = FilterNearDuplicates(keep, existing, tol)
	assert.Len(t, out, 3)

	// Outside the band: kept.
	out = FilterNearDuplicates([]model.Signal{sig("20250314", "A", "X", 10.20)}, existing, tol)
	assert.Len(t, out, 1)
}

package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/aggregate"
	"github.com/yoyowasa/BOT-WEBULL/internal/indicator"
	"github.com/yoyowasa/BOT-WEBULL/internal/risk"
	"github.com/yoyowasa/BOT-WEBULL/internal/signal"
	"github.com/yoyowasa/BOT-WEBULL/internal/store"
	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

var nyc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

func newTestRunner(t *testing.T, root string, setup signal.Setup) (*Runner, *store.Store) {
	t.Helper()
	logger := zap.NewNop()

	anchor, _ := timeutil.ParseTimeOfDay("09:30:00")
	orbStart, _ := timeutil.ParseTimeOfDay("09:30:00")
	winStart, _ := timeutil.ParseTimeOfDay("09:30:00")
	winEnd, _ := timeutil.ParseTimeOfDay("10:30:00")

	st := store.New(root, nyc, decimal.NewFromFloat(0.001), logger)
	agg := aggregate.New(nyc, logger)
	eng := indicator.NewEngine(anchor, orbStart, 5*time.Minute, nyc)
	det := signal.NewDetector(signal.Params{
		Loc:             nyc,
		WindowStart:     winStart,
		WindowEnd:       winEnd,
		ProximityPct:    decimal.NewFromFloat(0.003),
		BreakoutStopPct: decimal.NewFromFloat(0.002),
		BreakoutLimPct:  decimal.NewFromFloat(0.003),
		TakeProfitPct:   decimal.NewFromFloat(0.05),
		StopLossPct:     decimal.NewFromFloat(0.025),
		MoveToBreakeven: true,
		Sizing: risk.SizeParams{
			AccountSize: decimal.NewFromInt(10000),
			RiskPct:     decimal.NewFromFloat(0.005),
			RoundLot:    1,
		},
	}, logger)

	return NewRunner(agg, eng, det, st, nil, setup, nyc, time.Minute, logger), st
}

func writeBars(t *testing.T, root string, lines []string) {
	t.Helper()
	dir := filepath.Join(root, "stream")
	assert.NoError(t, os.MkdirAll(dir, 0o755))
	assert.NoError(t, os.WriteFile(
		filepath.Join(dir, "bars_20250314.ndjson"),
		[]byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

// Session 2025-03-14: 13:30Z is 09:30 ET. The opening range tops out at 10.00
// and the close crosses it at 09:41 while holding above vwap.
var breakoutSession = []string{
	`{"type":"bar","S":"X","t":"2025-03-14T13:30:00Z","o":9.9,"h":10.0,"l":9.8,"c":9.9,"v":1000}`,
	`{"type":"bar","S":"X","t":"2025-03-14T13:31:00Z","o":9.9,"h":9.98,"l":9.85,"c":9.95,"v":1000}`,
	`{"type":"bar","S":"X","t":"2025-03-14T13:40:00Z","o":9.95,"h":9.99,"l":9.9,"c":9.95,"v":1000}`,
	`{"type":"bar","S":"X","t":"2025-03-14T13:41:00Z","o":9.95,"h":10.1,"l":9.9,"c":10.05,"v":1000}`,
}

func TestRunOnce_BreakoutEndToEnd(t *testing.T) {
	root := t.TempDir()
	runner, st := newTestRunner(t, root, signal.SetupBreakout)
	writeBars(t, root, breakoutSession)

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, nyc)
	written, err := runner.RunOnce(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, written)

	sigs, err := st.ListSignals("20250314")
	assert.NoError(t, err)
	assert.Len(t, sigs, 1)
	assert.Equal(t, "X", sigs[0].Symbol)
	assert.Equal(t, "A", sigs[0].Setup)
	assert.Equal(t, "10.02", sigs[0].Entry.Stop.StringFixed(2))
	assert.Equal(t, "10.05", sigs[0].Entry.Limit.StringFixed(2))

	// Snapshot retained for the API and persisted as CSV.
	latest := runner.Latest()
	assert.Len(t, latest, 1)
	assert.Equal(t, "X", latest[0].Symbol)
	assert.True(t, latest[0].ORBHigh.Valid)
	assert.True(t, latest[0].ORBHigh.Decimal.Equal(decimal.NewFromFloat(10.0)))
	_, err = os.Stat(filepath.Join(root, "bars", "indicators_20250314.csv"))
	assert.NoError(t, err)
}

func TestRunOnce_Rerun_SuppressesDuplicate(t *testing.T) {
	root := t.TempDir()
	runner, st := newTestRunner(t, root, signal.SetupBreakout)
	writeBars(t, root, breakoutSession)

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, nyc)
	written, err := runner.RunOnce(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, written)

	// Same session data a minute later: the crossing is re-detected but the
	// near-duplicate check keeps the signal count at one.
	written, err = runner.RunOnce(now.Add(time.Minute))
	assert.NoError(t, err)
	assert.Equal(t, 0, written)

	sigs, err := st.ListSignals("20250314")
	assert.NoError(t, err)
	assert.Len(t, sigs, 1)
}

func TestRunOnce_NoData(t *testing.T) {
	root := t.TempDir()
	runner, _ := newTestRunner(t, root, signal.SetupBreakout)

	// No stream file at all.
	written, err := runner.RunOnce(time.Date(2025, 3, 14, 10, 0, 0, 0, nyc))
	assert.NoError(t, err)
	assert.Equal(t, 0, written)

	// Empty stream file.
	writeBars(t, root, []string{""})
	written, err = runner.RunOnce(time.Date(2025, 3, 14, 10, 0, 0, 0, nyc))
	assert.NoError(t, err)
	assert.Equal(t, 0, written)
}

func TestRunOnce_WatchlistBlocksSymbol(t *testing.T) {
	root := t.TempDir()
	runner, _ := newTestRunner(t, root, signal.SetupBreakout)
	writeBars(t, root, breakoutSession)

	dir := filepath.Join(root, "eod")
	assert.NoError(t, os.MkdirAll(dir, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "watchlist_A.json"),
		[]byte(`{"symbols":["TSLA"]}`), 0o644))

	written, err := runner.RunOnce(time.Date(2025, 3, 14, 10, 0, 0, 0, nyc))
	assert.NoError(t, err)
	assert.Equal(t, 0, written)
}

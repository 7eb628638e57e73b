package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/model"
)

var nyc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), nyc, decimal.NewFromFloat(0.001), zap.NewNop())
}

func testSignal(entry float64) model.Signal {
	return model.Signal{
		Date:      "20250314",
		Symbol:    "AAPL",
		Setup:     "A",
		EntryType: "stop_limit",
		Qty:       100,
		Entry:     model.Entry{Price: decimal.NewFromFloat(entry)},
		Bracket: model.Bracket{
			TakeProfitPrice: decimal.NewFromFloat(10.55),
			StopLossPrice:   decimal.NewFromFloat(9.80),
		},
		Notes: "test",
	}
}

func TestAppendAndOpenBars(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	msg := model.BarMessage{Type: "bar", Symbol: "AAPL", Timestamp: "2025-03-14T13:30:00Z", Close: 10, Volume: 100}
	assert.NoError(t, s.AppendBar("20250314", msg))
	assert.NoError(t, s.AppendBar("20250314", msg))

	f, err := s.OpenBars("20250314")
	assert.NoError(t, err)
	assert.NotNil(t, f)
	defer f.Close()

	data, err := os.ReadFile(s.BarsPath("20250314"))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(splitLines(string(data))))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func TestOpenBars_Missing(t *testing.T) {
	s := newTestStore(t)
	f, err := s.OpenBars("19990101")
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestWriteSignal_Dedupe(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 3, 14, 9, 45, 0, 0, nyc)

	written, err := s.WriteSignal(testSignal(10.05), now)
	assert.NoError(t, err)
	assert.True(t, written)

	// Within 0.1%: suppressed even with a different file timestamp.
	written, err = s.WriteSignal(testSignal(10.054), now.Add(time.Minute))
	assert.NoError(t, err)
	assert.False(t, written)

	// Outside the band: written.
	written, err = s.WriteSignal(testSignal(10.30), now.Add(2*time.Minute))
	assert.NoError(t, err)
	assert.True(t, written)

	sigs, err := s.ListSignals("20250314")
	assert.NoError(t, err)
	assert.Len(t, sigs, 2)

	// Other dates see nothing.
	sigs, err = s.ListSignals("20250315")
	assert.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestWriteSnapshotCSV(t *testing.T) {
	s := newTestStore(t)

	snaps := []model.Snapshot{
		{
			Symbol:  "AAPL",
			VWAP:    decimal.NullDecimal{Decimal: decimal.NewFromFloat(10.5), Valid: true},
			ORBHigh: decimal.NullDecimal{Decimal: decimal.NewFromFloat(10.8), Valid: true},
			ORBLow:  decimal.NullDecimal{Decimal: decimal.NewFromFloat(10.1), Valid: true},
		},
		{Symbol: "TSLA"}, // all columns undefined
	}
	assert.NoError(t, s.WriteSnapshotCSV("20250314", snaps))

	data, err := os.ReadFile(filepath.Join(s.root, "bars", "indicators_20250314.csv"))
	assert.NoError(t, err)
	lines := splitLines(string(data))
	assert.Len(t, lines, 3)
	assert.Equal(t, "symbol,vwap,avwap,orb_high,orb_low", lines[0])
	assert.Equal(t, "AAPL,10.5,,10.8,10.1", lines[1])
	assert.Equal(t, "TSLA,,,,", lines[2])
}

func TestReadWatchlist(t *testing.T) {
	s := newTestStore(t)

	// Missing file: allow all.
	assert.Nil(t, s.ReadWatchlist("A"))

	dir := filepath.Join(s.root, "eod")
	assert.NoError(t, os.MkdirAll(dir, 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "watchlist_A.json"),
		[]byte(`{"symbols":["aapl"," TSLA ","","AAPL"]}`), 0o644))

	set := s.ReadWatchlist("A")
	assert.Len(t, set, 2)
	_, ok := set["AAPL"]
	assert.True(t, ok)
	_, ok = set["TSLA"]
	assert.True(t, ok)

	// Broken JSON: allow all rather than block the session.
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "watchlist_B.json"), []byte(`{nope`), 0o644))
	assert.Nil(t, s.ReadWatchlist("B"))
}

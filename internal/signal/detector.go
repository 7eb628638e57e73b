// Package signal scans indicator-augmented bar sequences for the two entry
// setups and emits at most one order intent per symbol per setup per session.
package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/model"
	"github.com/yoyowasa/BOT-WEBULL/internal/risk"
	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

// Setup identifies a detection rule.
type Setup string

const (
	SetupBreakout Setup = "A" // ORB high break with VWAP confirmation, stop-limit entry
	SetupPullback Setup = "B" // AVWAP reclaim inside the proximity band, limit entry
)

// ParseSetup accepts "a"/"A"/"b"/"B".
func ParseSetup(s string) (Setup, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return SetupBreakout, nil
	case "B":
		return SetupPullback, nil
	default:
		return "", fmt.Errorf("unknown setup %q", s)
	}
}

// ScanState is the per-(symbol, setup) detection state. Scanning moves to
// exactly one of the terminal states; a fired pair is never re-scanned.
type ScanState int

const (
	StateScanning ScanState = iota
	StateFired
	StateNoHit
)

// Params are the detection-window and pricing knobs, resolved once at startup.
type Params struct {
	Loc         *time.Location
	WindowStart timeutil.TimeOfDay
	WindowEnd   timeutil.TimeOfDay

	ProximityPct    decimal.Decimal // setup B band, relative to avwap
	BreakoutStopPct decimal.Decimal // stop offset above orb high
	BreakoutLimPct  decimal.Decimal // limit offset above the stop

	TakeProfitPct   decimal.Decimal
	StopLossPct     decimal.Decimal
	MoveToBreakeven bool

	Sizing risk.SizeParams
}

type Detector struct {
	params Params
	logger *zap.Logger
}

func NewDetector(params Params, logger *zap.Logger) *Detector {
	return &Detector{params: params, logger: logger}
}

// Scan walks every symbol in arrival order, restricts each sequence to the
// detection window, and applies the setup's first-crossing rule. allowed
// restricts symbols when non-nil (session watchlist); symbols with fewer than
// two in-window rows are skipped, as are setup-A symbols without an opening
// range. date is the session date stamped onto emitted signals.
func (d *Detector) Scan(date string, rows map[string][]model.IndicatorBar, snaps map[string]model.Snapshot, order []string, setup Setup, allowed map[string]struct{}) []model.Signal {
	var out []model.Signal

	for _, sym := range order {
		if allowed != nil {
			if _, ok := allowed[sym]; !ok {
				continue
			}
		}
		snap, ok := snaps[sym]
		if !ok {
			continue
		}

		win := d.windowRows(rows[sym])
		if len(win) < 2 {
			continue
		}

		sig, state := d.scanSymbol(date, sym, win, snap, setup)
		if state == StateFired && sig != nil {
			d.logger.Info("signal fired",
				zap.String("setup", string(setup)),
				zap.String("symbol", sym),
				zap.String("entry", sig.Entry.Price.String()),
				zap.Int64("qty", sig.Qty),
			)
			out = append(out, *sig)
		}
	}
	return out
}

// scanSymbol runs the state machine over one windowed sequence. The first
// qualifying (prev, cur) transition fires and terminates the scan.
func (d *Detector) scanSymbol(date, sym string, win []model.IndicatorBar, snap model.Snapshot, setup Setup) (*model.Signal, ScanState) {
	if setup == SetupBreakout && !snap.ORBHigh.Valid {
		// No opening range, nothing to break.
		return nil, StateNoHit
	}

	state := StateScanning
	for i := 1; i < len(win); i++ {
		prev, cur := win[i-1], win[i]

		var sig *model.Signal
		switch setup {
		case SetupBreakout:
			sig = d.evalBreakout(date, sym, prev, cur, snap.ORBHigh.Decimal)
		case SetupPullback:
			sig = d.evalPullback(date, sym, prev, cur)
		}
		if sig != nil {
			state = StateFired
			return sig, state
		}
	}
	return nil, StateNoHit
}

func (d *Detector) windowRows(rows []model.IndicatorBar) []model.IndicatorBar {
	var win []model.IndicatorBar
	for _, r := range rows {
		if timeutil.InWindow(r.Timestamp, d.params.Loc, d.params.WindowStart, d.params.WindowEnd) {
			win = append(win, r)
		}
	}
	return win
}

// evalBreakout: prev close below the ORB high, current close at or above it,
// and the current close holding at or above its session vwap. A row with no
// defined vwap (no volume yet) cannot satisfy the trend check.
func (d *Detector) evalBreakout(date, sym string, prev, cur model.IndicatorBar, orbHigh decimal.Decimal) *model.Signal {
	if !cur.VWAP.Valid {
		return nil
	}
	vw := cur.VWAP.Decimal

	if !(prev.Close.LessThan(orbHigh) && cur.Close.GreaterThanOrEqual(orbHigh) && cur.Close.GreaterThanOrEqual(vw)) {
		return nil
	}

	stop := priceRound(orbHigh.Mul(onePlus(d.params.BreakoutStopPct)))
	limit := priceRound(stop.Mul(onePlus(d.params.BreakoutLimPct)))
	bracket := d.bracket(limit)
	qty := risk.QuantityFromRisk(limit, bracket.StopLossPrice, d.params.Sizing)

	return &model.Signal{
		Date:      date,
		Symbol:    sym,
		Setup:     string(SetupBreakout),
		EntryType: "stop_limit",
		Qty:       qty,
		Entry:     model.Entry{Price: limit, Stop: &stop, Limit: &limit},
		Bracket:   bracket,
		Notes:     "A: ORB breakout + VWAP above (first hit in window)",
	}
}

// evalPullback: both rows must carry a defined, positive avwap; the close
// crosses from below to at-or-above it, and the current close sits inside the
// proximity band. The band is checked on the current row only.
func (d *Detector) evalPullback(date, sym string, prev, cur model.IndicatorBar) *model.Signal {
	if !prev.AVWAP.Valid || !cur.AVWAP.Valid || !cur.AVWAP.Decimal.IsPositive() {
		return nil
	}
	prevAV := prev.AVWAP.Decimal
	curAV := cur.AVWAP.Decimal

	crossed := prev.Close.LessThan(prevAV) && cur.Close.GreaterThanOrEqual(curAV)
	near := cur.Close.Sub(curAV).Abs().Div(curAV).LessThanOrEqual(d.params.ProximityPct)
	if !(crossed && near) {
		return nil
	}

	price := priceRound(curAV)
	bracket := d.bracket(price)
	qty := risk.QuantityFromRisk(price, bracket.StopLossPrice, d.params.Sizing)

	return &model.Signal{
		Date:      date,
		Symbol:    sym,
		Setup:     string(SetupPullback),
		EntryType: "limit",
		Qty:       qty,
		Entry:     model.Entry{Price: price},
		Bracket:   bracket,
		Notes:     "B: AVWAP pullback bounce (first hit in window)",
	}
}

// bracket derives take-profit and stop-loss prices from the entry.
func (d *Detector) bracket(entry decimal.Decimal) model.Bracket {
	return model.Bracket{
		TakeProfitPrice:     priceRound(entry.Mul(onePlus(d.params.TakeProfitPct))),
		StopLossPrice:       priceRound(entry.Mul(decimal.NewFromInt(1).Sub(d.params.StopLossPct))),
		MoveToBreakevenOnTP: d.params.MoveToBreakeven,
	}
}

func onePlus(pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(pct)
}

// priceRound applies the small-cap tick policy: two decimal places.
func priceRound(p decimal.Decimal) decimal.Decimal {
	return p.Round(2)
}

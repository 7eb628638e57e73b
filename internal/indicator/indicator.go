// Package indicator derives the session VWAP, anchored VWAP, and opening
// range from an ordered bar sequence. It owns those columns exclusively; the
// detector only reads them.
package indicator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yoyowasa/BOT-WEBULL/internal/aggregate"
	"github.com/yoyowasa/BOT-WEBULL/internal/model"
	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

type Engine struct {
	anchor    timeutil.TimeOfDay
	orbStart  timeutil.TimeOfDay
	orbWindow time.Duration
	loc       *time.Location
}

func NewEngine(anchor, orbStart timeutil.TimeOfDay, orbWindow time.Duration, loc *time.Location) *Engine {
	return &Engine{anchor: anchor, orbStart: orbStart, orbWindow: orbWindow, loc: loc}
}

// SessionVWAP returns a new sequence with the cumulative session VWAP filled
// in: cum(close*volume)/cum(volume) from the first row through each row.
// The value stays invalid while cumulative volume is zero. Close is used as
// the price proxy deliberately; see the snapshot docs. The input is not
// mutated, and no state survives between calls.
func (e *Engine) SessionVWAP(bars []model.Bar) []model.IndicatorBar {
	rows := make([]model.IndicatorBar, len(bars))
	cumPV := decimal.Zero
	cumV := decimal.Zero

	for i, b := range bars {
		cumPV = cumPV.Add(b.Close.Mul(b.Volume))
		cumV = cumV.Add(b.Volume)

		rows[i].Bar = b
		if cumV.IsPositive() {
			rows[i].VWAP = decimal.NullDecimal{Decimal: cumPV.Div(cumV), Valid: true}
		}
	}
	return rows
}

// AnchoredVWAP fills the AVWAP column in place on rows: the same accumulation
// as the session VWAP, but rows strictly before the anchor time contribute
// zero. Such rows still exist in the output; their AVWAP simply stays invalid
// until cumulative volume since the anchor turns positive.
func (e *Engine) AnchoredVWAP(rows []model.IndicatorBar) []model.IndicatorBar {
	out := make([]model.IndicatorBar, len(rows))
	cumPV := decimal.Zero
	cumV := decimal.Zero
	anchorSec := e.anchor.Seconds()

	for i, r := range rows {
		out[i] = r
		if timeutil.ClockSeconds(r.Timestamp, e.loc) >= anchorSec {
			cumPV = cumPV.Add(r.Close.Mul(r.Volume))
			cumV = cumV.Add(r.Volume)
		}
		if cumV.IsPositive() {
			out[i].AVWAP = decimal.NullDecimal{Decimal: cumPV.Div(cumV), Valid: true}
		}
	}
	return out
}

// OpeningRange computes the high/low over bars with
// orbStart <= t < orbStart+window on the session clock. ok is false when no
// bar falls inside the window: absence, not zero levels.
func (e *Engine) OpeningRange(symbol string, bars []model.Bar) (model.OpeningRange, bool) {
	startSec := e.orbStart.Seconds()
	endSec := startSec + int(e.orbWindow.Seconds())

	found := false
	var hi, lo decimal.Decimal
	for _, b := range bars {
		s := timeutil.ClockSeconds(b.Timestamp, e.loc)
		if s < startSec || s >= endSec {
			continue
		}
		if !found {
			hi, lo = b.High, b.Low
			found = true
			continue
		}
		if b.High.GreaterThan(hi) {
			hi = b.High
		}
		if b.Low.LessThan(lo) {
			lo = b.Low
		}
	}
	if !found {
		return model.OpeningRange{}, false
	}
	return model.OpeningRange{Symbol: symbol, High: hi, Low: lo}, true
}

// Compute runs the full derivation for every symbol in the table and returns
// the indicator-augmented sequences plus the one-row-per-symbol snapshot
// (latest vwap/avwap joined with the opening range). Symbol order follows the
// table's arrival order.
func (e *Engine) Compute(table *aggregate.Table) (map[string][]model.IndicatorBar, []model.Snapshot) {
	rowsBySymbol := make(map[string][]model.IndicatorBar, len(table.Symbols()))
	snapshots := make([]model.Snapshot, 0, len(table.Symbols()))

	for _, sym := range table.Symbols() {
		bars := table.Bars(sym)
		rows := e.AnchoredVWAP(e.SessionVWAP(bars))
		rowsBySymbol[sym] = rows

		snap := model.Snapshot{Symbol: sym}
		if len(rows) > 0 {
			last := rows[len(rows)-1]
			snap.VWAP = last.VWAP
			snap.AVWAP = last.AVWAP
		}
		if orb, ok := e.OpeningRange(sym, bars); ok {
			snap.ORBHigh = decimal.NullDecimal{Decimal: orb.High, Valid: true}
			snap.ORBLow = decimal.NullDecimal{Decimal: orb.Low, Valid: true}
		}
		snapshots = append(snapshots, snap)
	}

	return rowsBySymbol, snapshots
}

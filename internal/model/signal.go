package model

import "github.com/shopspring/decimal"

// Entry carries the order prices for a signal. Stop/Limit are only present for
// stop-limit entries; Price is always the working entry price.
type Entry struct {
	Price decimal.Decimal  `json:"price"`
	Stop  *decimal.Decimal `json:"stop,omitempty"`
	Limit *decimal.Decimal `json:"limit,omitempty"`
}

// Bracket 止盈/止损 prices derived from the entry, plus the move-to-breakeven flag.
type Bracket struct {
	TakeProfitPrice     decimal.Decimal `json:"takeProfitPrice"`
	StopLossPrice       decimal.Decimal `json:"stopLossPrice"`
	MoveToBreakevenOnTP bool            `json:"moveToBreakevenOnTP"`
}

// Signal is an immutable order intent: at most one per symbol per setup per
// session, created by the detector and never mutated afterwards. Qty == 0
// means "do not trade".
type Signal struct {
	Date      string  `json:"date"` // YYYYMMDD, session-local
	Symbol    string  `json:"symbol"`
	Setup     string  `json:"setup"`     // "A" or "B"
	EntryType string  `json:"entryType"` // "stop_limit" or "limit"
	Qty       int64   `json:"qty"`
	Entry     Entry   `json:"entry"`
	Bracket   Bracket `json:"bracket"`
	Notes     string  `json:"notes"`
}

// EntryPrice returns the price used for near-duplicate comparison: the working
// entry price, falling back to the limit leg when price is unset.
func (s Signal) EntryPrice() decimal.Decimal {
	if !s.Entry.Price.IsZero() {
		return s.Entry.Price
	}
	if s.Entry.Limit != nil {
		return *s.Entry.Limit
	}
	return decimal.Zero
}

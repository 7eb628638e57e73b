package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar 代表一根1分钟K线 (one symbol, one minute, exchange-local time)
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"et"`
	Open      decimal.Decimal `json:"o"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Close     decimal.Decimal `json:"c"`
	Volume    decimal.Decimal `json:"v"`
}

// IndicatorBar is a Bar extended with the cumulative session VWAP and the
// anchored VWAP. Either value is invalid until the corresponding cumulative
// volume becomes positive; AVWAP is additionally invalid for rows before the
// anchor time.
type IndicatorBar struct {
	Bar
	VWAP  decimal.NullDecimal `json:"vwap"`
	AVWAP decimal.NullDecimal `json:"avwap"`
}

// OpeningRange holds the high/low of the opening window for one symbol.
// Symbols with no bars inside the window have no OpeningRange at all.
type OpeningRange struct {
	Symbol string          `json:"symbol"`
	High   decimal.Decimal `json:"orb_high"`
	Low    decimal.Decimal `json:"orb_low"`
}

// Snapshot 每个标的一行: latest vwap/avwap plus the opening-range levels.
type Snapshot struct {
	Symbol  string              `json:"symbol"`
	VWAP    decimal.NullDecimal `json:"vwap"`
	AVWAP   decimal.NullDecimal `json:"avwap"`
	ORBHigh decimal.NullDecimal `json:"orb_high"`
	ORBLow  decimal.NullDecimal `json:"orb_low"`
}

// BarMessage is the wire/file form of one bar record: one JSON object per
// NDJSON line, and the payload published on market.bars.<symbol>. The
// timestamp stays raw (epoch at unknown precision, or an ISO-8601 string) and
// is only interpreted by the aggregator.
type BarMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"S"`
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

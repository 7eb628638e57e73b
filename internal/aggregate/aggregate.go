// Package aggregate turns the raw NDJSON bar stream into per-symbol,
// time-ordered bar tables.
package aggregate

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/infrastructure"
	"github.com/yoyowasa/BOT-WEBULL/internal/model"
	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

// Table holds one ordered bar sequence per symbol. Symbols iterate in
// first-seen order; downstream tie-breaks between symbols rely on it.
type Table struct {
	order []string
	bars  map[string][]model.Bar
}

func NewTable() *Table {
	return &Table{bars: make(map[string][]model.Bar)}
}

func (t *Table) Add(b model.Bar) {
	if _, ok := t.bars[b.Symbol]; !ok {
		t.order = append(t.order, b.Symbol)
	}
	t.bars[b.Symbol] = append(t.bars[b.Symbol], b)
}

// Symbols returns symbols in first-seen (arrival) order.
func (t *Table) Symbols() []string { return t.order }

// Bars returns the symbol's ordered bar sequence. Callers must not mutate it.
func (t *Table) Bars(symbol string) []model.Bar { return t.bars[symbol] }

func (t *Table) Empty() bool { return len(t.order) == 0 }

func (t *Table) Rows() int {
	n := 0
	for _, bars := range t.bars {
		n += len(bars)
	}
	return n
}

// sortBars orders every sequence by timestamp. The sort is stable so rows
// sharing a timestamp keep their arrival order; duplicates are not merged.
func (t *Table) sortBars() {
	for _, sym := range t.order {
		bars := t.bars[sym]
		sort.SliceStable(bars, func(i, j int) bool {
			return bars[i].Timestamp.Before(bars[j].Timestamp)
		})
	}
}

// rawRecord matches one NDJSON line. The type marker appears as either
// "type" (recorded files) or "T" (pass-through feed frames); the timestamp is
// left raw for the normalizer. Missing numeric fields default to zero.
type rawRecord struct {
	Type   string          `json:"type"`
	Marker string          `json:"T"`
	Symbol string          `json:"S"`
	Ts     json.RawMessage `json:"t"`
	Open   float64         `json:"o"`
	High   float64         `json:"h"`
	Low    float64         `json:"l"`
	Close  float64         `json:"c"`
	Volume float64         `json:"v"`
}

// Aggregator builds bar tables in the session timezone.
type Aggregator struct {
	loc    *time.Location
	logger *zap.Logger
}

func New(loc *time.Location, logger *zap.Logger) *Aggregator {
	return &Aggregator{loc: loc, logger: logger}
}

// ReadNDJSON consumes one JSON object per line and returns a sorted table.
// allowed restricts symbols when non-empty. Records that fail to parse are
// dropped individually; an empty or missing source yields an empty table,
// which downstream treats as "no data yet", never as an error.
func (a *Aggregator) ReadNDJSON(r io.Reader, allowed map[string]struct{}) *Table {
	table := NewTable()
	if r == nil {
		return table
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		bar, ok := a.ParseRecord([]byte(line), allowed)
		if !ok {
			continue
		}
		table.Add(bar)
	}
	if err := scanner.Err(); err != nil {
		a.logger.Warn("bar stream read stopped early", zap.Error(err))
	}

	table.sortBars()
	return table
}

// ParseRecord parses a single bar record. ok is false for records that are
// malformed, carry an unrecognized type marker, lack a symbol or a parseable
// timestamp, or fall outside the allow-set.
func (a *Aggregator) ParseRecord(line []byte, allowed map[string]struct{}) (model.Bar, bool) {
	var rec rawRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		infrastructure.RecordsDropped.WithLabelValues("bad_json").Inc()
		return model.Bar{}, false
	}

	marker := rec.Type
	if marker == "" {
		marker = rec.Marker
	}
	if marker != "bar" && marker != "b" {
		infrastructure.RecordsDropped.WithLabelValues("wrong_type").Inc()
		return model.Bar{}, false
	}

	sym := strings.ToUpper(strings.TrimSpace(rec.Symbol))
	if sym == "" {
		infrastructure.RecordsDropped.WithLabelValues("missing_symbol").Inc()
		return model.Bar{}, false
	}
	if len(allowed) > 0 {
		if _, ok := allowed[sym]; !ok {
			return model.Bar{}, false
		}
	}

	ts, ok := timeutil.Normalize(string(rec.Ts))
	if !ok {
		infrastructure.RecordsDropped.WithLabelValues("bad_timestamp").Inc()
		return model.Bar{}, false
	}

	return model.Bar{
		Symbol:    sym,
		Timestamp: ts.In(a.loc),
		Open:      decimal.NewFromFloat(rec.Open),
		High:      decimal.NewFromFloat(rec.High),
		Low:       decimal.NewFromFloat(rec.Low),
		Close:     decimal.NewFromFloat(rec.Close),
		Volume:    decimal.NewFromFloat(rec.Volume),
	}, true
}

// Package store owns the session file layout: NDJSON bar streams under
// data/stream, signal JSON files under data/signals, indicator snapshots
// under data/bars, and the nightly watchlists under data/eod.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/infrastructure"
	"github.com/yoyowasa/BOT-WEBULL/internal/model"
	signaldet "github.com/yoyowasa/BOT-WEBULL/internal/signal"
)

type Store struct {
	root   string
	loc    *time.Location
	logger *zap.Logger
	tol    decimal.Decimal

	mu      sync.Mutex
	barFile *os.File // cached append handle for the current session file
	barPath string
}

func New(root string, loc *time.Location, duplicateTol decimal.Decimal, logger *zap.Logger) *Store {
	return &Store{root: root, loc: loc, tol: duplicateTol, logger: logger}
}

func (s *Store) BarsPath(date string) string {
	return filepath.Join(s.root, "stream", fmt.Sprintf("bars_%s.ndjson", date))
}

func (s *Store) signalsDir() string { return filepath.Join(s.root, "signals") }

// AppendBar appends one standardized bar record to the session NDJSON file,
// creating directories as needed. The handle is cached until the session date
// rolls over.
func (s *Store) AppendBar(date string, msg model.BarMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.BarsPath(date)
	if s.barFile == nil || s.barPath != path {
		if s.barFile != nil {
			s.barFile.Close()
			s.barFile = nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create stream dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open bars file: %w", err)
		}
		s.barFile = f
		s.barPath = path
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal bar: %w", err)
	}
	if _, err := s.barFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append bar: %w", err)
	}
	return nil
}

// Close releases the cached append handle.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.barFile != nil {
		s.barFile.Close()
		s.barFile = nil
	}
}

// OpenBars opens the session's NDJSON stream for reading. A missing file is a
// normal "no data yet" state and returns (nil, nil): the stream writer and
// this reader are not synchronized, so absence is never an error.
func (s *Store) OpenBars(date string) (*os.File, error) {
	f, err := os.Open(s.BarsPath(date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open bars: %w", err)
	}
	return f, nil
}

// WriteSignal persists one signal as its own JSON file, suppressing
// near-duplicates already on disk for the same date/setup/symbol. Returns
// written=false when suppressed.
func (s *Store) WriteSignal(sig model.Signal, now time.Time) (written bool, err error) {
	existing, err := s.ListSignals(sig.Date)
	if err != nil {
		return false, err
	}
	if len(signaldet.FilterNearDuplicates([]model.Signal{sig}, existing, s.tol)) == 0 {
		infrastructure.SignalsSuppressed.WithLabelValues(sig.Setup).Inc()
		s.logger.Info("skip duplicate signal",
			zap.String("setup", sig.Setup), zap.String("symbol", sig.Symbol))
		return false, nil
	}

	dir := s.signalsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create signals dir: %w", err)
	}

	name := fmt.Sprintf("%s__%s_%s_%s.json", sig.Date, sig.Setup, sig.Symbol, now.In(s.loc).Format("150405"))
	data, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal signal: %w", err)
	}

	// Write-then-rename so readers never see a torn file.
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, fmt.Errorf("write signal: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, fmt.Errorf("rename signal: %w", err)
	}

	infrastructure.SignalsEmitted.WithLabelValues(sig.Setup).Inc()
	return true, nil
}

// ListSignals loads every signal JSON for the given session date. Unreadable
// files are skipped, not fatal.
func (s *Store) ListSignals(date string) ([]model.Signal, error) {
	entries, err := os.ReadDir(s.signalsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read signals dir: %w", err)
	}

	var out []model.Signal
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, date+"__") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.signalsDir(), name))
		if err != nil {
			continue
		}
		var sig model.Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			s.logger.Warn("unreadable signal file", zap.String("file", name), zap.Error(err))
			continue
		}
		out = append(out, sig)
	}
	return out, nil
}

// WriteSnapshotCSV saves the per-symbol indicator snapshot for human
// inspection, one row per symbol, blanks for undefined values.
func (s *Store) WriteSnapshotCSV(date string, snaps []model.Snapshot) error {
	dir := filepath.Join(s.root, "bars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bars dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("indicators_%s.csv", date)))
	if err != nil {
		return fmt.Errorf("create snapshot csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"symbol", "vwap", "avwap", "orb_high", "orb_low"}); err != nil {
		return err
	}
	cell := func(v decimal.NullDecimal) string {
		if !v.Valid {
			return ""
		}
		return v.Decimal.String()
	}
	for _, snap := range snaps {
		rec := []string{snap.Symbol, cell(snap.VWAP), cell(snap.AVWAP), cell(snap.ORBHigh), cell(snap.ORBLow)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadWatchlist loads data/eod/watchlist_<setup>.json and returns its symbol
// set, uppercased and deduplicated. A missing, empty, or unreadable watchlist
// returns nil: all symbols allowed, so a failed nightly screen never blocks
// the session.
func (s *Store) ReadWatchlist(setup string) map[string]struct{} {
	path := filepath.Join(s.root, "eod", fmt.Sprintf("watchlist_%s.json", setup))
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("watchlist unreadable", zap.String("path", path), zap.Error(err))
		}
		return nil
	}

	var payload struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.logger.Warn("watchlist parse error", zap.String("path", path), zap.Error(err))
		return nil
	}

	set := make(map[string]struct{})
	for _, raw := range payload.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym != "" {
			set[sym] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

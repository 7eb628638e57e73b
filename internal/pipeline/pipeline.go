// Package pipeline runs the periodic recompute pass: read the session's bar
// stream, derive indicators, detect the active setup, size and persist new
// signals. Every pass is a full recomputation over a fresh snapshot of the
// stream file, so a partially written or still-empty file simply produces
// fewer (or no) signals and the next pass catches up.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/aggregate"
	"github.com/yoyowasa/BOT-WEBULL/internal/indicator"
	"github.com/yoyowasa/BOT-WEBULL/internal/infrastructure"
	"github.com/yoyowasa/BOT-WEBULL/internal/model"
	"github.com/yoyowasa/BOT-WEBULL/internal/signal"
	"github.com/yoyowasa/BOT-WEBULL/internal/store"
	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

type Runner struct {
	aggregator *aggregate.Aggregator
	engine     *indicator.Engine
	detector   *signal.Detector
	store      *store.Store
	js         nats.JetStreamContext // optional; nil disables publishing
	logger     *zap.Logger

	setup    signal.Setup
	loc      *time.Location
	interval time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	latest []model.Snapshot
}

func NewRunner(
	aggregator *aggregate.Aggregator,
	engine *indicator.Engine,
	detector *signal.Detector,
	st *store.Store,
	js nats.JetStreamContext,
	setup signal.Setup,
	loc *time.Location,
	interval time.Duration,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		aggregator: aggregator,
		engine:     engine,
		detector:   detector,
		store:      st,
		js:         js,
		logger:     logger,
		setup:      setup,
		loc:        loc,
		interval:   interval,
		now:        time.Now,
	}
}

// Run recomputes on a fixed interval until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("pipeline started",
		zap.String("setup", string(r.setup)),
		zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(r.now()); err != nil {
				r.logger.Error("pipeline pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a single pass for now's session date and returns how many
// new signals were written. Missing or empty inputs are the expected
// markets-closed / not-yet-streamed state and return (0, nil).
func (r *Runner) RunOnce(now time.Time) (int, error) {
	started := time.Now()
	defer func() {
		infrastructure.PipelineLatency.Observe(time.Since(started).Seconds())
	}()

	date := timeutil.SessionDate(now, r.loc)
	watchlist := r.store.ReadWatchlist(string(r.setup))

	f, err := r.store.OpenBars(date)
	if err != nil {
		return 0, err
	}
	if f == nil {
		r.logger.Debug("no bars yet", zap.String("date", date))
		return 0, nil
	}
	defer f.Close()

	table := r.aggregator.ReadNDJSON(f, watchlist)
	if table.Empty() {
		r.logger.Debug("bar stream empty", zap.String("date", date))
		return 0, nil
	}

	rows, snaps := r.engine.Compute(table)
	r.setLatest(snaps)
	if err := r.store.WriteSnapshotCSV(date, snaps); err != nil {
		r.logger.Warn("failed to write snapshot csv", zap.Error(err))
	}

	snapBySymbol := make(map[string]model.Snapshot, len(snaps))
	for _, s := range snaps {
		snapBySymbol[s.Symbol] = s
	}

	candidates := r.detector.Scan(date, rows, snapBySymbol, table.Symbols(), r.setup, watchlist)

	written := 0
	for _, sig := range candidates {
		ok, err := r.store.WriteSignal(sig, now)
		if err != nil {
			r.logger.Error("failed to persist signal",
				zap.String("symbol", sig.Symbol), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		written++
		r.publish(sig)
	}

	r.logger.Info("pipeline pass complete",
		zap.String("date", date),
		zap.Int("rows", table.Rows()),
		zap.Int("symbols", len(table.Symbols())),
		zap.Int("signals_written", written))
	return written, nil
}

// Latest returns the most recent indicator snapshot, for the HTTP surface.
func (r *Runner) Latest() []model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Snapshot, len(r.latest))
	copy(out, r.latest)
	return out
}

func (r *Runner) setLatest(snaps []model.Snapshot) {
	r.mu.Lock()
	r.latest = snaps
	r.mu.Unlock()
}

func (r *Runner) publish(sig model.Signal) {
	if r.js == nil {
		return
	}
	subject := fmt.Sprintf("market.signals.%s.%s", sig.Setup, sig.Symbol)
	data, err := json.Marshal(sig)
	if err != nil {
		r.logger.Error("failed to marshal signal", zap.Error(err))
		return
	}
	if _, err := r.js.Publish(subject, data); err != nil {
		r.logger.Error("failed to publish signal", zap.Error(err))
	}
}

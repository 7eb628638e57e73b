// Package processor persists the raw bar stream: it subscribes to the bar
// subjects on JetStream and appends each record to the session NDJSON file
// that the pipeline later reads back.
package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/infrastructure"
	"github.com/yoyowasa/BOT-WEBULL/internal/model"
	"github.com/yoyowasa/BOT-WEBULL/internal/store"
	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

type BarRecorder struct {
	js     nats.JetStreamContext
	store  *store.Store
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

func NewBarRecorder(js nats.JetStreamContext, st *store.Store, loc *time.Location, logger *zap.Logger) *BarRecorder {
	return &BarRecorder{
		js:     js,
		store:  st,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

func (r *BarRecorder) Run(ctx context.Context) error {
	sub, err := r.js.Subscribe(infrastructure.SubjectBars, func(msg *nats.Msg) {
		var bar model.BarMessage
		if err := json.Unmarshal(msg.Data, &bar); err != nil {
			r.logger.Error("failed to unmarshal bar in recorder", zap.Error(err))
			return
		}
		r.record(bar)
		msg.Ack()
	}, nats.Durable("bar-recorder"), nats.ManualAck())
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
		r.store.Close()
	}()

	r.logger.Info("bar recorder started")
	return nil
}

func (r *BarRecorder) record(bar model.BarMessage) {
	date := timeutil.SessionDate(r.now(), r.loc)
	if err := r.store.AppendBar(date, bar); err != nil {
		r.logger.Error("failed to append bar", zap.String("symbol", bar.Symbol), zap.Error(err))
		return
	}
	infrastructure.BarsIngested.WithLabelValues(bar.Symbol).Inc()
}

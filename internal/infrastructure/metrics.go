package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BarsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bars_ingested_total",
		Help: "Total number of bar records received from the stream",
	}, []string{"symbol"})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "records_dropped_total",
		Help: "Input records discarded during aggregation",
	}, []string{"reason"})

	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_emitted_total",
		Help: "Signals written, by setup",
	}, []string{"setup"})

	SignalsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_suppressed_total",
		Help: "Signals suppressed as near-duplicates, by setup",
	}, []string{"setup"})

	FeedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_connections",
		Help: "Active upstream market data websocket connections",
	})

	PushClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "push_clients",
		Help: "Connected websocket push clients",
	})

	PipelineLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "pipeline_run_seconds",
		Help: "Latency of one aggregate/indicator/detect pass",
	})
)

package infrastructure

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects carried on the MARKET stream: raw bars from the connector and
// emitted signals from the pipeline.
const (
	StreamName           = "MARKET"
	SubjectBarsPrefix    = "market.bars."
	SubjectSignalsPrefix = "market.signals."
	SubjectBars          = SubjectBarsPrefix + "*"
	SubjectSignals       = SubjectSignalsPrefix + "*.*"
)

func InitNATS(url string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, nil, err
	}

	cfg := &nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectBars, SubjectSignals},
	}
	if _, err := js.AddStream(cfg); err != nil {
		// If stream exists, update it instead.
		if _, err := js.UpdateStream(cfg); err != nil {
			logger.Warn("failed to create or update stream", zap.Error(err))
		}
	}

	return nc, js, nil
}

package infrastructure

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Components receive it explicitly; there
// is no package-level logger to configure twice.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

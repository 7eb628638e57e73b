package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/connector"
	"github.com/yoyowasa/BOT-WEBULL/internal/model"
)

// NormalizeSymbol unifies ticker formats into the canonical one used in NATS
// subjects and filenames (e.g. "brk/b" -> "BRKB"). Separators are stripped
// because a dot would split the subject into an extra token.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, ".", "")
	return s
}

// startIngestionWorker starts the feed connector and republishes every
// standardized bar onto the stream
func (a *App) startIngestionWorker(ctx context.Context) {
	barChan := make(chan model.BarMessage, 1000)
	c := connector.NewAlpacaConnector(
		a.Logger,
		a.Config.StreamURL,
		a.Config.AlpacaKeyID,
		a.Config.AlpacaSecret,
		a.Config.SymbolList(),
	)

	go c.Run(ctx, barChan)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bar := <-barChan:
				bar.Symbol = NormalizeSymbol(bar.Symbol)

				subject := fmt.Sprintf("market.bars.%s", bar.Symbol)
				data, err := json.Marshal(bar)
				if err != nil {
					a.Logger.Error("failed to marshal bar", zap.Error(err))
					continue
				}
				if _, err := a.JS.Publish(subject, data); err != nil {
					a.Logger.Error("failed to publish to NATS", zap.Error(err))
				}
			}
		}
	}()
}

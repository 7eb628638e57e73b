package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/infrastructure"
	"github.com/yoyowasa/BOT-WEBULL/internal/model"
)

// AlpacaConnector streams minute bars from the Alpaca market-data websocket
// (v2, iex feed) and forwards them as standardized BarMessages.
type AlpacaConnector struct {
	logger  *zap.Logger
	url     string
	keyID   string
	secret  string
	symbols []string
}

func NewAlpacaConnector(logger *zap.Logger, url, keyID, secret string, symbols []string) *AlpacaConnector {
	return &AlpacaConnector{
		logger:  logger,
		url:     url,
		keyID:   keyID,
		secret:  secret,
		symbols: symbols,
	}
}

// alpacaMessage covers every frame we care about: control frames carry T/msg,
// bar frames carry T=="b" plus the OHLCV payload.
type alpacaMessage struct {
	Type      string  `json:"T"`
	Msg       string  `json:"msg"`
	Code      int     `json:"code"`
	Symbol    string  `json:"S"`
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

func (a *AlpacaConnector) Run(ctx context.Context, barChan chan<- model.BarMessage) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a.logger.Info("connecting to alpaca websocket", zap.String("url", a.url))
		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
		conn, _, err := dialer.Dial(a.url, nil)
		if err != nil {
			a.logger.Error("failed to connect to alpaca", zap.Error(err))
			time.Sleep(backoff)
			backoff = a.increaseBackoff(backoff)
			continue
		}

		if err := a.handshake(conn); err != nil {
			a.logger.Error("alpaca handshake failed", zap.Error(err))
			conn.Close()
			time.Sleep(backoff)
			backoff = a.increaseBackoff(backoff)
			continue
		}

		backoff = time.Second // Reset backoff on successful connection
		a.logger.Info("connected to alpaca websocket", zap.Strings("symbols", a.symbols))
		infrastructure.FeedConnections.Inc()

		if err := a.handleConnection(ctx, conn, barChan); err != nil {
			a.logger.Error("connection closed with error", zap.Error(err))
		}
		infrastructure.FeedConnections.Dec()
		conn.Close()
	}
}

// handshake authenticates and subscribes to bars. The server answers with
// success/"authenticated" before it accepts subscriptions.
func (a *AlpacaConnector) handshake(conn *websocket.Conn) error {
	auth := map[string]string{"action": "auth", "key": a.keyID, "secret": a.secret}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read auth reply: %w", err)
		}
		msgs, err := decodeFrame(frame)
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if m.Type == "error" {
				return fmt.Errorf("alpaca auth error: %s (code %d)", m.Msg, m.Code)
			}
			if m.Type == "success" && strings.EqualFold(m.Msg, "authenticated") {
				sub := map[string]interface{}{"action": "subscribe", "bars": a.symbols}
				if err := conn.WriteJSON(sub); err != nil {
					return fmt.Errorf("send subscribe: %w", err)
				}
				return nil
			}
		}
	}
}

func (a *AlpacaConnector) handleConnection(ctx context.Context, conn *websocket.Conn, barChan chan<- model.BarMessage) error {
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			msgs, err := decodeFrame(frame)
			if err != nil {
				a.logger.Error("failed to unmarshal alpaca frame", zap.Error(err))
				continue
			}
			for _, m := range msgs {
				if m.Type != "b" {
					// trades/quotes/control frames are not our concern
					continue
				}
				bar := standardizeBar(m)
				select {
				case barChan <- bar:
				default:
					a.logger.Warn("bar channel full, dropping bar", zap.String("symbol", bar.Symbol))
				}
			}
		}
	}
}

// decodeFrame accepts both array payloads (the normal case) and single
// objects.
func decodeFrame(frame []byte) ([]alpacaMessage, error) {
	var msgs []alpacaMessage
	if err := json.Unmarshal(frame, &msgs); err == nil {
		return msgs, nil
	}
	var one alpacaMessage
	if err := json.Unmarshal(frame, &one); err != nil {
		return nil, err
	}
	return []alpacaMessage{one}, nil
}

// standardizeBar maps the feed frame to the canonical record written to the
// stream: the type marker becomes "bar" and the raw timestamp is preserved
// for the aggregator to interpret.
func standardizeBar(m alpacaMessage) model.BarMessage {
	return model.BarMessage{
		Type:      "bar",
		Symbol:    strings.ToUpper(m.Symbol),
		Timestamp: m.Timestamp,
		Open:      m.Open,
		High:      m.High,
		Low:       m.Low,
		Close:     m.Close,
		Volume:    m.Volume,
	}
}

func (a *AlpacaConnector) increaseBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > time.Minute {
		return time.Minute
	}
	return next
}

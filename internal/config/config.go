package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

type Config struct {
	NatsURL  string `mapstructure:"NATS_URL"`
	Port     string `mapstructure:"PORT"`
	DataDir  string `mapstructure:"DATA_DIR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Market-data feed (Alpaca IEX websocket).
	StreamURL    string `mapstructure:"STREAM_URL"`
	AlpacaKeyID  string `mapstructure:"ALPACA_KEY_ID"`
	AlpacaSecret string `mapstructure:"ALPACA_SECRET_KEY"`
	Symbols      string `mapstructure:"SYMBOLS"` // comma-separated fallback universe

	// Session / strategy knobs. Times are session-local wall clock.
	Timezone        string  `mapstructure:"TIMEZONE"`
	ActiveSetup     string  `mapstructure:"ACTIVE_SETUP"`
	AVWAPAnchor     string  `mapstructure:"AVWAP_ANCHOR"`
	WindowStart     string  `mapstructure:"WINDOW_START"`
	WindowEnd       string  `mapstructure:"WINDOW_END"`
	ORBStart        string  `mapstructure:"ORB_START"`
	ORBMinutes      int     `mapstructure:"ORB_MINUTES"`
	ProximityPct    float64 `mapstructure:"PROXIMITY_PCT"`
	BreakoutStopPct float64 `mapstructure:"BREAKOUT_STOP_PCT"`
	BreakoutLimPct  float64 `mapstructure:"BREAKOUT_LIMIT_PCT"`
	TakeProfitPcts  string  `mapstructure:"TAKE_PROFIT_PCTS"` // comma-separated, first is used for the bracket
	StopLossPct     float64 `mapstructure:"STOP_LOSS_PCT"`
	MoveToBreakeven bool    `mapstructure:"MOVE_TO_BREAKEVEN"`
	DuplicateTolPct float64 `mapstructure:"DUPLICATE_TOL_PCT"`

	// Risk sizing.
	AccountSizeUSD  float64 `mapstructure:"ACCOUNT_SIZE_USD"`
	RiskPerTradePct float64 `mapstructure:"RISK_PER_TRADE_PCT"`
	RoundLot        int64   `mapstructure:"ROUND_LOT"`
	MaxQty          int64   `mapstructure:"MAX_QTY"`

	ComputeIntervalSec int `mapstructure:"COMPUTE_INTERVAL_SEC"`
}

func LoadConfig() (config Config, err error) {
	// .env first, matching the rest of the tooling around this pipeline.
	// Missing file is fine; existing env vars are not overwritten.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.SetConfigName("app")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("NATS_URL", "nats://localhost:4222")
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("STREAM_URL", "wss://stream.data.alpaca.markets/v2/iex")
	viper.SetDefault("SYMBOLS", "AAPL,TSLA,AMD,NVDA")

	viper.SetDefault("TIMEZONE", "America/New_York")
	viper.SetDefault("ACTIVE_SETUP", "A")
	viper.SetDefault("AVWAP_ANCHOR", "09:30:00")
	viper.SetDefault("WINDOW_START", "09:30:00")
	viper.SetDefault("WINDOW_END", "10:30:00")
	viper.SetDefault("ORB_START", "09:30:00")
	viper.SetDefault("ORB_MINUTES", 5)
	viper.SetDefault("PROXIMITY_PCT", 0.003)
	viper.SetDefault("BREAKOUT_STOP_PCT", 0.002)
	viper.SetDefault("BREAKOUT_LIMIT_PCT", 0.003)
	viper.SetDefault("TAKE_PROFIT_PCTS", "0.05,0.10")
	viper.SetDefault("STOP_LOSS_PCT", 0.025)
	viper.SetDefault("MOVE_TO_BREAKEVEN", true)
	viper.SetDefault("DUPLICATE_TOL_PCT", 0.001)

	viper.SetDefault("ACCOUNT_SIZE_USD", 10000.0)
	viper.SetDefault("RISK_PER_TRADE_PCT", 0.005)
	viper.SetDefault("ROUND_LOT", 1)
	viper.SetDefault("MAX_QTY", 0)

	viper.SetDefault("COMPUTE_INTERVAL_SEC", 60)

	err = viper.ReadInConfig()
	// If config file not found, we can still use env vars
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	}

	if err != nil {
		return Config{}, err
	}
	err = viper.Unmarshal(&config)
	return
}

// Location resolves the session timezone once; components receive the
// resolved *time.Location and never fall back on their own.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("resolve timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// TakeProfits parses the comma-separated take-profit percentage list.
func (c Config) TakeProfits() ([]float64, error) {
	parts := strings.Split(c.TakeProfitPcts, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("parse take-profit pct %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty take-profit list %q", c.TakeProfitPcts)
	}
	return out, nil
}

// SymbolList parses the fallback universe into an uppercase, deduplicated list.
func (c Config) SymbolList() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range strings.Split(c.Symbols, ",") {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// Anchor and window accessors; invalid values surface as errors at startup,
// not during the session.

func (c Config) Anchor() (timeutil.TimeOfDay, error)      { return timeutil.ParseTimeOfDay(c.AVWAPAnchor) }
func (c Config) DetectStart() (timeutil.TimeOfDay, error) { return timeutil.ParseTimeOfDay(c.WindowStart) }
func (c Config) DetectEnd() (timeutil.TimeOfDay, error)   { return timeutil.ParseTimeOfDay(c.WindowEnd) }
func (c Config) ORBWindowStart() (timeutil.TimeOfDay, error) {
	return timeutil.ParseTimeOfDay(c.ORBStart)
}
func (c Config) ORBWindow() time.Duration {
	return time.Duration(c.ORBMinutes) * time.Minute
}
func (c Config) ComputeInterval() time.Duration {
	return time.Duration(c.ComputeIntervalSec) * time.Second
}

// Package config loads runtime configuration from the environment (and an
// optional .env file) for the trading client.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	defaultHost            = "demo-uk-eqx-01.p.c-trader.com"
	defaultQuotePort       = 5211
	defaultTradePort       = 5212
	defaultTargetCompID    = "cServer"
	defaultHeartbeatSec    = 30
	defaultReadTimeoutSec  = 5
	defaultHistoryPath     = "trade_history.db"
	defaultTradeQty        = "1000"
	defaultStopLossPct     = "0.005"
	defaultTakeProfitPct   = "0.01"
	defaultResyncDelaySec  = 2
	defaultResyncPeriodSec = 300
	defaultLogLevel        = "info"
)

// Session holds FIX connection parameters shared by the quote and trade channels.
type Session struct {
	Host         string
	QuotePort    int
	TradePort    int
	SenderCompID string
	TargetCompID string
	Password     string
	Heartbeat    time.Duration
	ReadTimeout  time.Duration
}

// Trading holds order sizing and protective-order offsets.
type Trading struct {
	Symbols       []string
	Qty           decimal.Decimal
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	ResyncDelay   time.Duration
	ResyncPeriod  time.Duration
}

// Config keeps the runtime configuration for the client.
type Config struct {
	Session     Session
	Trading     Trading
	HistoryPath string
	MetricsAddr string // empty disables the metrics listener
	LogLevel    string
}

// Load builds Config from environment variables, preloading .env when present.
// Missing credentials are a fatal error: the process must refuse to start
// half-configured.
func Load() (*Config, error) {
	// Best effort; a missing .env is fine in deployed environments.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FIXTRADER")
	v.AutomaticEnv()

	v.SetDefault("HOST", defaultHost)
	v.SetDefault("QUOTE_PORT", defaultQuotePort)
	v.SetDefault("TRADE_PORT", defaultTradePort)
	v.SetDefault("TARGET_COMP_ID", defaultTargetCompID)
	v.SetDefault("HEARTBEAT_SEC", defaultHeartbeatSec)
	v.SetDefault("READ_TIMEOUT_SEC", defaultReadTimeoutSec)
	v.SetDefault("HISTORY_PATH", defaultHistoryPath)
	v.SetDefault("SYMBOLS", "XAUUSD")
	v.SetDefault("TRADE_QTY", defaultTradeQty)
	v.SetDefault("STOP_LOSS_PCT", defaultStopLossPct)
	v.SetDefault("TAKE_PROFIT_PCT", defaultTakeProfitPct)
	v.SetDefault("RESYNC_DELAY_SEC", defaultResyncDelaySec)
	v.SetDefault("RESYNC_PERIOD_SEC", defaultResyncPeriodSec)
	v.SetDefault("METRICS_ADDR", "")
	v.SetDefault("LOG_LEVEL", defaultLogLevel)

	sender := v.GetString("SENDER_COMP_ID")
	if sender == "" {
		return nil, errors.New("missing config: FIXTRADER_SENDER_COMP_ID is not set")
	}
	password := v.GetString("PASSWORD")
	if password == "" {
		return nil, errors.New("missing config: FIXTRADER_PASSWORD is not set")
	}

	qty, err := decimal.NewFromString(v.GetString("TRADE_QTY"))
	if err != nil {
		return nil, fmt.Errorf("parse FIXTRADER_TRADE_QTY: %w", err)
	}
	slPct, err := decimal.NewFromString(v.GetString("STOP_LOSS_PCT"))
	if err != nil {
		return nil, fmt.Errorf("parse FIXTRADER_STOP_LOSS_PCT: %w", err)
	}
	tpPct, err := decimal.NewFromString(v.GetString("TAKE_PROFIT_PCT"))
	if err != nil {
		return nil, fmt.Errorf("parse FIXTRADER_TAKE_PROFIT_PCT: %w", err)
	}

	var symbols []string
	for _, s := range strings.Split(v.GetString("SYMBOLS"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}

	return &Config{
		Session: Session{
			Host:         v.GetString("HOST"),
			QuotePort:    v.GetInt("QUOTE_PORT"),
			TradePort:    v.GetInt("TRADE_PORT"),
			SenderCompID: sender,
			TargetCompID: v.GetString("TARGET_COMP_ID"),
			Password:     password,
			Heartbeat:    time.Duration(v.GetInt("HEARTBEAT_SEC")) * time.Second,
			ReadTimeout:  time.Duration(v.GetInt("READ_TIMEOUT_SEC")) * time.Second,
		},
		Trading: Trading{
			Symbols:       symbols,
			Qty:           qty,
			StopLossPct:   slPct,
			TakeProfitPct: tpPct,
			ResyncDelay:   time.Duration(v.GetInt("RESYNC_DELAY_SEC")) * time.Second,
			ResyncPeriod:  time.Duration(v.GetInt("RESYNC_PERIOD_SEC")) * time.Second,
		},
		HistoryPath: v.GetString("HISTORY_PATH"),
		MetricsAddr: v.GetString("METRICS_ADDR"),
		LogLevel:    v.GetString("LOG_LEVEL"),
	}, nil
}

// Package client owns the two FIX channels (quote, trade), routes inbound
// messages into the trading ledger, and exposes the command surface the
// strategy and the operator-facing collaborators call.
package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/fixtrader/internal/config"
	"github.com/finbridge/fixtrader/internal/fix"
	"github.com/finbridge/fixtrader/internal/history"
	"github.com/finbridge/fixtrader/internal/ledger"
	"github.com/finbridge/fixtrader/internal/notify"
)

var (
	// ErrNotReady fails trading commands fast when the trade session is not
	// logged on; requests are never queued.
	ErrNotReady = errors.New("client: trade session not logged on")

	// ErrNoSession means no channel is available for the request.
	ErrNoSession = errors.New("client: no active session")

	// ErrConnectFailed means neither channel came up within the retry budget.
	ErrConnectFailed = errors.New("client: could not connect any session")
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
	logonWaitStep   = 500 * time.Millisecond
	logonWaitSteps  = 10
)

// Channel is the session surface the client depends on. *fix.Session
// implements it; tests substitute fakes.
type Channel interface {
	Connect(ctx context.Context) error
	Stop()
	Send(msgType string, body *fix.Message) error
	Connected() bool
	LoggedOn() bool
	Channel() string
}

// HistoryStore persists fills durably. Append must be synchronous.
type HistoryStore interface {
	Append(e *history.Entry) error
}

// TickFunc receives every market data tick for fan-out to subscribers
// (bar aggregation and strategy live outside the core).
type TickFunc func(symbol string, px decimal.Decimal)

// Client is the trading client: two sessions, the ledger, and the router.
type Client struct {
	log      *zap.Logger
	trading  config.Trading
	quote    Channel
	trade    Channel
	ledger   *ledger.Ledger
	store    HistoryStore
	notifier notify.Notifier
	symbols  *SymbolMap

	subsMu   sync.Mutex
	tickSubs []TickFunc

	resyncPending atomic.Bool
}

// New wires a client over real FIX sessions. store may be nil (no durable
// history); notifier may be nil (silent).
func New(cfg *config.Config, led *ledger.Ledger, store HistoryStore, notifier notify.Notifier, log *zap.Logger) *Client {
	c := &Client{
		log:      log,
		trading:  cfg.Trading,
		ledger:   led,
		store:    store,
		notifier: notifier,
		symbols:  NewSymbolMap(),
	}
	base := fix.SessionConfig{
		Host:         cfg.Session.Host,
		SenderCompID: cfg.Session.SenderCompID,
		TargetCompID: cfg.Session.TargetCompID,
		Password:     cfg.Session.Password,
		Heartbeat:    cfg.Session.Heartbeat,
		ReadTimeout:  cfg.Session.ReadTimeout,
	}
	quoteCfg, tradeCfg := base, base
	quoteCfg.Port, quoteCfg.SenderSubID = cfg.Session.QuotePort, "QUOTE"
	tradeCfg.Port, tradeCfg.SenderSubID = cfg.Session.TradePort, "TRADE"
	c.quote = fix.NewSession(quoteCfg, c, log, nil)
	c.trade = fix.NewSession(tradeCfg, c, log, nil)
	return c
}

// Start brings up both channels with the retry policy: up to five attempts
// each with a fixed backoff, an attempt counting as success only once the
// broker confirms the logon (a TCP connect with a rejected logon is a
// failure). Channel failures are independent; the client reports and runs in
// degraded quote-only or trade-only mode.
func (c *Client) Start(ctx context.Context) error {
	quoteOK := c.startChannel(ctx, c.quote)
	tradeOK := c.startChannel(ctx, c.trade)

	switch {
	case quoteOK && tradeOK:
		c.log.Info("connected, both channels up")
		c.notify("SYSTEM STARTED: connected (full)")
	case quoteOK:
		c.log.Warn("partial connection: quote only, trade channel failed")
		c.notify("PARTIAL CONNECTION: quote only, trade channel failed")
	case tradeOK:
		c.log.Warn("partial connection: trade only, quote channel failed")
		c.notify("PARTIAL CONNECTION: trade only, quote channel failed")
	default:
		c.log.Error("connection failed on both channels")
		c.notify("CONNECTION FAILED: could not reach broker")
		return ErrConnectFailed
	}
	return nil
}

func (c *Client) startChannel(ctx context.Context, ch Channel) bool {
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		c.log.Info("connecting channel",
			zap.String("channel", ch.Channel()), zap.Int("attempt", attempt))
		if err := ch.Connect(ctx); err == nil {
			for i := 0; i < logonWaitSteps; i++ {
				if ch.LoggedOn() {
					return true
				}
				select {
				case <-ctx.Done():
					return false
				case <-time.After(logonWaitStep):
				}
			}
		}
		// The old socket must be fully closed before the next attempt
		// replaces it.
		ch.Stop()
		c.log.Warn("channel attempt failed, retrying", zap.String("channel", ch.Channel()))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(connectBackoff):
		}
	}
	return false
}

// Stop halts both sessions. Safe to call from any goroutine, repeatedly.
func (c *Client) Stop() {
	c.quote.Stop()
	c.trade.Stop()
}

// OnDisconnect implements fix.App: an unexpected disconnect is surfaced to
// the notifier exactly once per drop (the session guarantees single delivery).
func (c *Client) OnDisconnect(channel, reason string) {
	c.log.Warn("unexpected disconnect", zap.String("channel", channel), zap.String("reason", reason))
	c.notify("DISCONNECTED: " + channel + " (" + reason + ")")
}

// SubscribeTicks registers a market data fan-out callback.
func (c *Client) SubscribeTicks(fn TickFunc) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.tickSubs = append(c.tickSubs, fn)
}

func (c *Client) fanOutTick(symbol string, px decimal.Decimal) {
	c.subsMu.Lock()
	subs := make([]TickFunc, len(c.tickSubs))
	copy(subs, c.tickSubs)
	c.subsMu.Unlock()
	for _, fn := range subs {
		fn(symbol, px)
	}
}

// Ledger exposes the trading state for read-only reporting callers.
func (c *Client) Ledger() *ledger.Ledger { return c.ledger }

// Symbols exposes the name/id map.
func (c *Client) Symbols() *SymbolMap { return c.symbols }

func (c *Client) notify(text string) {
	if c.notifier != nil {
		c.notifier.Notify(text)
	}
}

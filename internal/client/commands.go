package client

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/fixtrader/internal/fix"
	"github.com/finbridge/fixtrader/internal/ledger"
	"github.com/finbridge/fixtrader/internal/metrics"
)

// OrderRequest describes an order to submit. Symbol may be a human name
// (resolved through the symbol map) or a raw broker id. Price is required for
// limit orders, StopPx for stop orders. PositionID targets a specific ticket
// on a hedging account; empty lets the broker pick.
type OrderRequest struct {
	Symbol     string
	Side       string // fix.SideBuy / fix.SideSell
	OrdType    string // fix.OrdTypeMarket / Limit / Stop
	Qty        decimal.Decimal
	Price      decimal.Decimal
	StopPx     decimal.Decimal
	PositionID string
}

// SubmitOrder sends a NewOrderSingle on the trade channel and returns the
// ClOrdID it was submitted under. It fails fast with ErrNotReady when the
// trade session is not logged on; commands are never queued.
func (c *Client) SubmitOrder(req OrderRequest) (string, error) {
	if !c.trade.LoggedOn() {
		return "", ErrNotReady
	}
	symbolID := req.Symbol
	if id, ok := c.symbols.Resolve(req.Symbol); ok {
		symbolID = id
	}

	clOrdID := c.ledger.NextClOrdID()

	body := fix.NewMessage()
	body.Append(fix.TagClOrdID, clOrdID)
	body.Append(fix.TagSymbol, symbolID)
	body.Append(fix.TagSide, req.Side)
	body.Append(fix.TagTransactTime, time.Now().UTC().Format(fix.UTCTimeFormat))
	body.AppendDecimal(fix.TagOrderQty, req.Qty)
	body.Append(fix.TagOrdType, req.OrdType)
	body.Append(fix.TagTimeInForce, "1") // GTC
	if req.OrdType == fix.OrdTypeLimit {
		body.AppendDecimal(fix.TagPrice, req.Price)
	}
	if req.OrdType == fix.OrdTypeStop {
		body.AppendDecimal(fix.TagStopPx, req.StopPx)
	}
	if req.PositionID != "" {
		body.Append(fix.TagPositionID, req.PositionID)
	}

	if err := c.trade.Send(fix.MsgTypeNewOrderSingle, body); err != nil {
		return "", err
	}
	metrics.OrdersSubmitted.Inc()
	c.log.Info("order submitted",
		zap.String("cl_ord_id", clOrdID), zap.String("symbol", req.Symbol),
		zap.String("side", fix.SideName(req.Side)), zap.String("ord_type", req.OrdType),
		zap.String("qty", req.Qty.String()))
	return clOrdID, nil
}

// CancelOrder sends an OrderCancelRequest for a tracked open order. The
// request carries a fresh ClOrdID and references the original via
// OrigClOrdID.
func (c *Client) CancelOrder(o ledger.Order) error {
	if !c.trade.LoggedOn() {
		return ErrNotReady
	}
	body := fix.NewMessage()
	body.Append(fix.TagClOrdID, c.ledger.NextClOrdID())
	body.Append(fix.TagOrigClOrdID, o.ClOrdID)
	body.Append(fix.TagSymbol, o.Symbol)
	body.Append(fix.TagSide, o.Side)
	body.AppendDecimal(fix.TagOrderQty, o.Qty)
	body.Append(fix.TagTransactTime, time.Now().UTC().Format(fix.UTCTimeFormat))
	return c.trade.Send(fix.MsgTypeOrderCancel, body)
}

// SubscribeMarketData opens a bid/ask spot subscription for a symbol. The
// quote channel is preferred; the trade channel serves as fallback when quote
// is down so prices keep flowing in degraded mode.
func (c *Client) SubscribeMarketData(symbol string) error {
	ch, err := c.quotePreferred()
	if err != nil {
		return err
	}
	symbolID := symbol
	if id, ok := c.symbols.Resolve(symbol); ok {
		symbolID = id
	}
	body := fix.NewMessage()
	body.Append(fix.TagMDReqID, uuid.NewString())
	body.Append(fix.TagSubscriptionReq, "1") // snapshot + updates
	body.AppendInt(fix.TagMarketDepth, 1)    // spot
	body.AppendInt(fix.TagMDUpdateType, 1)   // incremental
	body.AppendInt(fix.TagNoMDEntryTypes, 2)
	body.Append(fix.TagMDEntryType, "0") // bid
	body.Append(fix.TagMDEntryType, "1") // ask
	body.AppendInt(fix.TagNoRelatedSym, 1)
	body.Append(fix.TagSymbol, symbolID)
	c.log.Info("subscribing market data", zap.String("symbol", symbol), zap.String("channel", ch.Channel()))
	return ch.Send(fix.MsgTypeMarketDataReq, body)
}

// RequestPositions asks the broker for one Position Report per open ticket.
func (c *Client) RequestPositions() error {
	if !c.trade.LoggedOn() {
		return ErrNotReady
	}
	body := fix.NewMessage()
	body.Append(fix.TagPosReqID, uuid.NewString())
	body.AppendInt(fix.TagPosReqType, 0)
	return c.trade.Send(fix.MsgTypePositionsReq, body)
}

// RequestOrderMassStatus asks for a status report on every working order.
func (c *Client) RequestOrderMassStatus() error {
	if !c.trade.LoggedOn() {
		return ErrNotReady
	}
	body := fix.NewMessage()
	body.Append(fix.TagMassStatusReqID, uuid.NewString())
	body.AppendInt(fix.TagMassStatusType, 7) // all orders
	return c.trade.Send(fix.MsgTypeMassStatusReq, body)
}

// RequestSecurityList asks for the broker's instrument catalogue on the quote
// channel.
func (c *Client) RequestSecurityList() error {
	ch, err := c.quotePreferred()
	if err != nil {
		return err
	}
	body := fix.NewMessage()
	body.Append(fix.TagSecurityReqID, uuid.NewString())
	body.AppendInt(fix.TagSecurityListReq, 4) // all securities
	return ch.Send(fix.MsgTypeSecurityListReq, body)
}

// FetchSymbols refreshes the symbol map from the broker, polling briefly for
// the Security List response. The static fallback table is installed only
// when the exchange fails or returns nothing; a small catalogue is still the
// broker's catalogue and its ids are authoritative.
func (c *Client) FetchSymbols(ctx context.Context) {
	c.symbols.Clear()
	if err := c.RequestSecurityList(); err != nil {
		c.log.Warn("security list request failed", zap.Error(err))
	} else {
	poll:
		for i := 0; i < 10; i++ {
			if c.symbols.Len() > 0 {
				c.log.Info("symbol map loaded from broker", zap.Int("count", c.symbols.Len()))
				return
			}
			select {
			case <-ctx.Done():
				break poll
			case <-time.After(500 * time.Millisecond):
			}
		}
	}
	c.log.Warn("security list returned nothing, loading fallback symbols")
	c.symbols.LoadFallback()
}

// Resync converges local state with the broker: clear the ledger's orders,
// positions, and details, then request a fresh order mass status and position
// snapshot. Reports arriving from those requests rebuild the state.
func (c *Client) Resync() {
	metrics.Resyncs.Inc()
	c.ledger.Clear()
	if err := c.RequestOrderMassStatus(); err != nil {
		c.log.Warn("mass status request failed during resync", zap.Error(err))
	}
	if err := c.RequestPositions(); err != nil {
		c.log.Warn("positions request failed during resync", zap.Error(err))
	}
}

// scheduleResync arranges a single delayed resync. Multiple triggers inside
// the window (a burst of fills) coalesce into one.
func (c *Client) scheduleResync(delay time.Duration) {
	if !c.resyncPending.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(delay, func() {
		c.resyncPending.Store(false)
		c.Resync()
	})
}

// ClearState drops all local order and position state without requesting a
// refresh. The next resync or report rebuilds it.
func (c *Client) ClearState() {
	c.ledger.Clear()
}

// CloseAllPositions flattens the account: one opposite-side market order per
// tracked ticket, falling back to aggregate-leg orders for symbols with no
// ticket detail. Returns the number of close orders submitted.
func (c *Client) CloseAllPositions() (int, error) {
	if !c.trade.LoggedOn() {
		return 0, ErrNotReady
	}
	submitted := 0
	covered := make(map[string]bool)

	for _, d := range c.ledger.Details() {
		side := fix.SideSell
		if d.Side == "short" {
			side = fix.SideBuy
		}
		_, err := c.SubmitOrder(OrderRequest{
			Symbol:     d.Symbol,
			Side:       side,
			OrdType:    fix.OrdTypeMarket,
			Qty:        d.Qty,
			PositionID: d.PositionID,
		})
		if err != nil {
			return submitted, err
		}
		submitted++
		covered[d.Symbol+"/"+d.Side] = true
	}

	for sym, pos := range c.ledger.Positions() {
		if pos.Long.Qty.IsPositive() && !covered[sym+"/long"] {
			if _, err := c.SubmitOrder(OrderRequest{
				Symbol: sym, Side: fix.SideSell, OrdType: fix.OrdTypeMarket, Qty: pos.Long.Qty,
			}); err != nil {
				return submitted, err
			}
			submitted++
		}
		if pos.Short.Qty.IsPositive() && !covered[sym+"/short"] {
			if _, err := c.SubmitOrder(OrderRequest{
				Symbol: sym, Side: fix.SideBuy, OrdType: fix.OrdTypeMarket, Qty: pos.Short.Qty,
			}); err != nil {
				return submitted, err
			}
			submitted++
		}
	}
	return submitted, nil
}

// OrdersString renders the open order book for operator-facing output.
func (c *Client) OrdersString() string {
	orders := c.ledger.Orders()
	if len(orders) == 0 {
		return "No open orders."
	}
	var b strings.Builder
	b.WriteString("Open orders:\n")
	for _, o := range orders {
		b.WriteString("  ")
		b.WriteString(fix.SideName(o.Side))
		b.WriteString(" ")
		b.WriteString(c.symbols.NameOf(o.Symbol))
		b.WriteString(" qty ")
		b.WriteString(o.Qty.String())
		switch o.OrdType {
		case fix.OrdTypeStop:
			b.WriteString(" stop @ ")
			b.WriteString(o.StopPx.String())
		case fix.OrdTypeLimit:
			b.WriteString(" limit @ ")
			b.WriteString(o.Price.String())
		default:
			b.WriteString(" market")
		}
		if o.PositionID != "" {
			b.WriteString(" (ticket ")
			b.WriteString(o.PositionID)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// PositionsString renders positions with unrealized PnL where a price is known.
func (c *Client) PositionsString() string {
	positions := c.ledger.Positions()
	if len(positions) == 0 {
		return "No open positions."
	}
	var b strings.Builder
	b.WriteString("Open positions:\n")
	for sym, pos := range positions {
		name := c.symbols.NameOf(sym)
		if pos.Long.Qty.IsPositive() {
			b.WriteString("  LONG ")
			b.WriteString(name)
			b.WriteString(" qty ")
			b.WriteString(pos.Long.Qty.String())
			b.WriteString(" avg ")
			b.WriteString(pos.Long.AvgPx.String())
			b.WriteString("\n")
		}
		if pos.Short.Qty.IsPositive() {
			b.WriteString("  SHORT ")
			b.WriteString(name)
			b.WriteString(" qty ")
			b.WriteString(pos.Short.Qty.String())
			b.WriteString(" avg ")
			b.WriteString(pos.Short.AvgPx.String())
			b.WriteString("\n")
		}
		if pnl, ok := c.ledger.UnrealizedPnL(sym); ok {
			b.WriteString("    unrealized PnL: ")
			b.WriteString(signedFixed(pnl))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// quotePreferred picks the quote channel when logged on, otherwise the trade
// channel, otherwise fails.
func (c *Client) quotePreferred() (Channel, error) {
	if c.quote.LoggedOn() {
		return c.quote, nil
	}
	if c.trade.LoggedOn() {
		return c.trade, nil
	}
	return nil, ErrNoSession
}

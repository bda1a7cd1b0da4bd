package client

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/fixtrader/internal/fix"
	"github.com/finbridge/fixtrader/internal/history"
	"github.com/finbridge/fixtrader/internal/ledger"
	"github.com/finbridge/fixtrader/internal/metrics"
)

// Kind classifies a decoded inbound message. Keeping the set closed forces
// the router switch to account for every message the dialect can produce.
type Kind int

const (
	KindUnknown Kind = iota
	KindHeartbeat
	KindTestRequest
	KindLogon
	KindLogout
	KindReject
	KindBusinessReject
	KindMarketData
	KindMarketDataReject
	KindSecurityList
	KindExecutionReport
	KindPositionReport
)

func classify(msgType string) Kind {
	switch msgType {
	case fix.MsgTypeHeartbeat:
		return KindHeartbeat
	case fix.MsgTypeTestRequest:
		return KindTestRequest
	case fix.MsgTypeLogon:
		return KindLogon
	case fix.MsgTypeLogout:
		return KindLogout
	case fix.MsgTypeReject:
		return KindReject
	case fix.MsgTypeBusinessReject:
		return KindBusinessReject
	case fix.MsgTypeMarketDataSnap, fix.MsgTypeMarketDataIncr:
		return KindMarketData
	case fix.MsgTypeMarketDataReject:
		return KindMarketDataReject
	case fix.MsgTypeSecurityList:
		return KindSecurityList
	case fix.MsgTypeExecutionReport:
		return KindExecutionReport
	case fix.MsgTypePositionReport:
		return KindPositionReport
	default:
		return KindUnknown
	}
}

// OnMessage implements fix.App. It runs on the session's single reader
// goroutine, so inbound processing per channel is strictly in arrival order.
func (c *Client) OnMessage(channel string, msg *fix.Message) {
	switch classify(msg.MsgType()) {
	case KindHeartbeat, KindTestRequest, KindLogon:
		// Session-level; already handled by the session itself.
	case KindLogout:
		c.log.Info("logout observed", zap.String("channel", channel),
			zap.String("text", msg.GetOr(fix.TagText, "")))
	case KindReject, KindBusinessReject:
		c.handleReject(channel, msg)
	case KindMarketData:
		c.handleMarketData(msg)
	case KindMarketDataReject:
		c.log.Warn("market data request rejected",
			zap.String("channel", channel),
			zap.String("req_id", msg.GetOr(fix.TagMDReqID, "")),
			zap.String("text", msg.GetOr(fix.TagText, "")))
	case KindSecurityList:
		c.handleSecurityList(msg)
	case KindExecutionReport:
		c.handleExecutionReport(channel, msg)
	case KindPositionReport:
		c.handlePositionReport(msg)
	case KindUnknown:
		c.log.Debug("unhandled message type",
			zap.String("channel", channel), zap.String("msg_type", msg.MsgType()))
	}
}

func (c *Client) handleMarketData(msg *fix.Message) {
	symbol, ok := msg.Get(fix.TagSymbol)
	if !ok {
		return
	}
	px, ok := msg.GetDecimal(fix.TagMDEntryPx)
	if !ok {
		return
	}
	c.ledger.SetPrice(symbol, px)
	c.fanOutTick(symbol, px)
}

// handleReject classifies broker rejections. Rejections of request types the
// broker is known not to support are log-only: a fallback path (mass status +
// scheduled resync) already covers them. Anything else is surfaced.
func (c *Client) handleReject(channel string, msg *fix.Message) {
	text := msg.GetOr(fix.TagText, "")
	refMsgType := msg.GetOr(fix.TagRefMsgType, "")

	if refMsgType == fix.MsgTypePositionsReq || refMsgType == fix.MsgTypeMassStatusReq {
		c.log.Warn("request type unsupported by broker, fallback in effect",
			zap.String("channel", channel),
			zap.String("ref_msg_type", refMsgType),
			zap.String("text", text))
		return
	}

	c.log.Warn("broker reject", zap.String("channel", channel),
		zap.String("ref_msg_type", refMsgType), zap.String("text", text))
	c.notify("REJECT (" + channel + "): " + text)
}

// handleSecurityList walks the repeating group: each entry is 55=id followed
// by 107=name.
func (c *Client) handleSecurityList(msg *fix.Message) {
	var id string
	msg.Fields(func(tag int, value string) {
		switch tag {
		case fix.TagSymbol:
			id = value
		case fix.TagSecurityDesc:
			if id != "" {
				c.symbols.Put(value, id)
				id = ""
			}
		}
	})
}

func (c *Client) handleExecutionReport(channel string, msg *fix.Message) {
	execType := msg.GetOr(fix.TagExecType, "")
	ordStatus := msg.GetOr(fix.TagOrdStatus, "")
	orderID := msg.GetOr(fix.TagOrderID, "")
	clOrdID := msg.GetOr(fix.TagClOrdID, "")
	symbol := msg.GetOr(fix.TagSymbol, "")
	side := msg.GetOr(fix.TagSide, "")
	ordType := msg.GetOr(fix.TagOrdType, "")
	positionID := msg.GetOr(fix.TagPositionID, "")
	text := msg.GetOr(fix.TagText, "")
	qty, _ := msg.GetDecimal(fix.TagOrderQty)
	price, _ := msg.GetDecimal(fix.TagPrice)
	stopPx, _ := msg.GetDecimal(fix.TagStopPx)

	label := fix.SideName(side) + " " + c.symbols.NameOf(symbol) + " " + qty.String()

	switch execType {
	case fix.ExecTypeNew:
		c.ledger.RegisterOrder(ledger.Order{
			ClOrdID:    clOrdID,
			OrderID:    orderID,
			Symbol:     symbol,
			Side:       side,
			OrdType:    ordType,
			PositionID: positionID,
			Status:     ordStatus,
			Qty:        qty,
			Price:      price,
			StopPx:     stopPx,
		})
		c.log.Info("order accepted", zap.String("channel", channel), zap.String("order", label))
		c.notify("ORDER ACCEPTED: " + label)

	case fix.ExecTypeTrade:
		c.handleFill(msg, orderID, symbol, side, ordType, positionID, ordStatus, qty, price)

	case fix.ExecTypeRejected:
		c.ledger.RemoveOrder(orderID)
		metrics.OrdersRejected.Inc()
		c.log.Warn("order rejected", zap.String("order", label), zap.String("reason", text))
		c.notify("ORDER REJECTED: " + label + " — reason: " + text)

	case fix.ExecTypeCanceled:
		if _, ok := c.ledger.RemoveOrder(orderID); ok {
			c.log.Info("order canceled", zap.String("order_id", orderID))
			c.notify("ORDER CANCELED: " + label)
		}

	case fix.ExecTypeOrderStatus:
		c.handleOrderStatus(orderID, clOrdID, symbol, side, ordType, positionID, ordStatus, qty, price, stopPx)

	default:
		c.log.Debug("unhandled exec type", zap.String("exec_type", execType))
	}
}

// handleFill processes a partial or full trade fill: realized PnL, the
// durable history append, OCO sibling cancellation, and the delayed resync.
// The position table is deliberately not touched here — on a hedging account
// a Buy fill may open a long or close a short, so the scheduled
// clear-then-request resync is the only authority on positions.
func (c *Client) handleFill(msg *fix.Message, orderID, symbol, side, ordType, positionID, ordStatus string, qty, price decimal.Decimal) {
	fillPx, ok := msg.GetDecimal(fix.TagLastPx)
	if !ok {
		fillPx = price
	}
	fillQty, ok := msg.GetDecimal(fix.TagLastQty)
	if !ok {
		fillQty = qty
	}

	pnl := c.ledger.RealizedPnL(symbol, side, fillQty, fillPx)

	entry := history.Entry{
		Time:        time.Now(),
		Symbol:      symbol,
		Side:        fix.SideName(side),
		Qty:         fillQty,
		Price:       fillPx,
		RealizedPnL: pnl,
		OrdType:     ordType,
	}
	c.ledger.RecordFill(entry)
	if c.store != nil {
		if err := c.store.Append(&entry); err != nil {
			// The fill stays in the in-memory mirror; only durability degraded.
			c.log.Error("history append failed", zap.Error(err))
		}
	}
	metrics.OrdersFilled.Inc()
	if pnl.Valid {
		f, _ := pnl.Decimal.Float64()
		metrics.RealizedPnL.Add(f)
	}

	label := fillLabel(ordType)
	text := label + ": " + fix.SideName(side) + " " + c.symbols.NameOf(symbol) +
		" qty " + fillQty.String() + " @ " + fillPx.String()
	if pnl.Valid {
		text += "\nRealized PnL: " + signedFixed(pnl.Decimal)
	}
	c.log.Info("fill",
		zap.String("symbol", symbol), zap.String("side", fix.SideName(side)),
		zap.String("qty", fillQty.String()), zap.String("price", fillPx.String()),
		zap.Bool("pnl_known", pnl.Valid))
	c.notify(text)

	// A partially filled order is still working: it stays in the book and its
	// sibling keeps protecting the remainder.
	if ordStatus == fix.OrdStatusFilled {
		c.cancelSibling(orderID, ordType, positionID)
		c.ledger.RemoveOrder(orderID)
	}

	c.scheduleResync(c.trading.ResyncDelay)
}

// cancelSibling implements OCO: when a protective order fills, the other
// protective order on the same ticket must be canceled, or it can later fill
// against a position that no longer exists.
func (c *Client) cancelSibling(filledOrderID, ordType, positionID string) {
	if positionID == "" {
		return
	}
	if ordType != fix.OrdTypeStop && ordType != fix.OrdTypeLimit {
		return
	}
	siblingType := fix.OrdTypeLimit
	if ordType == fix.OrdTypeLimit {
		siblingType = fix.OrdTypeStop
	}
	for _, o := range c.ledger.OrdersByPosition(positionID) {
		if o.OrderID == filledOrderID || o.OrdType != siblingType {
			continue
		}
		c.log.Info("canceling OCO sibling",
			zap.String("position_id", positionID),
			zap.String("sibling_cl_ord_id", o.ClOrdID))
		if err := c.CancelOrder(o); err != nil {
			c.log.Error("OCO cancel failed", zap.Error(err))
			continue
		}
		metrics.OCOCancels.Inc()
		return
	}
}

// handleOrderStatus processes one mass-status response entry. Non-terminal
// orders are (re-)registered; filled ones trigger a resync so the position
// table converges without racing the broker's settlement.
func (c *Client) handleOrderStatus(orderID, clOrdID, symbol, side, ordType, positionID, ordStatus string, qty, price, stopPx decimal.Decimal) {
	switch ordStatus {
	case fix.OrdStatusFilled, fix.OrdStatusPartiallyFilled:
		c.scheduleResync(c.trading.ResyncDelay)
		if ordStatus == fix.OrdStatusFilled {
			return
		}
	case fix.OrdStatusCanceled, fix.OrdStatusRejected:
		return
	}
	c.ledger.RegisterOrder(ledger.Order{
		ClOrdID:    clOrdID,
		OrderID:    orderID,
		Symbol:     symbol,
		Side:       side,
		OrdType:    ordType,
		PositionID: positionID,
		Status:     ordStatus,
		Qty:        qty,
		Price:      price,
		StopPx:     stopPx,
	})
}

func (c *Client) handlePositionReport(msg *fix.Message) {
	symbol, ok := msg.Get(fix.TagSymbol)
	if !ok {
		c.log.Warn("position report without symbol", zap.String("msg", msg.String()))
		return
	}
	longQty, _ := msg.GetDecimal(fix.TagLongQty)
	shortQty, _ := msg.GetDecimal(fix.TagShortQty)
	px, _ := msg.GetDecimal(fix.TagSettlPrice)
	positionID := msg.GetOr(fix.TagPositionID, "")

	c.log.Info("position report",
		zap.String("symbol", symbol),
		zap.String("long", longQty.String()), zap.String("short", shortQty.String()),
		zap.String("px", px.String()), zap.String("position_id", positionID))

	c.ledger.ApplyPositionReport(symbol, longQty, shortQty, px, positionID)
}

func fillLabel(ordType string) string {
	switch ordType {
	case fix.OrdTypeStop:
		return "STOP LOSS FILLED"
	case fix.OrdTypeLimit:
		return "TAKE PROFIT / LIMIT FILLED"
	default:
		return "ORDER FILLED"
	}
}

func signedFixed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

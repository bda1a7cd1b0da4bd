// Package ledger is the authoritative in-memory model of open orders, hedged
// positions, per-ticket position details, and the fill history used for PnL.
//
// All state is guarded by one coarse mutex. Mutations come from the message
// router and a small set of command methods; readers take snapshots. No method
// performs network I/O, so the lock is never held across a send.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/fixtrader/internal/history"
)

// Order is one open order as tracked by the client. Price and StopPx are zero
// when the order carries none.
type Order struct {
	ClOrdID    string
	OrderID    string
	Symbol     string
	Side       string // fix.SideBuy / fix.SideSell
	OrdType    string // fix.OrdTypeMarket / Limit / Stop
	PositionID string // owning ticket, when the broker tagged one
	Status     string
	Qty        decimal.Decimal
	Price      decimal.Decimal
	StopPx     decimal.Decimal
}

// Leg is one directional exposure on an instrument. A leg with zero quantity
// has no defined average price and must not be used in PnL math.
type Leg struct {
	Qty   decimal.Decimal
	AvgPx decimal.Decimal
}

// Position holds the two independent legs of a hedging account.
type Position struct {
	Long  Leg
	Short Leg
}

// PositionDetail is one broker ticket on a hedging account.
type PositionDetail struct {
	PositionID string
	Symbol     string
	Side       string // "long" or "short"
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
}

// Ledger is the shared trading state.
type Ledger struct {
	log *zap.Logger

	mu           sync.Mutex
	orders       map[string]*Order // broker OrderID -> order
	positions    map[string]*Position
	details      map[string]*PositionDetail
	prices       map[string]decimal.Decimal
	priceTimes   map[string]time.Time
	fills        []history.Entry
	fillConsumed []bool
	orderCounter uint64
}

// New creates an empty ledger, optionally preloaded with persisted fill
// history (so the FIFO fallback survives restarts).
func New(log *zap.Logger, preload []history.Entry) *Ledger {
	l := &Ledger{
		log:        log,
		orders:     make(map[string]*Order),
		positions:  make(map[string]*Position),
		details:    make(map[string]*PositionDetail),
		prices:     make(map[string]decimal.Decimal),
		priceTimes: make(map[string]time.Time),
	}
	for _, e := range preload {
		l.fills = append(l.fills, e)
		// Entries that already realized PnL closed something; they are not
		// candidates for matching future closes.
		l.fillConsumed = append(l.fillConsumed, e.RealizedPnL.Valid)
	}
	return l
}

// NextClOrdID issues a process-unique client order id. Wall-clock millis plus
// a monotonic counter stays collision-free even when a stop and a limit are
// submitted within the same millisecond.
func (l *Ledger) NextClOrdID() string {
	l.mu.Lock()
	l.orderCounter++
	n := l.orderCounter
	l.mu.Unlock()
	return fmt.Sprintf("ord%d_%d", time.Now().UnixMilli(), n)
}

// RegisterOrder inserts or replaces an open order keyed by broker OrderID.
func (l *Ledger) RegisterOrder(o Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := o
	l.orders[o.OrderID] = &cp
}

// RemoveOrder deletes an open order, returning it if it was tracked.
func (l *Ledger) RemoveOrder(orderID string) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok {
		return Order{}, false
	}
	delete(l.orders, orderID)
	return *o, true
}

// Orders returns a snapshot of all open orders.
func (l *Ledger) Orders() []Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Order, 0, len(l.orders))
	for _, o := range l.orders {
		out = append(out, *o)
	}
	return out
}

// OrdersByPosition returns the open orders tagged with the given ticket.
func (l *Ledger) OrdersByPosition(positionID string) []Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Order
	for _, o := range l.orders {
		if o.PositionID == positionID {
			out = append(out, *o)
		}
	}
	return out
}

// SetPrice updates the latest-price cache.
func (l *Ledger) SetPrice(symbol string, px decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prices[symbol] = px
	l.priceTimes[symbol] = time.Now()
}

// Price returns the cached latest price and its timestamp.
func (l *Ledger) Price(symbol string) (decimal.Decimal, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	px, ok := l.prices[symbol]
	return px, l.priceTimes[symbol], ok
}

// ApplyPositionReport accumulates one Position Report into the aggregate legs
// using volume-weighted averaging, and upserts the per-ticket detail when the
// broker supplied a position id. A resync cycle emits one report per ticket,
// so accumulation (never replacement) is required; the caller must have
// cleared state immediately before requesting.
func (l *Ledger) ApplyPositionReport(symbol string, longQty, shortQty, px decimal.Decimal, positionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		pos = &Position{}
		l.positions[symbol] = pos
	}
	applyLeg(&pos.Long, longQty, px)
	applyLeg(&pos.Short, shortQty, px)

	if positionID != "" {
		d := &PositionDetail{PositionID: positionID, Symbol: symbol, EntryPrice: px}
		switch {
		case longQty.IsPositive():
			d.Side, d.Qty = "long", longQty
		case shortQty.IsPositive():
			d.Side, d.Qty = "short", shortQty
		default:
			// Flat ticket; nothing worth tracking.
			return
		}
		l.details[positionID] = d
	}
}

// applyLeg folds delta quantity at price px into a leg's running VWAP.
func applyLeg(leg *Leg, qty, px decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	total := leg.Qty.Add(qty)
	if leg.Qty.IsPositive() {
		leg.AvgPx = leg.Qty.Mul(leg.AvgPx).Add(qty.Mul(px)).Div(total)
	} else {
		leg.AvgPx = px
	}
	leg.Qty = total
}

// Position returns the aggregate legs for a symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns a snapshot of all aggregate positions.
func (l *Ledger) Positions() map[string]Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Position, len(l.positions))
	for sym, p := range l.positions {
		out[sym] = *p
	}
	return out
}

// Details returns a snapshot of all per-ticket position details.
func (l *Ledger) Details() []PositionDetail {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PositionDetail, 0, len(l.details))
	for _, d := range l.details {
		out = append(out, *d)
	}
	return out
}

// Clear drops orders, positions, and details ahead of a resync. The history
// mirror and the order id counter survive: ids must stay process-unique and
// the FIFO fallback must keep its entries.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = make(map[string]*Order)
	l.positions = make(map[string]*Position)
	l.details = make(map[string]*PositionDetail)
	l.log.Info("ledger state cleared")
}

// RecordFill appends a fill to the in-memory history mirror. Opening fills
// (null PnL) become candidates for the FIFO fallback.
func (l *Ledger) RecordFill(e history.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fills = append(l.fills, e)
	l.fillConsumed = append(l.fillConsumed, e.RealizedPnL.Valid)
}

// History returns a snapshot of the in-memory fill mirror.
func (l *Ledger) History() []history.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]history.Entry, len(l.fills))
	copy(out, l.fills)
	return out
}

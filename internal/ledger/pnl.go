package ledger

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/fixtrader/internal/fix"
)

// RealizedPnL computes the realized profit for a closing fill of qty at px.
// closingSide is the side of the fill itself: a Sell closes the long leg, a
// Buy closes the short leg.
//
// The cached leg average entry price is preferred. When the cache is empty
// (invalidated by a resync race) it falls back to a FIFO scan of fill history:
// the oldest still-open opposite-direction entry supplies the entry price and
// is consumed. The fallback trades true-average accuracy for the guarantee
// that a PnL figure exists whenever any entry history does; that approximation
// is deliberate. The result is null only when no entry data exists at all —
// the fill itself is still recorded by the caller.
func (l *Ledger) RealizedPnL(symbol, closingSide string, qty, px decimal.Decimal) decimal.NullDecimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.positions[symbol]; ok {
		if closingSide == fix.SideSell && pos.Long.Qty.IsPositive() {
			return nullDecimal(px.Sub(pos.Long.AvgPx).Mul(qty))
		}
		if closingSide == fix.SideBuy && pos.Short.Qty.IsPositive() {
			return nullDecimal(pos.Short.AvgPx.Sub(px).Mul(qty))
		}
	}

	entryPx, ok := l.fifoEntryPrice(symbol, closingSide)
	if !ok {
		l.log.Warn("no entry price for closing fill",
			zap.String("symbol", symbol), zap.String("side", fix.SideName(closingSide)))
		return decimal.NullDecimal{}
	}
	if closingSide == fix.SideSell {
		return nullDecimal(px.Sub(entryPx).Mul(qty))
	}
	return nullDecimal(entryPx.Sub(px).Mul(qty))
}

// fifoEntryPrice finds and consumes the oldest still-open opposite-direction
// fill for symbol. Caller holds the lock.
func (l *Ledger) fifoEntryPrice(symbol, closingSide string) (decimal.Decimal, bool) {
	wantSide := fix.SideName(fix.OppositeSide(closingSide))
	for i := range l.fills {
		if l.fillConsumed[i] {
			continue
		}
		if l.fills[i].Symbol == symbol && l.fills[i].Side == wantSide {
			l.fillConsumed[i] = true
			return l.fills[i].Price, true
		}
	}
	return decimal.Zero, false
}

// UnrealizedPnL values the open legs of symbol against the latest cached
// price. ok is false when there is no position or no price yet.
func (l *Ledger) UnrealizedPnL(symbol string) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return decimal.Zero, false
	}
	px, ok := l.prices[symbol]
	if !ok {
		return decimal.Zero, false
	}

	pnl := decimal.Zero
	valued := false
	if pos.Long.Qty.IsPositive() {
		pnl = pnl.Add(px.Sub(pos.Long.AvgPx).Mul(pos.Long.Qty))
		valued = true
	}
	if pos.Short.Qty.IsPositive() {
		pnl = pnl.Add(pos.Short.AvgPx.Sub(px).Mul(pos.Short.Qty))
		valued = true
	}
	return pnl, valued
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

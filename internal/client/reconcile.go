package client

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbridge/fixtrader/internal/fix"
	"github.com/finbridge/fixtrader/internal/metrics"
)

// ReconcileProtections walks every tracked ticket and submits whichever
// protective order (stop loss, take profit) is missing. Protective prices are
// derived from the ticket's entry price and the configured offsets:
//
//	long ticket:  stop below entry, limit above
//	short ticket: stop above entry, limit below
//
// Both orders close the position, so they carry the side opposite the ticket
// and the ticket's PositionID. The pass is idempotent: tickets with both
// orders working are skipped, and the exchange's ExecutionReport(New) for each
// submission registers the order before the next pass runs.
func (c *Client) ReconcileProtections() error {
	if !c.trade.LoggedOn() {
		return ErrNotReady
	}

	one := decimal.NewFromInt(1)
	for _, d := range c.ledger.Details() {
		hasStop, hasLimit := false, false
		for _, o := range c.ledger.OrdersByPosition(d.PositionID) {
			switch o.OrdType {
			case fix.OrdTypeStop:
				hasStop = true
			case fix.OrdTypeLimit:
				hasLimit = true
			}
		}
		if hasStop && hasLimit {
			continue
		}

		closeSide := fix.SideSell
		stopPx := d.EntryPrice.Mul(one.Sub(c.trading.StopLossPct))
		limitPx := d.EntryPrice.Mul(one.Add(c.trading.TakeProfitPct))
		if d.Side == "short" {
			closeSide = fix.SideBuy
			stopPx = d.EntryPrice.Mul(one.Add(c.trading.StopLossPct))
			limitPx = d.EntryPrice.Mul(one.Sub(c.trading.TakeProfitPct))
		}

		if !hasStop {
			if _, err := c.SubmitOrder(OrderRequest{
				Symbol:     d.Symbol,
				Side:       closeSide,
				OrdType:    fix.OrdTypeStop,
				Qty:        d.Qty,
				StopPx:     stopPx.Round(5),
				PositionID: d.PositionID,
			}); err != nil {
				return err
			}
			metrics.ReconcilerOrders.Inc()
			c.log.Info("reconciler placed stop loss",
				zap.String("position_id", d.PositionID),
				zap.String("symbol", c.symbols.NameOf(d.Symbol)),
				zap.String("stop_px", stopPx.Round(5).String()))
		}
		if !hasLimit {
			if _, err := c.SubmitOrder(OrderRequest{
				Symbol:     d.Symbol,
				Side:       closeSide,
				OrdType:    fix.OrdTypeLimit,
				Qty:        d.Qty,
				Price:      limitPx.Round(5),
				PositionID: d.PositionID,
			}); err != nil {
				return err
			}
			metrics.ReconcilerOrders.Inc()
			c.log.Info("reconciler placed take profit",
				zap.String("position_id", d.PositionID),
				zap.String("symbol", c.symbols.NameOf(d.Symbol)),
				zap.String("limit_px", limitPx.Round(5).String()))
		}
	}
	return nil
}

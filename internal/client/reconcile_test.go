package client

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/finbridge/fixtrader/internal/fix"
	"github.com/finbridge/fixtrader/internal/ledger"
)

type ReconcileSuite struct {
	suite.Suite
	c     *Client
	trade *fakeChannel
}

func (s *ReconcileSuite) SetupTest() {
	c, _, trade, _, _ := newTestClient(s.T())
	s.c, s.trade = c, trade
}

func (s *ReconcileSuite) newOrders() []sentMessage {
	return s.trade.sentOfType(fix.MsgTypeNewOrderSingle)
}

func (s *ReconcileSuite) byOrdType() map[string]*fix.Message {
	out := map[string]*fix.Message{}
	for _, m := range s.newOrders() {
		out[m.body.GetOr(fix.TagOrdType, "")] = m.body
	}
	return out
}

func (s *ReconcileSuite) TestPlacesMissingProtections() {
	s.c.ledger.ApplyPositionReport("41", dec("10"), decimal.Zero, dec("2000"), "p1")

	s.Require().NoError(s.c.ReconcileProtections())
	s.Require().Len(s.newOrders(), 2)
	byType := s.byOrdType()

	stop, ok := byType[fix.OrdTypeStop]
	s.Require().True(ok, "stop loss placed")
	// Long ticket: stop below entry at 2000 * (1 - 0.005).
	stopPx, ok := stop.GetDecimal(fix.TagStopPx)
	s.Require().True(ok)
	s.True(stopPx.Equal(dec("1990")), "got %s", stopPx)
	s.Equal(fix.SideSell, stop.GetOr(fix.TagSide, ""))
	s.Equal("p1", stop.GetOr(fix.TagPositionID, ""))
	s.Equal("10", stop.GetOr(fix.TagOrderQty, ""))

	limit, ok := byType[fix.OrdTypeLimit]
	s.Require().True(ok, "take profit placed")
	// Long ticket: limit above entry at 2000 * (1 + 0.01).
	limitPx, ok := limit.GetDecimal(fix.TagPrice)
	s.Require().True(ok)
	s.True(limitPx.Equal(dec("2020")), "got %s", limitPx)
	s.Equal(fix.SideSell, limit.GetOr(fix.TagSide, ""))
	s.Equal("p1", limit.GetOr(fix.TagPositionID, ""))
}

func (s *ReconcileSuite) TestShortTicketSides() {
	s.c.ledger.ApplyPositionReport("1", decimal.Zero, dec("1000"), dec("1.1000"), "p1")

	s.Require().NoError(s.c.ReconcileProtections())
	s.Require().Len(s.newOrders(), 2)
	for _, m := range s.newOrders() {
		s.Equal(fix.SideBuy, m.body.GetOr(fix.TagSide, ""), "short ticket closes with a buy")
	}

	byType := s.byOrdType()
	// Short ticket: stop above entry, limit below.
	stopPx, ok := byType[fix.OrdTypeStop].GetDecimal(fix.TagStopPx)
	s.Require().True(ok)
	s.True(stopPx.Equal(dec("1.1055")), "got %s", stopPx)
	limitPx, ok := byType[fix.OrdTypeLimit].GetDecimal(fix.TagPrice)
	s.Require().True(ok)
	s.True(limitPx.Equal(dec("1.089")), "got %s", limitPx)
}

func (s *ReconcileSuite) TestIdempotent() {
	s.c.ledger.ApplyPositionReport("41", dec("10"), decimal.Zero, dec("2000"), "p1")

	s.Require().NoError(s.c.ReconcileProtections())
	s.Require().Len(s.newOrders(), 2)

	// The broker acknowledged both orders; the book now shows them working.
	s.c.ledger.RegisterOrder(ledger.Order{
		ClOrdID: "cStop", OrderID: "bStop", Symbol: "41", Side: fix.SideSell,
		OrdType: fix.OrdTypeStop, PositionID: "p1", Qty: dec("10"),
	})
	s.c.ledger.RegisterOrder(ledger.Order{
		ClOrdID: "cLimit", OrderID: "bLimit", Symbol: "41", Side: fix.SideSell,
		OrdType: fix.OrdTypeLimit, PositionID: "p1", Qty: dec("10"),
	})

	s.Require().NoError(s.c.ReconcileProtections())
	s.Len(s.newOrders(), 2, "no duplicates placed")
}

func (s *ReconcileSuite) TestPlacesOnlyTheMissingOrder() {
	s.c.ledger.ApplyPositionReport("41", dec("10"), decimal.Zero, dec("2000"), "p1")
	s.c.ledger.RegisterOrder(ledger.Order{
		ClOrdID: "cStop", OrderID: "bStop", Symbol: "41", Side: fix.SideSell,
		OrdType: fix.OrdTypeStop, PositionID: "p1", Qty: dec("10"),
	})

	s.Require().NoError(s.c.ReconcileProtections())

	sent := s.newOrders()
	s.Require().Len(sent, 1)
	s.Equal(fix.OrdTypeLimit, sent[0].body.GetOr(fix.TagOrdType, ""))
}

func (s *ReconcileSuite) TestNotReady() {
	s.trade.loggedOn = false
	s.ErrorIs(s.c.ReconcileProtections(), ErrNotReady)
}

func TestReconcileSuite(t *testing.T) {
	suite.Run(t, new(ReconcileSuite))
}

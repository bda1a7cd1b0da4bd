// Package metrics exposes Prometheus collectors for the FIX client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionConnects counts successful socket connects per channel.
var SessionConnects = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixtrader_session_connects_total",
		Help: "Successful socket connections per channel",
	},
	[]string{"channel"},
)

// SessionDisconnects counts read-loop terminations per channel.
var SessionDisconnects = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixtrader_session_disconnects_total",
		Help: "Read loop terminations per channel",
	},
	[]string{"channel"},
)

// MessagesReceived counts decoded inbound messages by channel and type.
var MessagesReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixtrader_messages_received_total",
		Help: "Decoded inbound FIX messages by channel and MsgType",
	},
	[]string{"channel", "msg_type"},
)

// MessagesSent counts outbound messages by channel and type.
var MessagesSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixtrader_messages_sent_total",
		Help: "Outbound FIX messages by channel and MsgType",
	},
	[]string{"channel", "msg_type"},
)

// ProtocolErrors counts malformed inbound frames dropped by the parser.
var ProtocolErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixtrader_protocol_errors_total",
		Help: "Malformed inbound frames dropped without killing the connection",
	},
	[]string{"channel"},
)

// Order lifecycle counters.
var (
	OrdersSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixtrader_orders_submitted_total",
		Help: "New Order Singles sent to the broker",
	})
	OrdersFilled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixtrader_orders_filled_total",
		Help: "Execution reports with a trade fill",
	})
	OrdersRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixtrader_orders_rejected_total",
		Help: "Execution reports with a rejection",
	})
	OCOCancels = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixtrader_oco_cancels_total",
		Help: "Sibling protective orders canceled after a protective fill",
	})
	ReconcilerOrders = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixtrader_reconciler_orders_total",
		Help: "Protective orders issued by the reconciler",
	})
	Resyncs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fixtrader_resyncs_total",
		Help: "Clear-then-request state resynchronisations",
	})
	RealizedPnL = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fixtrader_realized_pnl",
		Help: "Cumulative realized PnL across all fills this process observed",
	})
)

func init() {
	prometheus.MustRegister(SessionConnects, SessionDisconnects, MessagesReceived, MessagesSent, ProtocolErrors)
	prometheus.MustRegister(OrdersSubmitted, OrdersFilled, OrdersRejected, OCOCancels, ReconcilerOrders, Resyncs, RealizedPnL)
}

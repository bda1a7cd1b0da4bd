package fix

// Tags for the FIX 4.4 subset spoken with the broker.
const (
	TagBeginString     = 8
	TagBodyLength      = 9
	TagCheckSum        = 10
	TagClOrdID         = 11
	TagLastPx          = 31
	TagLastQty         = 32
	TagMsgSeqNum       = 34
	TagMsgType         = 35
	TagOrderID         = 37
	TagOrderQty        = 38
	TagOrdStatus       = 39
	TagOrdType         = 40
	TagOrigClOrdID     = 41
	TagPrice           = 44
	TagSenderCompID    = 49
	TagSenderSubID     = 50
	TagSendingTime     = 52
	TagSide            = 54
	TagSymbol          = 55
	TagTargetCompID    = 56
	TagTargetSubID     = 57
	TagText            = 58
	TagTimeInForce     = 59
	TagTransactTime    = 60
	TagEncryptMethod   = 98
	TagStopPx          = 99
	TagHeartBtInt      = 108
	TagTestReqID       = 112
	TagResetSeqNumFlag = 141
	TagNoRelatedSym    = 146
	TagExecType        = 150
	TagSecurityReqID   = 320
	TagMDReqID         = 262
	TagSubscriptionReq = 263
	TagMarketDepth     = 264
	TagMDUpdateType    = 265
	TagNoMDEntryTypes  = 267
	TagMDEntryType     = 269
	TagMDEntryPx       = 270
	TagRefMsgType      = 372
	TagUsername        = 553
	TagPassword        = 554
	TagSecurityDesc    = 107
	TagSecurityListReq = 559
	TagMassStatusReqID = 584
	TagMassStatusType  = 585
	TagLongQty         = 704
	TagShortQty        = 705
	TagPosReqID        = 710
	TagPositionID      = 721
	TagPosReqType      = 724
	TagSettlPrice      = 730
)

// Message types.
const (
	MsgTypeHeartbeat        = "0"
	MsgTypeTestRequest      = "1"
	MsgTypeReject           = "3"
	MsgTypeLogout           = "5"
	MsgTypeExecutionReport  = "8"
	MsgTypeLogon            = "A"
	MsgTypeNewOrderSingle   = "D"
	MsgTypeOrderCancel      = "F"
	MsgTypeMarketDataReq    = "V"
	MsgTypeMarketDataSnap   = "W"
	MsgTypeMarketDataIncr   = "X"
	MsgTypeMarketDataReject = "Y"
	MsgTypeBusinessReject   = "j"
	MsgTypeSecurityListReq  = "x"
	MsgTypeSecurityList     = "y"
	MsgTypeMassStatusReq    = "AF"
	MsgTypePositionsReq     = "AN"
	MsgTypePositionReport   = "AP"
)

// Sides.
const (
	SideBuy  = "1"
	SideSell = "2"
)

// Order types.
const (
	OrdTypeMarket = "1"
	OrdTypeLimit  = "2"
	OrdTypeStop   = "3"
)

// Execution report exec types.
const (
	ExecTypeNew         = "0"
	ExecTypeCanceled    = "4"
	ExecTypeRejected    = "8"
	ExecTypeTrade       = "F"
	ExecTypeOrderStatus = "I"
)

// Order statuses.
const (
	OrdStatusNew             = "0"
	OrdStatusPartiallyFilled = "1"
	OrdStatusFilled          = "2"
	OrdStatusCanceled        = "4"
	OrdStatusRejected        = "8"
)

// SideName renders a FIX side code for logs and notifications.
func SideName(side string) string {
	switch side {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return side
	}
}

// OppositeSide returns the side that closes a position opened on the given side.
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

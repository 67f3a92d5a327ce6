package domain

// Signal is the output of crossover detection on two EMA streams.
type Signal string

const (
	SignalBullish Signal = "BULLISH"
	SignalBearish Signal = "BEARISH"
	SignalNone    Signal = "NONE"
)

// Opposite returns the reversal signal for s (NONE maps to NONE).
func (s Signal) Opposite() Signal {
	switch s {
	case SignalBullish:
		return SignalBearish
	case SignalBearish:
		return SignalBullish
	default:
		return SignalNone
	}
}

// Direction is the option position direction. Options are always bought
// to open: a bearish view is expressed by buying a put, never by
// shorting the option itself.
type Direction string

const (
	LongCall Direction = "LONG_CALL"
	LongPut  Direction = "LONG_PUT"
)

// PositionStatus represents the lifecycle state of a position. Exactly
// one non-CLOSED position may exist at any time.
type PositionStatus string

const (
	StatusNone         PositionStatus = "NONE"
	StatusPendingEntry PositionStatus = "PENDING_ENTRY"
	StatusOpen         PositionStatus = "OPEN"
	StatusPendingExit  PositionStatus = "PENDING_EXIT"
	StatusClosed       PositionStatus = "CLOSED"
)

// CloseReason indicates why a position was (or is being) closed.
type CloseReason string

const (
	CloseReasonStopLoss       CloseReason = "STOP_LOSS"
	CloseReasonTarget         CloseReason = "TARGET"
	CloseReasonSignalReversal CloseReason = "SIGNAL_REVERSAL"
	CloseReasonManual         CloseReason = "MANUAL"
	CloseReasonEndOfDay       CloseReason = "END_OF_DAY"
	CloseReasonShutdown       CloseReason = "SHUTDOWN"
	CloseReasonUnknown        CloseReason = "UNKNOWN"
)

// OrderAction distinguishes entry and exit intents.
type OrderAction string

const (
	ActionEntry OrderAction = "ENTRY"
	ActionExit  OrderAction = "EXIT"
)

// OrderType is the execution style requested from the broker.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TradingMode selects between simulated and real order execution.
type TradingMode string

const (
	ModePaper TradingMode = "PAPER"
	ModeLive  TradingMode = "LIVE"
)

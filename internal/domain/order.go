package domain

// OrderIntent is a request to change position state, produced by the
// polling loop or the webhook adapter and consumed exactly once by an
// order gateway. External callers never construct intents that bypass
// the state machine's acceptance functions.
type OrderIntent struct {
	Action     OrderAction // ENTRY or EXIT
	Symbol     string      // Option contract symbol
	Underlying string      // Underlying symbol the signal was computed on
	Direction  Direction   // Entry direction (ignored for EXIT)
	Quantity   int         // Units to trade, always positive
	OrderType  OrderType   // MARKET or LIMIT
	LimitPrice float64     // Required for LIMIT orders
	Reason     string      // Human-readable trigger (signal, webhook, risk rule)
}

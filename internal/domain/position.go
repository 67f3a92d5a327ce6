package domain

import "time"

// Position represents the single option position managed by the bot.
type Position struct {
	ID          int64          // Unique identifier for the position (usually from DB)
	Symbol      string         // Option contract symbol (e.g., "NSE:NIFTY25AUG24000CE")
	Underlying  string         // Underlying index/equity symbol
	Direction   Direction      // LONG_CALL or LONG_PUT
	EntryPrice  float64        // Premium paid per unit at entry (actual fill price)
	ExitPrice   float64        // Premium received per unit at exit (0 while open)
	Quantity    int            // Number of units (lot size multiples)
	StopLoss    float64        // Premium level that triggers a stop-loss exit
	Target      float64        // Premium level that triggers a target exit
	EntryTime   time.Time      // Timestamp of the entry fill
	ExitTime    time.Time      // Timestamp of the exit fill (zero value while open)
	Status      PositionStatus // Current lifecycle status
	PNL         float64        // Realized P&L, set when the position closes
	CloseReason CloseReason    // Why the position was closed
	OrderID     string         // Broker order ID of the entry order
}

// IsOpen reports whether the position currently holds filled exposure.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// IsActive reports whether the position is in any non-terminal state.
func (p *Position) IsActive() bool {
	return p.Status == StatusPendingEntry || p.Status == StatusOpen || p.Status == StatusPendingExit
}

// RealizedPNL computes the P&L for closing the position at exitPrice.
// Both calls and puts are bought to open and sold to close, so the
// premium difference applies identically for both directions.
func (p *Position) RealizedPNL(exitPrice float64) float64 {
	return (exitPrice - p.EntryPrice) * float64(p.Quantity)
}

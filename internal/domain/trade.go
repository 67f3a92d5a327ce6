package domain

import "time"

// Trade represents a completed round trip (entry fill to exit fill).
type Trade struct {
	ID          int64       // Unique identifier for the trade (usually from DB)
	PositionID  int64       // Identifier of the position this trade closed
	Symbol      string      // Option contract symbol
	Direction   Direction   // LONG_CALL or LONG_PUT
	EntryPrice  float64     // Premium paid per unit
	ExitPrice   float64     // Premium received per unit
	Quantity    int         // Units traded
	PNL         float64     // Realized profit and loss
	EntryTime   time.Time   // Timestamp of the entry fill
	ExitTime    time.Time   // Timestamp of the exit fill
	CloseReason CloseReason // Why the position was closed
}

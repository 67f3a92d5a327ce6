package domain

import "time"

// Candle represents a single OHLCV price sample.
type Candle struct {
	Timestamp time.Time // Start time of the interval
	Symbol    string    // Instrument symbol
	Timeframe string    // Candle resolution in minutes (e.g., "1", "5")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Traded volume
}

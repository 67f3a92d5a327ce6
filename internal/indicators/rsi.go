package indicators

import "fmt"

// RSI is a streaming Relative Strength Index using Wilder's smoothing.
// The first `period` price changes seed the average gain/loss; after
// that each update is O(1). A zero average loss yields RSI = 100
// rather than a division error.
type RSI struct {
	period    int
	seen      int // number of price changes consumed
	prevClose float64
	hasPrev   bool
	gainSum   float64
	lossSum   float64
	avgGain   float64
	avgLoss   float64
}

// NewRSI creates a streaming RSI with the given period.
func NewRSI(period int) (*RSI, error) {
	if period <= 0 {
		return nil, fmt.Errorf("RSI period must be positive, got %d", period)
	}
	return &RSI{period: period}, nil
}

// Name returns the series name of the indicator.
func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

// Period returns the configured period.
func (r *RSI) Period() int { return r.period }

// Update consumes the next closing price.
func (r *RSI) Update(close float64) {
	if !r.hasPrev {
		r.prevClose = close
		r.hasPrev = true
		return
	}
	change := close - r.prevClose
	r.prevClose = close
	r.seen++

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if r.seen <= r.period {
		r.gainSum += gain
		r.lossSum += loss
		if r.seen == r.period {
			r.avgGain = r.gainSum / float64(r.period)
			r.avgLoss = r.lossSum / float64(r.period)
		}
		return
	}

	// Wilder's smoothing
	n := float64(r.period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
}

// Value returns the current RSI; undefined until `period` price
// changes (period+1 samples) have been consumed.
func (r *RSI) Value() Value {
	if r.seen < r.period {
		return Undefined
	}
	if r.avgLoss == 0 {
		return defined(100)
	}
	rs := r.avgGain / r.avgLoss
	rsi := 100 - (100 / (1 + rs))
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}
	return defined(rsi)
}

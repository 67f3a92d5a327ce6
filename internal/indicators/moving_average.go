package indicators

import "fmt"

// EMA is a streaming Exponential Moving Average over closing prices.
// The recurrence EMA[t] = price[t]*k + EMA[t-1]*(1-k), k = 2/(period+1),
// is seeded with the arithmetic mean of the first `period` closes, so
// each update is O(1).
type EMA struct {
	period     int
	multiplier float64
	count      int
	warmupSum  float64
	ema        float64
}

// NewEMA creates a streaming EMA with the given period.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("EMA period must be positive, got %d", period)
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}, nil
}

// Name returns the series name of the indicator.
func (e *EMA) Name() string {
	return fmt.Sprintf("EMA(%d)", e.period)
}

// Period returns the configured period.
func (e *EMA) Period() int { return e.period }

// Update consumes the next closing price.
func (e *EMA) Update(close float64) {
	e.count++
	if e.count <= e.period {
		e.warmupSum += close
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (close-e.ema)*e.multiplier + e.ema
}

// Value returns the current EMA; undefined before `period` samples.
func (e *EMA) Value() Value {
	if e.count < e.period {
		return Undefined
	}
	return defined(e.ema)
}

// SMA is a streaming Simple Moving Average over a rolling window.
// A running sum with eviction of the oldest sample keeps updates O(1).
type SMA struct {
	period int
	window []float64
	head   int
	filled int
	sum    float64
}

// NewSMA creates a streaming SMA with the given period.
func NewSMA(period int) (*SMA, error) {
	if period <= 0 {
		return nil, fmt.Errorf("SMA period must be positive, got %d", period)
	}
	return &SMA{
		period: period,
		window: make([]float64, period),
	}, nil
}

// Name returns the series name of the indicator.
func (s *SMA) Name() string {
	return fmt.Sprintf("SMA(%d)", s.period)
}

// Period returns the configured period.
func (s *SMA) Period() int { return s.period }

// Update consumes the next closing price, evicting the oldest sample
// once the window is full.
func (s *SMA) Update(close float64) {
	if s.filled == s.period {
		s.sum -= s.window[s.head]
	} else {
		s.filled++
	}
	s.window[s.head] = close
	s.sum += close
	s.head = (s.head + 1) % s.period
}

// Value returns the current SMA; undefined before `period` samples.
func (s *SMA) Value() Value {
	if s.filled < s.period {
		return Undefined
	}
	return defined(s.sum / float64(s.period))
}

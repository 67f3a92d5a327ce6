package indicators

import (
	"fmt"
	"math"
)

// Bollinger is a streaming Bollinger Bands indicator: SMA ± k standard
// deviations over a rolling window. Running sum and sum-of-squares
// keep updates O(1).
type Bollinger struct {
	period int
	k      float64
	window []float64
	head   int
	filled int
	sum    float64
	sumSq  float64
}

// NewBollinger creates streaming Bollinger Bands with the given period
// and band width k (standard deviations, typically 2).
func NewBollinger(period int, k float64) (*Bollinger, error) {
	if period <= 0 {
		return nil, fmt.Errorf("Bollinger period must be positive, got %d", period)
	}
	if k <= 0 {
		return nil, fmt.Errorf("Bollinger band width must be positive, got %f", k)
	}
	return &Bollinger{
		period: period,
		k:      k,
		window: make([]float64, period),
	}, nil
}

// Name returns the series name of the indicator.
func (b *Bollinger) Name() string {
	return fmt.Sprintf("BB(%d,%.1f)", b.period, b.k)
}

// Update consumes the next closing price.
func (b *Bollinger) Update(close float64) {
	if b.filled == b.period {
		old := b.window[b.head]
		b.sum -= old
		b.sumSq -= old * old
	} else {
		b.filled++
	}
	b.window[b.head] = close
	b.sum += close
	b.sumSq += close * close
	b.head = (b.head + 1) % b.period
}

// Bands returns (upper, middle, lower); all undefined before `period`
// samples.
func (b *Bollinger) Bands() (upper, middle, lower Value) {
	if b.filled < b.period {
		return Undefined, Undefined, Undefined
	}
	n := float64(b.period)
	mean := b.sum / n
	variance := b.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0 // floating point noise on flat windows
	}
	sd := math.Sqrt(variance)
	return defined(mean + b.k*sd), defined(mean), defined(mean - b.k*sd)
}

package indicators

import "fmt"

// MACD is a streaming Moving Average Convergence Divergence indicator:
// the difference between a fast and a slow EMA of the close, with a
// signal EMA computed over that difference.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA // EMA over the MACD line, fed only once the line is defined
}

// NewMACD creates a streaming MACD with the given periods.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) (*MACD, error) {
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("MACD fast period (%d) must be less than slow period (%d)", fastPeriod, slowPeriod)
	}
	fast, err := NewEMA(fastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := NewEMA(slowPeriod)
	if err != nil {
		return nil, err
	}
	signal, err := NewEMA(signalPeriod)
	if err != nil {
		return nil, err
	}
	return &MACD{fast: fast, slow: slow, signal: signal}, nil
}

// Name returns the series name of the indicator.
func (m *MACD) Name() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", m.fast.period, m.slow.period, m.signal.period)
}

// Update consumes the next closing price.
func (m *MACD) Update(close float64) {
	m.fast.Update(close)
	m.slow.Update(close)
	fast, slow := m.fast.Value(), m.slow.Value()
	if fast.Defined && slow.Defined {
		m.signal.Update(fast.V - slow.V)
	}
}

// Line returns the MACD line (fast EMA − slow EMA).
func (m *MACD) Line() Value {
	fast, slow := m.fast.Value(), m.slow.Value()
	if !fast.Defined || !slow.Defined {
		return Undefined
	}
	return defined(fast.V - slow.V)
}

// Signal returns the signal line (EMA of the MACD line).
func (m *MACD) Signal() Value {
	return m.signal.Value()
}

// Histogram returns MACD line minus signal line.
func (m *MACD) Histogram() Value {
	line, sig := m.Line(), m.Signal()
	if !line.Defined || !sig.Defined {
		return Undefined
	}
	return defined(line.V - sig.V)
}

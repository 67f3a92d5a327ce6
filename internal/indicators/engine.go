package indicators

import (
	"errors"
	"fmt"
	"time"

	"emaOptionsBot/internal/domain"
)

// ErrOutOfOrderSample is returned when a candle's timestamp regresses
// behind the last consumed sample. The rolling buffer is append-only
// with monotonic non-decreasing timestamps.
var ErrOutOfOrderSample = errors.New("candle timestamp is older than the last consumed sample")

// Config holds the periods for all indicators the engine maintains.
type Config struct {
	FastPeriod      int     // fast EMA for crossover detection
	SlowPeriod      int     // slow EMA for crossover detection
	RSIPeriod       int     // default 14
	MACDFastPeriod  int     // default 12
	MACDSlowPeriod  int     // default 26
	MACDSignal      int     // default 9
	BollingerPeriod int     // default 20
	BollingerK      float64 // default 2
}

// Snapshot is the engine's output for one consumed candle. EMA values
// carry their previous-sample counterparts so crossover detection needs
// no access to the engine's history.
type Snapshot struct {
	Timestamp time.Time
	Close     float64

	FastEMA     Value
	SlowEMA     Value
	PrevFastEMA Value
	PrevSlowEMA Value

	RSI        Value
	MACD       Value
	MACDSignal Value
	MACDHist   Value

	BollUpper  Value
	BollMiddle Value
	BollLower  Value
}

// Engine computes all configured indicators incrementally, one O(1)
// update per consumed candle. It owns the price history exclusively;
// callers interact through Update and the series accessors.
type Engine struct {
	cfg  Config
	fast *EMA
	slow *EMA
	rsi  *RSI
	macd *MACD
	boll *Bollinger

	samples  int
	lastTS   time.Time
	prevFast Value
	prevSlow Value

	series map[string][]float64
}

// NewEngine creates an indicator engine. The fast period must be
// strictly less than the slow period; this is checked here because a
// misconfigured pair silently produces no crossovers.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= 0 {
		return nil, fmt.Errorf("EMA periods must be positive (fast=%d, slow=%d)", cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.FastPeriod >= cfg.SlowPeriod {
		return nil, fmt.Errorf("fast EMA period (%d) must be less than slow EMA period (%d)", cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.MACDFastPeriod <= 0 {
		cfg.MACDFastPeriod = 12
	}
	if cfg.MACDSlowPeriod <= 0 {
		cfg.MACDSlowPeriod = 26
	}
	if cfg.MACDSignal <= 0 {
		cfg.MACDSignal = 9
	}
	if cfg.BollingerPeriod <= 0 {
		cfg.BollingerPeriod = 20
	}
	if cfg.BollingerK <= 0 {
		cfg.BollingerK = 2
	}

	fast, err := NewEMA(cfg.FastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := NewEMA(cfg.SlowPeriod)
	if err != nil {
		return nil, err
	}
	rsi, err := NewRSI(cfg.RSIPeriod)
	if err != nil {
		return nil, err
	}
	macd, err := NewMACD(cfg.MACDFastPeriod, cfg.MACDSlowPeriod, cfg.MACDSignal)
	if err != nil {
		return nil, err
	}
	boll, err := NewBollinger(cfg.BollingerPeriod, cfg.BollingerK)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:    cfg,
		fast:   fast,
		slow:   slow,
		rsi:    rsi,
		macd:   macd,
		boll:   boll,
		series: make(map[string][]float64),
	}, nil
}

// WarmupSamples returns the number of candles needed before all
// crossover inputs are defined (one extra for the previous-sample EMA).
func (e *Engine) WarmupSamples() int {
	return e.cfg.SlowPeriod + 1
}

// Samples returns the number of candles consumed so far.
func (e *Engine) Samples() int { return e.samples }

// Series returns the ordered sequence of defined values computed for
// an indicator name (e.g. "EMA(9)"). A value is appended only once the
// warmup completes, so len(series) <= samples consumed.
func (e *Engine) Series(name string) []float64 {
	return e.series[name]
}

// Update consumes one candle and returns a snapshot of all indicator
// values after the update. Candles must arrive in timestamp order;
// out-of-order samples are rejected without touching the buffer.
func (e *Engine) Update(candle *domain.Candle) (*Snapshot, error) {
	if candle == nil {
		return nil, fmt.Errorf("candle must not be nil")
	}
	if e.samples > 0 && candle.Timestamp.Before(e.lastTS) {
		return nil, fmt.Errorf("sample at %s after %s: %w", candle.Timestamp, e.lastTS, ErrOutOfOrderSample)
	}

	e.prevFast = e.fast.Value()
	e.prevSlow = e.slow.Value()

	close := candle.Close
	e.fast.Update(close)
	e.slow.Update(close)
	e.rsi.Update(close)
	e.macd.Update(close)
	e.boll.Update(close)

	e.samples++
	e.lastTS = candle.Timestamp

	snap := &Snapshot{
		Timestamp:   candle.Timestamp,
		Close:       close,
		FastEMA:     e.fast.Value(),
		SlowEMA:     e.slow.Value(),
		PrevFastEMA: e.prevFast,
		PrevSlowEMA: e.prevSlow,
		RSI:         e.rsi.Value(),
		MACD:        e.macd.Line(),
		MACDSignal:  e.macd.Signal(),
		MACDHist:    e.macd.Histogram(),
	}
	snap.BollUpper, snap.BollMiddle, snap.BollLower = e.boll.Bands()

	e.appendSeries(e.fast.Name(), snap.FastEMA)
	e.appendSeries(e.slow.Name(), snap.SlowEMA)
	e.appendSeries(e.rsi.Name(), snap.RSI)
	e.appendSeries(e.macd.Name(), snap.MACD)
	e.appendSeries(e.boll.Name(), snap.BollMiddle)

	return snap, nil
}

func (e *Engine) appendSeries(name string, v Value) {
	if v.Defined {
		e.series[name] = append(e.series[name], v.V)
	}
}

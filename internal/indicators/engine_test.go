package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emaOptionsBot/internal/domain"
)

func candleAt(ts time.Time, close float64) *domain.Candle {
	return &domain.Candle{Timestamp: ts, Symbol: "NSE:NIFTY50-INDEX", Timeframe: "5", Close: close}
}

// closedFormEMA computes the EMA over the full series the slow way for
// comparison with the streaming implementation.
func closedFormEMA(closes []float64, period int) float64 {
	sum := 0.0
	for _, c := range closes[:period] {
		sum += c
	}
	ema := sum / float64(period)
	k := 2.0 / float64(period+1)
	for _, c := range closes[period:] {
		ema = (c-ema)*k + ema
	}
	return ema
}

func TestEMA_UndefinedBeforePeriod(t *testing.T) {
	ema, err := NewEMA(5)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		ema.Update(100 + float64(i))
		assert.False(t, ema.Value().Defined, "EMA must stay undefined until 5 samples")
	}
	ema.Update(104)
	v := ema.Value()
	require.True(t, v.Defined)
	assert.InDelta(t, 102.0, v.V, 1e-9, "seed is the SMA of the first 5 closes")
}

func TestEMA_MatchesClosedForm(t *testing.T) {
	closes := []float64{100, 102, 101, 103, 105, 104, 106, 108, 107, 110, 109, 111}
	ema, err := NewEMA(5)
	require.NoError(t, err)
	for _, c := range closes {
		ema.Update(c)
	}
	want := closedFormEMA(closes, 5)
	assert.InDelta(t, want, ema.Value().V, 1e-9)
}

func TestSMA_RollingWindow(t *testing.T) {
	sma, err := NewSMA(3)
	require.NoError(t, err)
	sma.Update(1)
	sma.Update(2)
	assert.False(t, sma.Value().Defined)
	sma.Update(3)
	assert.InDelta(t, 2.0, sma.Value().V, 1e-9)
	sma.Update(10)
	assert.InDelta(t, 5.0, sma.Value().V, 1e-9, "oldest sample must be evicted")
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	rsi, err := NewRSI(14)
	require.NoError(t, err)
	price := 100.0
	for i := 0; i < 15; i++ {
		rsi.Update(price)
		price += 1.0
	}
	v := rsi.Value()
	require.True(t, v.Defined)
	assert.InDelta(t, 100.0, v.V, 1e-9, "a loss-free window pins RSI at 100")
}

func TestRSI_UndefinedBeforeWarmup(t *testing.T) {
	rsi, err := NewRSI(14)
	require.NoError(t, err)
	for i := 0; i < 14; i++ {
		rsi.Update(100 + float64(i%3))
		assert.False(t, rsi.Value().Defined)
	}
	rsi.Update(101)
	assert.True(t, rsi.Value().Defined)
}

func TestNewEngine_RejectsBadPeriods(t *testing.T) {
	_, err := NewEngine(Config{FastPeriod: 21, SlowPeriod: 9})
	assert.Error(t, err, "fast >= slow must be rejected")

	_, err = NewEngine(Config{FastPeriod: 0, SlowPeriod: 21})
	assert.Error(t, err)
}

func TestEngine_RejectsOutOfOrderCandles(t *testing.T) {
	eng, err := NewEngine(Config{FastPeriod: 2, SlowPeriod: 3})
	require.NoError(t, err)

	base := time.Date(2026, 8, 21, 9, 15, 0, 0, time.UTC)
	_, err = eng.Update(candleAt(base, 100))
	require.NoError(t, err)
	_, err = eng.Update(candleAt(base.Add(5*time.Minute), 101))
	require.NoError(t, err)

	_, err = eng.Update(candleAt(base.Add(-5*time.Minute), 99))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfOrderSample)
	assert.Equal(t, 2, eng.Samples(), "rejected sample must not advance the buffer")
}

func TestEngine_SnapshotCarriesPreviousEMAs(t *testing.T) {
	eng, err := NewEngine(Config{FastPeriod: 2, SlowPeriod: 3})
	require.NoError(t, err)

	base := time.Date(2026, 8, 21, 9, 15, 0, 0, time.UTC)
	closes := []float64{100, 101, 102, 103, 104}
	var snaps []*Snapshot
	for i, c := range closes {
		snap, err := eng.Update(candleAt(base.Add(time.Duration(i)*5*time.Minute), c))
		require.NoError(t, err)
		snaps = append(snaps, snap)
	}

	last := snaps[len(snaps)-1]
	prev := snaps[len(snaps)-2]
	require.True(t, last.PrevFastEMA.Defined)
	assert.InDelta(t, prev.FastEMA.V, last.PrevFastEMA.V, 1e-12)
	assert.InDelta(t, prev.SlowEMA.V, last.PrevSlowEMA.V, 1e-12)
}

func TestEngine_WarmupSamples(t *testing.T) {
	eng, err := NewEngine(Config{FastPeriod: 9, SlowPeriod: 21})
	require.NoError(t, err)
	assert.Equal(t, 22, eng.WarmupSamples())

	base := time.Date(2026, 8, 21, 9, 15, 0, 0, time.UTC)
	for i := 0; i < eng.WarmupSamples(); i++ {
		snap, err := eng.Update(candleAt(base.Add(time.Duration(i)*5*time.Minute), 100+math.Sin(float64(i))))
		require.NoError(t, err)
		if i == eng.WarmupSamples()-1 {
			assert.True(t, snap.FastEMA.Defined)
			assert.True(t, snap.SlowEMA.Defined)
			assert.True(t, snap.PrevFastEMA.Defined)
			assert.True(t, snap.PrevSlowEMA.Defined)
		}
	}
}

func TestEngine_SeriesOnlyDefinedValues(t *testing.T) {
	eng, err := NewEngine(Config{FastPeriod: 2, SlowPeriod: 4})
	require.NoError(t, err)

	base := time.Date(2026, 8, 21, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		_, err := eng.Update(candleAt(base.Add(time.Duration(i)*5*time.Minute), 100+float64(i)))
		require.NoError(t, err)
	}
	assert.Len(t, eng.Series("EMA(2)"), 5)
	assert.Len(t, eng.Series("EMA(4)"), 3)
}

func TestMACD_SignalWarmsUpAfterLine(t *testing.T) {
	macd, err := NewMACD(3, 6, 4)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		macd.Update(100 + float64(i))
	}
	require.True(t, macd.Line().Defined)
	assert.False(t, macd.Signal().Defined, "signal needs its own warmup on the defined line")
	for i := 0; i < 4; i++ {
		macd.Update(106 + float64(i))
	}
	assert.True(t, macd.Signal().Defined)
	assert.True(t, macd.Histogram().Defined)
}

func TestBollinger_BandsBracketMiddle(t *testing.T) {
	boll, err := NewBollinger(4, 2)
	require.NoError(t, err)
	for _, c := range []float64{100, 102, 98, 104} {
		boll.Update(c)
	}
	upper, middle, lower := boll.Bands()
	require.True(t, middle.Defined)
	assert.InDelta(t, 101.0, middle.V, 1e-9)
	assert.Greater(t, upper.V, middle.V)
	assert.Less(t, lower.V, middle.V)
}

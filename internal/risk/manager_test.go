package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emaOptionsBot/internal/domain"
)

func TestNew_ValidatesPercentages(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{StopLossPct: 0.20, TargetPct: 0.40}, false},
		{"zero stop loss", Config{StopLossPct: 0, TargetPct: 0.40}, true},
		{"stop loss of one", Config{StopLossPct: 1.0, TargetPct: 0.40}, true},
		{"negative target", Config{StopLossPct: 0.20, TargetPct: -0.1}, true},
		{"target of one", Config{StopLossPct: 0.20, TargetPct: 1.0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLevels(t *testing.T) {
	m, err := New(Config{StopLossPct: 0.20, TargetPct: 0.40})
	require.NoError(t, err)

	stop, target := m.Levels(100.0)
	assert.InDelta(t, 80.0, stop, 1e-9)
	assert.InDelta(t, 140.0, target, 1e-9)
}

func openPosition(dir domain.Direction) *domain.Position {
	return &domain.Position{
		Symbol:     "NSE:NIFTY25AUG24000CE",
		Direction:  dir,
		EntryPrice: 100.0,
		StopLoss:   80.0,
		Target:     140.0,
		Quantity:   50,
		Status:     domain.StatusOpen,
	}
}

func TestShouldExit(t *testing.T) {
	m, err := New(Config{StopLossPct: 0.20, TargetPct: 0.40})
	require.NoError(t, err)

	tests := []struct {
		name       string
		price      float64
		dir        domain.Direction
		sig        domain.Signal
		wantExit   bool
		wantReason domain.CloseReason
	}{
		{"premium above stop, below target, no reversal", 100, domain.LongCall, domain.SignalNone, false, ""},
		{"premium at stop", 80, domain.LongCall, domain.SignalNone, true, domain.CloseReasonStopLoss},
		{"premium below stop", 70, domain.LongCall, domain.SignalNone, true, domain.CloseReasonStopLoss},
		{"premium at target", 140, domain.LongCall, domain.SignalNone, true, domain.CloseReasonTarget},
		{"premium above target", 150, domain.LongCall, domain.SignalNone, true, domain.CloseReasonTarget},
		{"bearish cross against a call", 100, domain.LongCall, domain.SignalBearish, true, domain.CloseReasonSignalReversal},
		{"bullish cross against a put", 100, domain.LongPut, domain.SignalBullish, true, domain.CloseReasonSignalReversal},
		{"bullish cross with a call held", 100, domain.LongCall, domain.SignalBullish, false, ""},
		{"stop breach wins over reversal", 75, domain.LongCall, domain.SignalBearish, true, domain.CloseReasonStopLoss},
		{"target breach wins over reversal", 145, domain.LongCall, domain.SignalBearish, true, domain.CloseReasonTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, reason := m.ShouldExit(tt.price, openPosition(tt.dir), tt.sig)
			assert.Equal(t, tt.wantExit, exit)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestShouldExit_IgnoresNonOpenPositions(t *testing.T) {
	m, err := New(Config{StopLossPct: 0.20, TargetPct: 0.40})
	require.NoError(t, err)

	pos := openPosition(domain.LongCall)
	pos.Status = domain.StatusPendingExit
	exit, _ := m.ShouldExit(10, pos, domain.SignalBearish)
	assert.False(t, exit)

	exit, _ = m.ShouldExit(10, nil, domain.SignalBearish)
	assert.False(t, exit)
}

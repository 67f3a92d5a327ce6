// Package risk computes stop-loss/target levels for long option
// positions and evaluates exit conditions on live premium prices.
package risk

import (
	"fmt"

	"emaOptionsBot/internal/domain"
)

// Config holds risk management parameters. Percentages are fractions
// (0.02 means 2%).
type Config struct {
	StopLossPct float64
	TargetPct   float64
}

// Manager implements risk management for long option positions.
type Manager struct {
	cfg Config
}

// New creates a risk manager. Percentages must sit strictly inside
// (0, 1); anything else is a configuration fault caught before any
// trading begins.
func New(cfg Config) (*Manager, error) {
	if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1 {
		return nil, fmt.Errorf("stop loss percent must be between 0 and 1 (exclusive), got %f", cfg.StopLossPct)
	}
	if cfg.TargetPct <= 0 || cfg.TargetPct >= 1 {
		return nil, fmt.Errorf("target percent must be between 0 and 1 (exclusive), got %f", cfg.TargetPct)
	}
	return &Manager{cfg: cfg}, nil
}

// Levels computes the stop-loss and target premium levels for a long
// option entered at entryPrice. Positions are always long the option,
// so the stop sits below entry and the target above it for both calls
// and puts.
func (m *Manager) Levels(entryPrice float64) (stopLoss, target float64) {
	return entryPrice * (1 - m.cfg.StopLossPct), entryPrice * (1 + m.cfg.TargetPct)
}

// ShouldExit evaluates exit conditions for an open position given the
// current option premium and the latest crossover signal on the
// underlying. Exactly one reason is reported; stop-loss is checked
// first so a simultaneous breach biases toward capital preservation.
func (m *Manager) ShouldExit(currentPrice float64, pos *domain.Position, sig domain.Signal) (bool, domain.CloseReason) {
	if pos == nil || !pos.IsOpen() {
		return false, ""
	}
	if currentPrice <= pos.StopLoss {
		return true, domain.CloseReasonStopLoss
	}
	if currentPrice >= pos.Target {
		return true, domain.CloseReasonTarget
	}
	if isReversal(pos.Direction, sig) {
		return true, domain.CloseReasonSignalReversal
	}
	return false, ""
}

// isReversal reports whether sig opposes the position's direction.
func isReversal(dir domain.Direction, sig domain.Signal) bool {
	switch dir {
	case domain.LongCall:
		return sig == domain.SignalBearish
	case domain.LongPut:
		return sig == domain.SignalBullish
	default:
		return false
	}
}

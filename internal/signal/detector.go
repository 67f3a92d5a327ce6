// Package signal detects EMA crossover events. A crossing is only
// signaled on the sample where strict inequality first appears:
// equality on the previous sample counts as "not yet crossed", so a
// run of exactly-equal values never re-signals.
package signal

import (
	"time"

	"emaOptionsBot/internal/domain"
	"emaOptionsBot/internal/indicators"
)

// Crossover is the ephemeral result of comparing two EMA streams on
// one sample. It is produced once per candle and not retained.
type Crossover struct {
	Signal    domain.Signal
	Timestamp time.Time
	Fast      float64 // fast EMA at the crossing sample
	Slow      float64 // slow EMA at the crossing sample
}

// Detect compares the previous and current fast/slow EMA values and
// returns the crossover direction. Always NONE when any input is
// undefined (insufficient history).
func Detect(prevFast, prevSlow, curFast, curSlow indicators.Value) domain.Signal {
	if !prevFast.Defined || !prevSlow.Defined || !curFast.Defined || !curSlow.Defined {
		return domain.SignalNone
	}
	if prevFast.V <= prevSlow.V && curFast.V > curSlow.V {
		return domain.SignalBullish
	}
	if prevFast.V >= prevSlow.V && curFast.V < curSlow.V {
		return domain.SignalBearish
	}
	return domain.SignalNone
}

// FromSnapshot runs detection on an indicator engine snapshot.
func FromSnapshot(snap *indicators.Snapshot) Crossover {
	c := Crossover{
		Signal:    Detect(snap.PrevFastEMA, snap.PrevSlowEMA, snap.FastEMA, snap.SlowEMA),
		Timestamp: snap.Timestamp,
	}
	if snap.FastEMA.Defined && snap.SlowEMA.Defined {
		c.Fast = snap.FastEMA.V
		c.Slow = snap.SlowEMA.V
	}
	return c
}

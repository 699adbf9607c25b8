// Package clock drives the tick cadence a run's Strategy Runner reacts to
// (spec §4.4, component C4): a backtest clock advances deterministically
// through historical time with no wall-clock sleeping, while a live clock
// ticks on real timeframe boundaries with drift compensation.
package clock

import (
	"context"
	"time"

	"github.com/weaverhq/weaver/internal/domain"
)

// Tick is one scheduling pulse. BarIndex is dense and starts at 0.
type Tick struct {
	Time     time.Time
	BarIndex int64
}

// Clock emits Ticks on the channel returned by Run until the run ends or
// ctx is cancelled, at which point that channel is closed.
type Clock interface {
	// Run starts emitting ticks and returns their channel, which is closed
	// once ctx is done or the clock reaches its end condition (backtest:
	// end time; live: never, until cancelled).
	Run(ctx context.Context) <-chan Tick

	// Align rounds t down to the start of its enclosing timeframe bucket
	// in UTC, e.g. 1h aligns to the top of the hour.
	Align(t time.Time, tf domain.Timeframe) time.Time
}

// AlignTime rounds t down to the start of its enclosing tf bucket in UTC.
// Shared by both Clock implementations so alignment semantics never drift
// between backtest and live.
func AlignTime(t time.Time, tf domain.Timeframe) time.Time {
	period := tf.Period()
	if period <= 0 {
		return t.UTC()
	}
	u := t.UTC()
	epoch := time.Unix(0, 0).UTC()
	elapsed := u.Sub(epoch)
	aligned := elapsed - elapsed%period
	return epoch.Add(aligned)
}

package clock

import (
	"context"
	"time"

	"github.com/weaverhq/weaver/internal/domain"
)

// BacktestClock replays [Start, End) in Timeframe-sized steps with no
// wall-clock delay: ticks are emitted as fast as the consumer can drain
// them, which is what makes backtests deterministic and reproducible
// regardless of the machine they run on.
type BacktestClock struct {
	Start     time.Time
	End       time.Time
	Timeframe domain.Timeframe
}

func (c *BacktestClock) Align(t time.Time, tf domain.Timeframe) time.Time {
	return AlignTime(t, tf)
}

// Run emits one Tick per period from Start up to (but excluding) End, then
// closes the channel. It never blocks on real time.
func (c *BacktestClock) Run(ctx context.Context) <-chan Tick {
	out := make(chan Tick)
	go func() {
		defer close(out)

		period := c.Timeframe.Period()
		if period <= 0 {
			return
		}
		start := AlignTime(c.Start, c.Timeframe)
		var barIndex int64
		for t := start; t.Before(c.End); t = t.Add(period) {
			select {
			case <-ctx.Done():
				return
			case out <- Tick{Time: t, BarIndex: barIndex}:
			}
			barIndex++
		}
	}()
	return out
}

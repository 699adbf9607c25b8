package clock

import (
	"context"
	"time"

	"github.com/weaverhq/weaver/internal/domain"
)

// RealtimeClock ticks on wall-clock Timeframe boundaries starting from
// Start. Unlike a plain time.Ticker, each wait target is recomputed as
// Start + n*period rather than "now + period", so scheduling jitter and
// slow consumers never accumulate drift across a long-running live run.
type RealtimeClock struct {
	Start     time.Time
	Timeframe domain.Timeframe

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

func (c *RealtimeClock) Align(t time.Time, tf domain.Timeframe) time.Time {
	return AlignTime(t, tf)
}

// Run emits one Tick per period, forever, until ctx is cancelled.
func (c *RealtimeClock) Run(ctx context.Context) <-chan Tick {
	now := c.now
	if now == nil {
		now = time.Now
	}
	out := make(chan Tick)
	go func() {
		defer close(out)

		period := c.Timeframe.Period()
		if period <= 0 {
			return
		}
		start := AlignTime(c.Start, c.Timeframe)
		var barIndex int64
		for n := int64(1); ; n++ {
			target := start.Add(time.Duration(n) * period)
			wait := target.Sub(now())
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			} else {
				// Fell behind target: skip sleeping and tick immediately
				// rather than stacking up a backlog.
				select {
				case <-ctx.Done():
					return
				default:
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- Tick{Time: target, BarIndex: barIndex}:
			}
			barIndex++
		}
	}()
	return out
}

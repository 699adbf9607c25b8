package runmanager

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/weaverhq/weaver/internal/backtest"
	"github.com/weaverhq/weaver/internal/clock"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/strategy"
)

// runContext is everything one running run exclusively owns: a clock, a
// strategy runner, and (mode-dependent) either a BacktestEngine or a
// handle on the shared Live Adapter. It subscribes to the Event Log once
// and demultiplexes every envelope addressed to its run id, which is the
// only way a single Log.Subscribe feed (itself unfiltered) can serve many
// concurrent runs without each one re-scanning the whole log.
type runContext struct {
	runID  string
	nodeID string

	clk    clock.Clock
	runner *strategy.Runner
	engine *backtest.Engine // non-nil for backtest mode only
	live   *liveBridge      // non-nil for paper/live mode only

	evlog  eventlog.Log
	cancel context.CancelFunc
	ctx    context.Context
	doneCh chan struct{}
}

// loop drives the run until ctx is cancelled or (backtest only) the
// clock exhausts its time range. Its return value tells the caller why it
// stopped: nil means the clock ran out naturally, ctx.Err() means
// cancellation, anything else is a processing failure.
func (rc *runContext) loop(ctx context.Context) error {
	ticks := rc.clk.Run(ctx)
	sub := rc.evlog.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-sub.C:
			if !ok {
				return ctx.Err()
			}
			if env.RunID != rc.runID {
				continue
			}
			if err := rc.dispatch(ctx, env); err != nil {
				log.Printf("runmanager %s: dispatch offset %d: %v", rc.runID, env.Offset, err)
			}

		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := rc.onTick(ctx, tick); err != nil {
				return err
			}
		}
	}
}

// onTick runs one scheduling pulse's pipeline in the order the Backtest
// Engine's fill/remark/equity bookkeeping depends on: append the clock.Tick
// envelope so its offset precedes anything the engine/runner append in
// reaction to it, then advance the engine (backtest only) before the
// strategy reacts to the tick it just closed.
func (rc *runContext) onTick(ctx context.Context, tick clock.Tick) error {
	if _, err := rc.evlog.Append(ctx, eventlog.NewEnvelope(
		eventlog.EventClockTick, rc.nodeID, rc.runID, uuid.NewString(),
		map[string]any{"barIndex": tick.BarIndex, "time": tick.Time},
	)); err != nil {
		return fmt.Errorf("runmanager %s: append clock.Tick: %w", rc.runID, err)
	}

	if rc.engine != nil {
		if err := rc.engine.Advance(ctx, tick.Time); err != nil {
			return err
		}
	}
	return rc.runner.OnTick(ctx, strategy.Tick{RunID: rc.runID, Timestamp: tick.Time, BarIndex: tick.BarIndex})
}

func (rc *runContext) dispatch(ctx context.Context, env eventlog.Envelope) error {
	switch {
	case env.Type == eventlog.EventDataWindowReady:
		win, ok := decodeWindow(env)
		if !ok {
			return nil
		}
		return rc.runner.HandleWindowReady(ctx, env, win)

	case rc.engine != nil:
		return rc.engine.HandleEnvelope(ctx, env)

	case rc.live != nil:
		return rc.live.handle(ctx, env)
	}
	return nil
}

// Package domainrouter implements the Domain Router (spec §4.8, component
// C8): a singleton, process-wide subscriber that rewrites every
// mode-agnostic strategy.* intent event into its mode-specific
// backtest.*/live.* counterpart, so strategy plugins never learn which
// mode they're running under.
package domainrouter

import (
	"context"
	"fmt"
	"log"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
)

// ModeLookup resolves a run id to its execution mode. The Run Manager
// implements this; the router never mutates run state itself.
type ModeLookup interface {
	RunMode(ctx context.Context, runID string) (domain.Mode, error)
}

// translation holds the backtest.* and live.* counterparts of one
// strategy.* event type. Paper mode routes through the same live.*
// events as live mode (spec §3: "backtest.X if backtest, live.X
// otherwise") — paper and live share one adapter contract and differ only
// in which credentials the Live Adapter was constructed with.
type translation struct {
	backtest eventlog.EventType
	live     eventlog.EventType
}

var translations = map[eventlog.EventType]translation{
	eventlog.EventStrategyFetchWindow:   {eventlog.EventBacktestFetchWindow, eventlog.EventLiveFetchWindow},
	eventlog.EventStrategyPlaceRequest:  {eventlog.EventBacktestPlaceOrder, eventlog.EventLivePlaceOrder},
	eventlog.EventStrategyCancelRequest: {eventlog.EventBacktestCancelOrder, eventlog.EventLiveCancelOrder},
}

// Router subscribes to the Event Log and translates strategy.* events as
// they arrive. One Router runs per process; multiple Router instances
// across processes are safe because Dedup makes translation idempotent
// per source offset.
type Router struct {
	log    eventlog.Log
	modes  ModeLookup
	dedup  Dedup
	nodeID string
}

// New builds a Router. dedup may be a MemDedup (single-process/tests) or
// a RedisDedup (multi-process production deployments, mirroring the
// Event Log's own in-memory-vs-durable backend split).
func New(l eventlog.Log, modes ModeLookup, dedup Dedup, nodeID string) *Router {
	return &Router{log: l, modes: modes, dedup: dedup, nodeID: nodeID}
}

// Run subscribes to the log and translates events until ctx is cancelled
// or the subscription is closed.
func (r *Router) Run(ctx context.Context) error {
	sub := r.log.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := r.handle(ctx, env); err != nil {
				log.Printf("domainrouter: translate offset %d: %v", env.Offset, err)
			}
		}
	}
}

func (r *Router) handle(ctx context.Context, env eventlog.Envelope) error {
	if !env.Type.IsStrategyDomain() {
		return nil
	}
	tr, ok := translations[env.Type]
	if !ok {
		return nil
	}

	key := fmt.Sprintf("domainrouter:%s:%d", env.RunID, env.Offset)
	claimed, err := r.dedup.ClaimOnce(ctx, key)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !claimed {
		return nil // already translated by this or another router instance
	}

	mode, err := r.modes.RunMode(ctx, env.RunID)
	if err != nil {
		return fmt.Errorf("resolve run mode: %w", err)
	}

	target := tr.backtest
	if mode != domain.ModeBacktest {
		target = tr.live
	}

	out := eventlog.NewEnvelope(target, r.nodeID, env.RunID, env.CorrelationID, env.Payload).CausedBy(env.Offset)
	_, err = r.log.Append(ctx, out)
	return err
}

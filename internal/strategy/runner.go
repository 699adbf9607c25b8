package strategy

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/weaverhq/weaver/internal/eventlog"
)

// Runner is the per-run adapter around a Plugin: it turns Actions into
// Event Log entries and routes data.WindowReady deliveries back into
// OnData, all tagged with the run id so the Domain Router and Backtest
// Engine can find them.
type Runner struct {
	runID   string
	plugin  Plugin
	log     eventlog.Log
	nodeID  string

	mu      sync.Mutex
	pending map[string]struct{} // correlation ids awaiting a WindowReady
}

// NewRunner builds a Runner for one run's plugin instance.
func NewRunner(runID, nodeID string, plugin Plugin, l eventlog.Log) *Runner {
	return &Runner{
		runID:   runID,
		plugin:  plugin,
		log:     l,
		nodeID:  nodeID,
		pending: make(map[string]struct{}),
	}
}

// OnTick invokes the plugin's OnTick and publishes the resulting actions.
func (r *Runner) OnTick(ctx context.Context, tick Tick) error {
	actions, err := r.plugin.OnTick(tick)
	if err != nil {
		return fmt.Errorf("strategy %s: on_tick: %w", r.runID, err)
	}
	return r.publishAll(ctx, actions)
}

// HandleWindowReady feeds a data.WindowReady envelope to the plugin's
// OnData if its correlation id matches an outstanding FetchWindow, and
// publishes any resulting actions.
func (r *Runner) HandleWindowReady(ctx context.Context, env eventlog.Envelope, win Window) error {
	r.mu.Lock()
	_, known := r.pending[win.CorrelationID]
	if known {
		delete(r.pending, win.CorrelationID)
	}
	r.mu.Unlock()
	if !known {
		return nil
	}

	actions, err := r.plugin.OnData(win)
	if err != nil {
		return fmt.Errorf("strategy %s: on_data: %w", r.runID, err)
	}
	return r.publishAll(ctx, actions)
}

func (r *Runner) publishAll(ctx context.Context, actions []Action) error {
	for _, a := range actions {
		if err := r.publish(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, a Action) error {
	correlationID := uuid.NewString()

	switch a.Kind {
	case ActionFetchWindow:
		r.mu.Lock()
		r.pending[correlationID] = struct{}{}
		r.mu.Unlock()

		_, err := r.log.Append(ctx, eventlog.NewEnvelope(
			eventlog.EventStrategyFetchWindow, r.nodeID, r.runID, correlationID,
			map[string]any{
				"symbol":    a.Symbol,
				"timeframe": string(a.Timeframe),
				"lookback":  a.Lookback,
			},
		))
		if err != nil {
			return fmt.Errorf("append strategy.FetchWindow: %w", err)
		}

	case ActionPlaceOrder:
		payload := map[string]any{
			"clientOrderId": a.ClientOrderID,
			"symbol":        a.Symbol,
			"side":          string(a.Side),
			"type":          string(a.Type),
			"qty":           a.Qty.String(),
			"timeInForce":   string(a.TimeInForce),
		}
		if a.LimitPrice != nil {
			payload["limitPrice"] = a.LimitPrice.String()
		}
		if a.StopPrice != nil {
			payload["stopPrice"] = a.StopPrice.String()
		}
		_, err := r.log.Append(ctx, eventlog.NewEnvelope(
			eventlog.EventStrategyPlaceRequest, r.nodeID, r.runID, correlationID, payload,
		))
		if err != nil {
			return fmt.Errorf("append strategy.PlaceRequest: %w", err)
		}

	case ActionCancelOrder:
		_, err := r.log.Append(ctx, eventlog.NewEnvelope(
			eventlog.EventStrategyCancelRequest, r.nodeID, r.runID, correlationID,
			map[string]any{"clientOrderId": a.ClientOrderID},
		))
		if err != nil {
			return fmt.Errorf("append strategy.CancelRequest: %w", err)
		}

	default:
		log.Printf("strategy %s: unknown action kind %q", r.runID, a.Kind)
	}
	return nil
}

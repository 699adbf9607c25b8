package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
)

// HandleEnvelope dispatches one Event Log envelope to the engine if it's
// a backtest.PlaceOrder, backtest.CancelOrder or backtest.FetchWindow
// addressed to this run.
// The caller (Run Manager) is responsible for subscribing and filtering
// by run id before calling this.
func (e *Engine) HandleEnvelope(ctx context.Context, env eventlog.Envelope) error {
	switch env.Type {
	case eventlog.EventBacktestPlaceOrder:
		return e.placeOrder(ctx, env)
	case eventlog.EventBacktestCancelOrder:
		return e.cancelOrder(ctx, env)
	case eventlog.EventBacktestFetchWindow:
		return e.registerFetchWindow(env)
	}
	return nil
}

func (e *Engine) registerFetchWindow(env eventlog.Envelope) error {
	lookback, _ := env.Payload["lookback"].(float64)
	req := fetchWindowRequest{
		Symbol:    stringField(env.Payload, "symbol"),
		Timeframe: domain.Timeframe(stringField(env.Payload, "timeframe")),
		Lookback:  int(lookback),
	}
	e.mu.Lock()
	e.fetchWindows[env.CorrelationID] = req
	e.mu.Unlock()
	return nil
}

func (e *Engine) placeOrder(ctx context.Context, env eventlog.Envelope) error {
	clientOrderID, _ := env.Payload["clientOrderId"].(string)
	if clientOrderID == "" {
		return fmt.Errorf("backtest %s: place order missing clientOrderId", e.runID)
	}

	e.mu.Lock()
	if existing, ok := e.pending[clientOrderID]; ok {
		e.mu.Unlock()
		return e.emitOrderState(ctx, existing.order, eventlog.EventOrdersCreated, env.CorrelationID, env.Offset)
	}
	e.mu.Unlock()

	order := domain.Order{
		ID:            newOrderID(),
		ClientOrderID: clientOrderID,
		RunID:         e.runID,
		Symbol:        stringField(env.Payload, "symbol"),
		Side:          domain.Side(stringField(env.Payload, "side")),
		Type:          domain.OrderType(stringField(env.Payload, "type")),
		Qty:           decField(env.Payload, "qty"),
		TimeInForce:   domain.TimeInForce(stringField(env.Payload, "timeInForce")),
		Status:        domain.OrderCreated,
		CreatedAt:     time.Now().UTC(),
	}
	if v, ok := env.Payload["limitPrice"]; ok {
		d := decFromAny(v)
		order.LimitPrice = &d
	}
	if v, ok := env.Payload["stopPrice"]; ok {
		d := decFromAny(v)
		order.StopPrice = &d
	}
	if order.TimeInForce == "" {
		order.TimeInForce = domain.TIFDay
	}

	p := &pendingOrder{order: order}

	e.mu.Lock()
	e.pending[clientOrderID] = p
	e.byExchID[order.ID] = p
	e.mu.Unlock()

	return e.emitOrderState(ctx, order, eventlog.EventOrdersCreated, env.CorrelationID, env.Offset)
}

func (e *Engine) cancelOrder(ctx context.Context, env eventlog.Envelope) error {
	clientOrderID := stringField(env.Payload, "clientOrderId")

	e.mu.Lock()
	p, ok := e.pending[clientOrderID]
	if !ok || p.order.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	p.order.Status = domain.OrderCancelled
	now := time.Now().UTC()
	p.order.CancelledAt = &now
	order := p.order
	delete(e.pending, clientOrderID)
	e.mu.Unlock()

	return e.emitOrderState(ctx, order, eventlog.EventOrdersCancelled, env.CorrelationID, env.Offset)
}

func (e *Engine) emitOrderState(ctx context.Context, o domain.Order, typ eventlog.EventType, correlationID string, causedBy int64) error {
	payload := map[string]any{
		"orderId":        o.ID,
		"clientOrderId":  o.ClientOrderID,
		"symbol":         o.Symbol,
		"side":           string(o.Side),
		"type":           string(o.Type),
		"qty":            o.Qty.String(),
		"status":         string(o.Status),
		"filledQty":      o.FilledQty.String(),
		"filledAvgPrice": o.FilledAvgPrice.String(),
	}
	env := eventlog.NewEnvelope(typ, e.nodeID, e.runID, correlationID, payload).CausedBy(causedBy)
	_, err := e.log.Append(ctx, env)
	return err
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func decField(m map[string]any, key string) decimal.Decimal {
	return decFromAny(m[key])
}

func decFromAny(v any) decimal.Decimal {
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(t)
	default:
		return decimal.Zero
	}
}

package runmanager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/exchange"
)

// liveBridge is the paper/live mode counterpart to the Backtest Engine's
// order book: it has no pending-order loop of its own because the real
// (or mock) exchange owns order state, but it still has to translate
// live.* intents into Adapter calls and Adapter results back into
// orders.* events, and synthesize data.WindowReady from the Adapter's
// GetBars since there is no Bar cache to serve it from in this mode.
type liveBridge struct {
	runID  string
	nodeID string
	adapter exchange.Adapter
	evlog  eventlog.Log

	mu     sync.Mutex
	orders map[string]domain.Order // by client order id
}

func newLiveBridge(runID, nodeID string, adapter exchange.Adapter, l eventlog.Log) *liveBridge {
	return &liveBridge{
		runID:   runID,
		nodeID:  nodeID,
		adapter: adapter,
		evlog:   l,
		orders:  make(map[string]domain.Order),
	}
}

func (b *liveBridge) handle(ctx context.Context, env eventlog.Envelope) error {
	switch env.Type {
	case eventlog.EventLiveFetchWindow:
		return b.fetchWindow(ctx, env)
	case eventlog.EventLivePlaceOrder:
		return b.placeOrder(ctx, env)
	case eventlog.EventLiveCancelOrder:
		return b.cancelOrder(ctx, env)
	}
	return nil
}

func (b *liveBridge) fetchWindow(ctx context.Context, env eventlog.Envelope) error {
	symbol := stringField(env.Payload, "symbol")
	tf := domain.Timeframe(stringField(env.Payload, "timeframe"))
	lookback := int(floatField(env.Payload, "lookback"))
	if lookback <= 0 {
		lookback = 1
	}

	to := time.Now().UTC()
	from := to.Add(-tf.Period() * time.Duration(lookback))
	bars, err := b.adapter.GetBars(ctx, symbol, tf, from, to)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"symbol":    symbol,
		"timeframe": string(tf),
		"bars":      bars,
	}
	out := eventlog.NewEnvelope(eventlog.EventDataWindowReady, b.nodeID, b.runID, env.CorrelationID, payload).CausedBy(env.Offset)
	_, err = b.evlog.Append(ctx, out)
	return err
}

func (b *liveBridge) placeOrder(ctx context.Context, env eventlog.Envelope) error {
	clientOrderID := stringField(env.Payload, "clientOrderId")
	if clientOrderID == "" {
		return nil
	}

	b.mu.Lock()
	if _, dup := b.orders[clientOrderID]; dup {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	order := domain.Order{
		ID:            uuid.NewString(),
		ClientOrderID: clientOrderID,
		RunID:         b.runID,
		Symbol:        stringField(env.Payload, "symbol"),
		Side:          domain.Side(stringField(env.Payload, "side")),
		Type:          domain.OrderType(stringField(env.Payload, "type")),
		Qty:           decField(env.Payload, "qty"),
		LimitPrice:    decPtrField(env.Payload, "limitPrice"),
		StopPrice:     decPtrField(env.Payload, "stopPrice"),
		TimeInForce:   domain.TimeInForce(stringField(env.Payload, "timeInForce")),
		Status:        domain.OrderCreated,
		CreatedAt:     time.Now().UTC(),
	}
	if order.TimeInForce == "" {
		order.TimeInForce = domain.TIFDay
	}

	if err := b.emitOrderState(ctx, order, eventlog.EventOrdersCreated, env.CorrelationID, env.Offset); err != nil {
		return err
	}

	now := time.Now().UTC()
	order.SubmittedAt = &now
	res, err := b.adapter.SubmitOrder(ctx, order)
	if err != nil {
		order.Status = domain.OrderRejected
		order.RejectReason = err.Error()
		b.store(order)
		return b.emitOrderState(ctx, order, eventlog.EventOrdersRejected, env.CorrelationID, env.Offset)
	}
	if !res.Success {
		order.Status = domain.OrderRejected
		order.RejectReason = res.ErrorMessage
		b.store(order)
		return b.emitOrderState(ctx, order, eventlog.EventOrdersRejected, env.CorrelationID, env.Offset)
	}

	order.ExchangeOrderID = res.ExchangeOrderID
	order.Status = res.Status
	b.store(order)

	return b.emitOrderState(ctx, order, orderStateEvent(order.Status), env.CorrelationID, env.Offset)
}

func (b *liveBridge) cancelOrder(ctx context.Context, env eventlog.Envelope) error {
	clientOrderID := stringField(env.Payload, "clientOrderId")

	b.mu.Lock()
	order, ok := b.orders[clientOrderID]
	b.mu.Unlock()
	if !ok || order.Status.Terminal() {
		return nil
	}

	if err := b.adapter.CancelOrder(ctx, order.ExchangeOrderID); err != nil {
		return err
	}

	now := time.Now().UTC()
	order.Status = domain.OrderCancelled
	order.CancelledAt = &now
	b.store(order)

	return b.emitOrderState(ctx, order, eventlog.EventOrdersCancelled, env.CorrelationID, env.Offset)
}

func (b *liveBridge) store(o domain.Order) {
	b.mu.Lock()
	b.orders[o.ClientOrderID] = o
	b.mu.Unlock()
}

func (b *liveBridge) emitOrderState(ctx context.Context, o domain.Order, typ eventlog.EventType, correlationID string, causedBy int64) error {
	payload := map[string]any{
		"orderId":         o.ID,
		"clientOrderId":   o.ClientOrderID,
		"exchangeOrderId": o.ExchangeOrderID,
		"symbol":          o.Symbol,
		"side":            string(o.Side),
		"type":            string(o.Type),
		"qty":             o.Qty.String(),
		"status":          string(o.Status),
		"rejectReason":    o.RejectReason,
	}
	env := eventlog.NewEnvelope(typ, b.nodeID, b.runID, correlationID, payload).CausedBy(causedBy)
	_, err := b.evlog.Append(ctx, env)
	return err
}

// orderStateEvent maps a freshly-submitted order's status onto the
// orders.* event the rest of the system expects to see for it.
func orderStateEvent(status domain.OrderStatus) eventlog.EventType {
	switch status {
	case domain.OrderFilled:
		return eventlog.EventOrdersFilled
	case domain.OrderPartiallyFilled:
		return eventlog.EventOrdersPartiallyFilled
	case domain.OrderAccepted:
		return eventlog.EventOrdersAccepted
	case domain.OrderRejected:
		return eventlog.EventOrdersRejected
	default:
		return eventlog.EventOrdersSubmitted
	}
}

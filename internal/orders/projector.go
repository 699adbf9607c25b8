package orders

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
)

// Projector subscribes to the Event Log and folds every orders.* envelope
// into the order Repository, regardless of which mode (backtest engine or
// live bridge) produced it — both emit the same orders.* payload shape,
// so one projection serves both.
type Projector struct {
	log  eventlog.Log
	repo Repository
}

// NewProjector builds a Projector over l, persisting into repo.
func NewProjector(l eventlog.Log, repo Repository) *Projector {
	return &Projector{log: l, repo: repo}
}

// Run subscribes and applies envelopes until ctx is cancelled.
func (p *Projector) Run(ctx context.Context) {
	sub := p.log.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			if !isOrderEvent(env.Type) {
				continue
			}
			if err := p.apply(ctx, env); err != nil {
				log.Printf("orders projector: apply offset %d: %v", env.Offset, err)
			}
		}
	}
}

func isOrderEvent(t eventlog.EventType) bool {
	switch t {
	case eventlog.EventOrdersCreated, eventlog.EventOrdersSubmitted, eventlog.EventOrdersAccepted,
		eventlog.EventOrdersPartiallyFilled, eventlog.EventOrdersFilled, eventlog.EventOrdersCancelled,
		eventlog.EventOrdersRejected, eventlog.EventOrdersExpired:
		return true
	}
	return false
}

// apply merges env onto the order's current row, creating it on first
// sight (orders.Created). Later events set Status to the status their
// payload carries and fill in the timestamps/fields it carries, so
// applying the same envelope twice yields the same row.
func (p *Projector) apply(ctx context.Context, env eventlog.Envelope) error {
	id := stringField(env.Payload, "orderId")
	if id == "" {
		return nil
	}

	order, err := p.repo.Get(ctx, id)
	notFound := err != nil
	if notFound {
		order = domain.Order{ID: id, RunID: env.RunID, CreatedAt: env.Timestamp}
	}

	order.ClientOrderID = stringField(env.Payload, "clientOrderId")
	if v := stringField(env.Payload, "exchangeOrderId"); v != "" {
		order.ExchangeOrderID = v
	}
	if v := stringField(env.Payload, "symbol"); v != "" {
		order.Symbol = v
	}
	if v := stringField(env.Payload, "side"); v != "" {
		order.Side = domain.Side(v)
	}
	if v := stringField(env.Payload, "type"); v != "" {
		order.Type = domain.OrderType(v)
	}
	if v, ok := env.Payload["qty"]; ok {
		order.Qty = decFromAny(v)
	}
	if v, ok := env.Payload["filledQty"]; ok {
		order.FilledQty = decFromAny(v)
	}
	if v, ok := env.Payload["filledAvgPrice"]; ok {
		order.FilledAvgPrice = decFromAny(v)
	}
	if v := stringField(env.Payload, "status"); v != "" {
		order.Status = domain.OrderStatus(v)
	}
	if v := stringField(env.Payload, "rejectReason"); v != "" {
		order.RejectReason = v
	}

	ts := env.Timestamp
	switch env.Type {
	case eventlog.EventOrdersSubmitted, eventlog.EventOrdersAccepted:
		if order.SubmittedAt == nil {
			order.SubmittedAt = &ts
		}
	case eventlog.EventOrdersFilled:
		order.FilledAt = &ts
	case eventlog.EventOrdersCancelled:
		order.CancelledAt = &ts
	}

	return p.repo.Upsert(ctx, order)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
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

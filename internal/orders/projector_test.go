package orders

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
)

func waitForOrder(t *testing.T, repo Repository, id string, want domain.OrderStatus, timeout time.Duration) domain.Order {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		o, err := repo.Get(context.Background(), id)
		if err == nil && o.Status == want {
			return o
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("order %s never reached status %s", id, want)
	return domain.Order{}
}

func TestProjectorFoldsOrderLifecycle(t *testing.T) {
	l := eventlog.NewMemLog()
	repo := NewMemRepository()
	p := NewProjector(l, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	ctx2 := context.Background()
	l.Append(ctx2, eventlog.NewEnvelope(eventlog.EventOrdersCreated, "node-a", "run-1", "c1", map[string]any{
		"orderId": "ord-1", "clientOrderId": "cli-1", "symbol": "AAPL", "side": "buy", "type": "market",
		"qty": "10", "status": "created",
	}))
	l.Append(ctx2, eventlog.NewEnvelope(eventlog.EventOrdersAccepted, "node-a", "run-1", "c1", map[string]any{
		"orderId": "ord-1", "clientOrderId": "cli-1", "exchangeOrderId": "exch-1", "status": "accepted",
	}))
	l.Append(ctx2, eventlog.NewEnvelope(eventlog.EventOrdersFilled, "node-a", "run-1", "c1", map[string]any{
		"orderId": "ord-1", "clientOrderId": "cli-1", "status": "filled", "filledQty": "10", "filledAvgPrice": "101.5",
	}))

	got := waitForOrder(t, repo, "ord-1", domain.OrderFilled, time.Second)
	if got.ExchangeOrderID != "exch-1" {
		t.Fatalf("expected exchange order id preserved, got %+v", got)
	}
	if !got.FilledQty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected filled qty 10, got %s", got.FilledQty)
	}
	if got.FilledAt == nil {
		t.Fatalf("expected filledAt to be set")
	}
}

func TestProjectorIgnoresNonOrderEvents(t *testing.T) {
	l := eventlog.NewMemLog()
	repo := NewMemRepository()
	p := NewProjector(l, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	l.Append(context.Background(), eventlog.NewEnvelope(eventlog.EventRunCreated, "node-a", "run-1", "c1", nil))

	time.Sleep(50 * time.Millisecond)
	_, total, err := repo.List(context.Background(), domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no orders projected from a run.Created event, got %d", total)
	}
}

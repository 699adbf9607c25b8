package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
)

type stubPlugin struct {
	tickActions []Action
	dataActions []Action
}

func (s *stubPlugin) Initialize([]string, map[string]any) error { return nil }
func (s *stubPlugin) OnTick(Tick) ([]Action, error)              { return s.tickActions, nil }
func (s *stubPlugin) OnData(Window) ([]Action, error)            { return s.dataActions, nil }

func TestRunnerOnTickPublishesFetchWindow(t *testing.T) {
	l := eventlog.NewMemLog()
	plugin := &stubPlugin{tickActions: []Action{FetchWindow("AAPL", domain.Timeframe1m, 20)}}
	r := NewRunner("run-1", "node-a", plugin, l)

	if err := r.OnTick(context.Background(), Tick{RunID: "run-1"}); err != nil {
		t.Fatalf("on tick: %v", err)
	}

	entries, err := l.ReadFrom(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != eventlog.EventStrategyFetchWindow {
		t.Fatalf("unexpected log contents: %+v", entries)
	}
	if entries[0].RunID != "run-1" {
		t.Fatalf("got run id %q, want run-1", entries[0].RunID)
	}
}

func TestRunnerOnTickPublishesPlaceOrder(t *testing.T) {
	l := eventlog.NewMemLog()
	plugin := &stubPlugin{
		tickActions: []Action{PlaceOrder("coid-1", "AAPL", domain.SideBuy, domain.OrderMarket, decimal.NewFromInt(10))},
	}
	r := NewRunner("run-1", "node-a", plugin, l)

	if err := r.OnTick(context.Background(), Tick{RunID: "run-1"}); err != nil {
		t.Fatalf("on tick: %v", err)
	}

	entries, _ := l.ReadFrom(context.Background(), 0, 0)
	if len(entries) != 1 || entries[0].Type != eventlog.EventStrategyPlaceRequest {
		t.Fatalf("unexpected log contents: %+v", entries)
	}
	if entries[0].Payload["clientOrderId"] != "coid-1" {
		t.Fatalf("unexpected payload: %+v", entries[0].Payload)
	}
}

func TestRunnerIgnoresUnknownCorrelationID(t *testing.T) {
	l := eventlog.NewMemLog()
	plugin := &stubPlugin{}
	r := NewRunner("run-1", "node-a", plugin, l)

	env := eventlog.Envelope{Type: eventlog.EventDataWindowReady, RunID: "run-1", CorrelationID: "unknown"}
	if err := r.HandleWindowReady(context.Background(), env, Window{CorrelationID: "unknown"}); err != nil {
		t.Fatalf("handle window ready: %v", err)
	}

	entries, _ := l.ReadFrom(context.Background(), 0, 0)
	if len(entries) != 0 {
		t.Fatalf("expected no events published for unknown correlation id, got %+v", entries)
	}
}

func TestRunnerFeedsMatchingWindowReadyToOnData(t *testing.T) {
	l := eventlog.NewMemLog()
	plugin := &stubPlugin{
		tickActions: []Action{FetchWindow("AAPL", domain.Timeframe1m, 20)},
		dataActions: []Action{CancelOrder("coid-1")},
	}
	r := NewRunner("run-1", "node-a", plugin, l)

	if err := r.OnTick(context.Background(), Tick{RunID: "run-1"}); err != nil {
		t.Fatalf("on tick: %v", err)
	}
	entries, _ := l.ReadFrom(context.Background(), 0, 0)
	corrID := entries[0].CorrelationID

	win := Window{CorrelationID: corrID, Symbol: "AAPL"}
	env := eventlog.Envelope{Type: eventlog.EventDataWindowReady, RunID: "run-1", CorrelationID: corrID}
	if err := r.HandleWindowReady(context.Background(), env, win); err != nil {
		t.Fatalf("handle window ready: %v", err)
	}

	entries, _ = l.ReadFrom(context.Background(), 0, 0)
	if len(entries) != 2 || entries[1].Type != eventlog.EventStrategyCancelRequest {
		t.Fatalf("unexpected log contents: %+v", entries)
	}
}

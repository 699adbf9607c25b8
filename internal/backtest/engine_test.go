package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/bars"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/fillsim"
)

type fakeRepo struct {
	rows []domain.Bar
}

func (f *fakeRepo) SaveBars(context.Context, []domain.Bar) error { return nil }

func (f *fakeRepo) GetBars(_ context.Context, filt bars.Filter) ([]domain.Bar, error) {
	var out []domain.Bar
	for _, b := range f.rows {
		if b.Symbol == filt.Symbol && b.Timeframe == filt.Timeframe {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetBarAt(context.Context, string, domain.Timeframe, int64) (domain.Bar, error) {
	return domain.Bar{}, bars.ErrNotFound
}

func (f *fakeRepo) Close(context.Context) error { return nil }

func mkBars(n int, base time.Time) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)
		out[i] = domain.Bar{
			Symbol: "AAPL", Timeframe: domain.Timeframe1m,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open: price, High: price + 1, Low: price - 1, Close: price,
		}
	}
	return out
}

func newTestEngine(t *testing.T, rows []domain.Bar) (*Engine, eventlog.Log) {
	t.Helper()
	l := eventlog.NewMemLog()
	repo := &fakeRepo{rows: rows}
	e := New(Config{RunID: "run-1", NodeID: "node-a", Repo: repo, Log: l, FillSim: fillsim.DefaultConfig()})
	base := rows[0].Timestamp
	end := rows[len(rows)-1].Timestamp.Add(time.Minute)
	if err := e.Initialize(context.Background(), []string{"AAPL"}, domain.Timeframe1m, base, end); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return e, l
}

func TestEngineMarketOrderFillsNextTick(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e, l := newTestEngine(t, mkBars(5, base))
	ctx := context.Background()

	placeEnv := eventlog.Envelope{
		Type: eventlog.EventBacktestPlaceOrder,
		Payload: map[string]any{
			"clientOrderId": "coid-1",
			"symbol":        "AAPL",
			"side":          "buy",
			"type":          "market",
			"qty":           "10",
			"timeInForce":   "day",
		},
	}
	if err := e.HandleEnvelope(ctx, placeEnv); err != nil {
		t.Fatalf("place order: %v", err)
	}

	if err := e.Advance(ctx, base); err != nil {
		t.Fatalf("advance: %v", err)
	}

	entries, _ := l.ReadFrom(ctx, 0, 0)
	var sawFilled bool
	for _, e := range entries {
		if e.Type == eventlog.EventOrdersFilled {
			sawFilled = true
		}
	}
	if !sawFilled {
		t.Fatalf("expected orders.Filled after one tick, got %+v", entries)
	}

	positions := e.Positions()
	if len(positions) != 1 || !positions[0].Qty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected positions: %+v", positions)
	}
}

func TestEngineCancelOrderBeforeFill(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e, l := newTestEngine(t, mkBars(5, base))
	ctx := context.Background()

	place := eventlog.Envelope{
		Type: eventlog.EventBacktestPlaceOrder,
		Payload: map[string]any{
			"clientOrderId": "coid-2",
			"symbol":        "AAPL",
			"side":          "buy",
			"type":          "limit",
			"qty":           "5",
			"limitPrice":    "50", // far below any bar, never fills
			"timeInForce":   "gtc",
		},
	}
	if err := e.HandleEnvelope(ctx, place); err != nil {
		t.Fatalf("place: %v", err)
	}
	cancel := eventlog.Envelope{
		Type:    eventlog.EventBacktestCancelOrder,
		Payload: map[string]any{"clientOrderId": "coid-2"},
	}
	if err := e.HandleEnvelope(ctx, cancel); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := e.Advance(ctx, base); err != nil {
		t.Fatalf("advance: %v", err)
	}

	entries, _ := l.ReadFrom(ctx, 0, 0)
	for _, e := range entries {
		if e.Type == eventlog.EventOrdersFilled {
			t.Fatal("cancelled order must not fill")
		}
	}
}

func TestEngineFetchWindowProducesDataWindowReady(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e, l := newTestEngine(t, mkBars(5, base))
	ctx := context.Background()

	fetch := eventlog.Envelope{
		Type:          eventlog.EventBacktestFetchWindow,
		CorrelationID: "corr-1",
		Payload:       map[string]any{"symbol": "AAPL", "timeframe": "1m", "lookback": float64(3)},
	}
	if err := e.HandleEnvelope(ctx, fetch); err != nil {
		t.Fatalf("fetch window: %v", err)
	}
	if err := e.Advance(ctx, base); err != nil {
		t.Fatalf("advance: %v", err)
	}

	entries, _ := l.ReadFrom(ctx, 0, 0)
	var found bool
	for _, e := range entries {
		if e.Type == eventlog.EventDataWindowReady && e.CorrelationID == "corr-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected data.WindowReady with matching correlation id, got %+v", entries)
	}
}

func TestEngineIdempotentPlaceOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e, l := newTestEngine(t, mkBars(5, base))
	ctx := context.Background()

	place := eventlog.Envelope{
		Type: eventlog.EventBacktestPlaceOrder,
		Payload: map[string]any{
			"clientOrderId": "coid-3", "symbol": "AAPL", "side": "buy",
			"type": "limit", "qty": "1", "limitPrice": "1", "timeInForce": "gtc",
		},
	}
	if err := e.HandleEnvelope(ctx, place); err != nil {
		t.Fatalf("place 1: %v", err)
	}
	if err := e.HandleEnvelope(ctx, place); err != nil {
		t.Fatalf("place 2: %v", err)
	}

	entries, _ := l.ReadFrom(ctx, 0, 0)
	var created int
	for _, e := range entries {
		if e.Type == eventlog.EventOrdersCreated {
			created++
		}
	}
	if created != 2 {
		t.Fatalf("expected 2 orders.Created emissions (idempotent replay of same state), got %d", created)
	}
}

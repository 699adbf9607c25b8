package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weaverhq/weaver/internal/apperr"
	"github.com/weaverhq/weaver/internal/bars"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/orders"
	"github.com/weaverhq/weaver/internal/runmanager"
	"github.com/weaverhq/weaver/internal/strategy"
)

type fakeBarRepo struct{ rows []domain.Bar }

func (f *fakeBarRepo) SaveBars(context.Context, []domain.Bar) error { return nil }

func (f *fakeBarRepo) GetBars(_ context.Context, filt bars.Filter) ([]domain.Bar, error) {
	var out []domain.Bar
	for _, b := range f.rows {
		if b.Symbol == filt.Symbol && b.Timeframe == filt.Timeframe {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBarRepo) GetBarAt(context.Context, string, domain.Timeframe, int64) (domain.Bar, error) {
	return domain.Bar{}, bars.ErrNotFound
}

func (f *fakeBarRepo) Close(context.Context) error { return nil }

type noopPlugin struct{}

func (p *noopPlugin) Initialize([]string, map[string]any) error         { return nil }
func (p *noopPlugin) OnTick(strategy.Tick) ([]strategy.Action, error)    { return nil, nil }
func (p *noopPlugin) OnData(strategy.Window) ([]strategy.Action, error) { return nil, nil }

func newTestServer(t *testing.T) (*Server, eventlog.Log, *runmanager.Manager) {
	t.Helper()
	l := eventlog.NewMemLog()
	loader, err := strategy.NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	loader.Register("noop", func() strategy.Plugin { return &noopPlugin{} })

	mgr := runmanager.NewManager(runmanager.Config{
		Log:        l,
		BarRepo:    &fakeBarRepo{},
		Strategies: loader,
		NodeID:     "node-a",
	})
	orderRepo := orders.NewMemRepository()

	srv := NewServer(mgr, orderRepo, &fakeBarRepo{}, l, nil)
	return srv, l, mgr
}

func doRequest(mux *http.ServeMux, method, target string, body any) *httptest.ResponseRecorder {
	var r *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		r = httptest.NewRequest(method, target, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Register(mux)

	rec := doRequest(mux, http.MethodGet, "/api/v1/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatalf("expected a correlation id header")
	}
}

func TestCreateAndGetRun(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Register(mux)

	rec := doRequest(mux, http.MethodPost, "/api/v1/runs", map[string]any{
		"strategy_id": "noop", "mode": "backtest", "symbols": []string{"AAPL"}, "timeframe": "1m",
		"start_time": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		"end_time":   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var run domain.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Status != domain.RunPending {
		t.Fatalf("expected pending, got %s", run.Status)
	}

	rec = doRequest(mux, http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateRunValidationError(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Register(mux)

	rec := doRequest(mux, http.MethodPost, "/api/v1/runs", map[string]any{
		"strategy_id": "noop", "mode": "backtest", "symbols": []string{"AAPL"}, "timeframe": "1m",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Code != apperr.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %s", envelope.Code)
	}
}

func TestGetUnknownRunReturns404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Register(mux)

	rec := doRequest(mux, http.MethodGet, "/api/v1/runs/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStartStopRunLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Register(mux)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := doRequest(mux, http.MethodPost, "/api/v1/runs", map[string]any{
		"strategy_id": "noop", "mode": "backtest", "symbols": []string{"AAPL"}, "timeframe": "1m",
		"start_time": base, "end_time": base.Add(50 * time.Minute),
	})
	var run domain.Run
	json.Unmarshal(rec.Body.Bytes(), &run)

	rec = doRequest(mux, http.MethodPost, "/api/v1/runs/"+run.ID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 starting run, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(mux, http.MethodPost, "/api/v1/runs/"+run.ID+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 stopping run, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(mux, http.MethodDelete, "/api/v1/runs/"+run.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting stopped run, got %d", rec.Code)
	}
}

func TestSubmitOrderRejectsBacktestRun(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Register(mux)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := doRequest(mux, http.MethodPost, "/api/v1/runs", map[string]any{
		"strategy_id": "noop", "mode": "backtest", "symbols": []string{"AAPL"}, "timeframe": "1m",
		"start_time": base, "end_time": base.Add(time.Hour),
	})
	var run domain.Run
	json.Unmarshal(rec.Body.Bytes(), &run)

	rec = doRequest(mux, http.MethodPost, "/api/v1/orders", map[string]any{
		"run_id": run.ID, "client_order_id": "cli-1", "symbol": "AAPL", "side": "buy", "type": "market", "qty": "10",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for manual order on a backtest run, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCandlesRequiresSymbolAndTimeframe(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := http.NewServeMux()
	srv.Register(mux)

	rec := doRequest(mux, http.MethodGet, "/api/v1/candles", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCandlesReturnsBars(t *testing.T) {
	l := eventlog.NewMemLog()
	loader, err := strategy.NewLoader(t.TempDir())
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	repo := &fakeBarRepo{rows: []domain.Bar{
		{Symbol: "AAPL", Timeframe: domain.Timeframe1m, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Close: 100},
	}}
	mgr := runmanager.NewManager(runmanager.Config{Log: l, BarRepo: repo, Strategies: loader, NodeID: "node-a"})
	srv := NewServer(mgr, orders.NewMemRepository(), repo, l, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	rec := doRequest(mux, http.MethodGet, "/api/v1/candles?symbol=AAPL&timeframe=1m", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out []domain.Bar
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(out))
	}
}

package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/exchange"
)

func decimalTen() decimal.Decimal { return decimal.NewFromInt(10) }

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Adapter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	a := New(exchange.Credentials{"base_url": srv.URL, "api_key": "key", "api_secret": "secret"}).(*Adapter)
	t.Cleanup(srv.Close)
	return srv, a
}

func TestConnectProbesAccount(t *testing.T) {
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/account" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("APCA-API-KEY-ID") != "key" {
			t.Fatalf("missing auth header")
		}
		json.NewEncoder(w).Encode(accountResponse{ID: "acct-1", Currency: "USD", Cash: "1000", Equity: "1000", BuyingPower: "2000"})
	})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !a.Connected() {
		t.Fatalf("expected connected")
	}
}

func TestConnectFailsOnUnauthorized(t *testing.T) {
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	if err := a.Connect(context.Background()); err == nil {
		t.Fatalf("expected connect error on 401")
	}
	if a.Connected() {
		t.Fatalf("must not report connected after failed probe")
	}
}

func TestSubmitOrderRequiresConnection(t *testing.T) {
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := a.SubmitOrder(context.Background(), domain.Order{})
	if err != exchange.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSubmitOrderSendsOrderRequest(t *testing.T) {
	var captured orderRequest
	srv, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/account":
			json.NewEncoder(w).Encode(accountResponse{ID: "a", Currency: "USD", Cash: "1", Equity: "1", BuyingPower: "1"})
		case "/v2/orders":
			json.NewDecoder(r.Body).Decode(&captured)
			json.NewEncoder(w).Encode(orderResponse{ID: "ex-1", ClientOrderID: captured.ClientOrderID, Status: "accepted"})
		}
	})
	_ = srv
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	order := domain.Order{ClientOrderID: "coid-9", Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: decimalTen(), TimeInForce: domain.TIFDay}
	res, err := a.SubmitOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success || res.ExchangeOrderID != "ex-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if captured.Symbol != "AAPL" || captured.ClientOrderID != "coid-9" {
		t.Fatalf("request not forwarded correctly: %+v", captured)
	}
}

func TestSubmitOrderReportsRejection(t *testing.T) {
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/account":
			json.NewEncoder(w).Encode(accountResponse{ID: "a", Currency: "USD", Cash: "1", Equity: "1", BuyingPower: "1"})
		case "/v2/orders":
			json.NewEncoder(w).Encode(orderResponse{ID: "ex-2", Status: "rejected", RejectReason: "insufficient buying power"})
		}
	})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	res, err := a.SubmitOrder(context.Background(), domain.Order{ClientOrderID: "coid-r", Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: decimalTen(), TimeInForce: domain.TIFDay})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Success || res.ErrorCode != "rejected" {
		t.Fatalf("expected rejection result, got %+v", res)
	}
}

func TestStreamQuotesWithoutStreamURLIsUnsupported(t *testing.T) {
	_, a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := a.StreamQuotes(context.Background(), []string{"AAPL"})
	if err != exchange.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestSupportsFeature(t *testing.T) {
	a := New(exchange.Credentials{}).(*Adapter)
	if !a.SupportsFeature(exchange.FeatureStreaming) {
		t.Fatalf("expected streaming support")
	}
	if a.SupportsFeature(exchange.FeatureFractional) {
		t.Fatalf("did not expect fractional support")
	}
}

// Package live is the "live" Exchange Adapter: a REST + WebSocket client
// for a paper/real brokerage, rate-limited on the outbound side and able
// to stream quotes when the account supports it. Credentials select the
// base URL and auth headers so the same adapter serves both paper and
// live trading, per spec.md's one-set-of-creds-per-mode model.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/exchange"
)

// Metadata describes this adapter for exchange.Loader.RegisterBuiltin.
var Metadata = exchange.Metadata{
	ID:                "live",
	Name:              "Live Brokerage",
	Version:           "1.0.0",
	ClassName:         "Adapter",
	SupportedFeatures: []string{exchange.FeatureStreaming, exchange.FeatureStopLimit},
}

const (
	defaultRateLimit = 5 // requests per second
	defaultBurst     = 10
	requestTimeout   = 10 * time.Second
)

// Adapter talks to a real brokerage's REST API for orders/accounts/bars
// and, optionally, its WebSocket feed for live quotes. Outbound REST calls
// are throttled by a token bucket so a misbehaving strategy cannot trip
// the brokerage's own rate limiter.
type Adapter struct {
	baseURL    string
	streamURL  string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter

	connected bool
}

// New builds a live Adapter from credentials. Recognized keys: base_url,
// stream_url, api_key, api_secret.
func New(creds exchange.Credentials) exchange.Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(creds["base_url"], "/"),
		streamURL:  creds["stream_url"],
		apiKey:     creds["api_key"],
		apiSecret:  creds["api_secret"],
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
}

func (a *Adapter) Connect(ctx context.Context) error {
	if a.baseURL == "" || a.apiKey == "" {
		return &exchange.ConnectionError{Cause: fmt.Errorf("missing base_url or api_key")}
	}
	if _, err := a.GetAccount(ctx); err != nil {
		return &exchange.ConnectionError{Cause: fmt.Errorf("account probe failed: %w", err)}
	}
	a.connected = true
	return nil
}

func (a *Adapter) Disconnect(context.Context) error {
	a.connected = false
	return nil
}

func (a *Adapter) Connected() bool { return a.connected }

// do executes a rate-limited, authenticated REST call and decodes a JSON
// response into out (nil to discard the body).
func (a *Adapter) do(ctx context.Context, method, path string, body any, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.apiSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return &exchange.AccountInactiveError{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("live adapter: %s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Qty           string `json:"qty"`
	LimitPrice    string `json:"limit_price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResponse struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
	RejectReason  string `json:"reject_reason"`
}

func (a *Adapter) SubmitOrder(ctx context.Context, o domain.Order) (exchange.SubmitResult, error) {
	if !a.connected {
		return exchange.SubmitResult{}, exchange.ErrNotConnected
	}
	req := orderRequest{
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Qty:           o.Qty.String(),
		TimeInForce:   string(o.TimeInForce),
		ClientOrderID: o.ClientOrderID,
	}
	if o.LimitPrice != nil {
		req.LimitPrice = o.LimitPrice.String()
	}
	if o.StopPrice != nil {
		req.StopPrice = o.StopPrice.String()
	}

	var resp orderResponse
	if err := a.do(ctx, http.MethodPost, "/v2/orders", req, &resp); err != nil {
		return exchange.SubmitResult{}, err
	}
	if resp.Status == "rejected" {
		return exchange.SubmitResult{Success: false, ExchangeOrderID: resp.ID, Status: domain.OrderStatus(resp.Status), ErrorCode: "rejected", ErrorMessage: resp.RejectReason}, nil
	}
	return exchange.SubmitResult{Success: true, ExchangeOrderID: resp.ID, Status: domain.OrderStatus(resp.Status)}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	if !a.connected {
		return exchange.ErrNotConnected
	}
	return a.do(ctx, http.MethodDelete, "/v2/orders/"+exchangeOrderID, nil, nil)
}

func (a *Adapter) GetOrder(ctx context.Context, exchangeOrderID string) (domain.Order, error) {
	if !a.connected {
		return domain.Order{}, exchange.ErrNotConnected
	}
	var resp orderResponse
	if err := a.do(ctx, http.MethodGet, "/v2/orders/"+exchangeOrderID, nil, &resp); err != nil {
		return domain.Order{}, err
	}
	return domain.Order{ExchangeOrderID: resp.ID, ClientOrderID: resp.ClientOrderID, Status: domain.OrderStatus(resp.Status)}, nil
}

func (a *Adapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	if !a.connected {
		return nil, exchange.ErrNotConnected
	}
	var resp []orderResponse
	if err := a.do(ctx, http.MethodGet, "/v2/orders", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(resp))
	for _, r := range resp {
		out = append(out, domain.Order{ExchangeOrderID: r.ID, ClientOrderID: r.ClientOrderID, Status: domain.OrderStatus(r.Status)})
	}
	return out, nil
}

type accountResponse struct {
	ID          string `json:"id"`
	Currency    string `json:"currency"`
	Cash        string `json:"cash"`
	Equity      string `json:"equity"`
	BuyingPower string `json:"buying_power"`
}

func (a *Adapter) GetAccount(ctx context.Context) (exchange.Account, error) {
	var resp accountResponse
	if err := a.do(ctx, http.MethodGet, "/v2/account", nil, &resp); err != nil {
		return exchange.Account{}, err
	}
	cash, _ := decimal.NewFromString(resp.Cash)
	equity, _ := decimal.NewFromString(resp.Equity)
	buyingPower, _ := decimal.NewFromString(resp.BuyingPower)
	return exchange.Account{ID: resp.ID, Currency: resp.Currency, Cash: cash, Equity: equity, BuyingPower: buyingPower}, nil
}

type positionResponse struct {
	Symbol       string `json:"symbol"`
	Qty          string `json:"qty"`
	Side         string `json:"side"`
	AvgEntry     string `json:"avg_entry_price"`
	MarketValue  string `json:"market_value"`
	UnrealizedPL string `json:"unrealized_pl"`
}

func (a *Adapter) ListPositions(ctx context.Context) ([]domain.SimulatedPosition, error) {
	if !a.connected {
		return nil, exchange.ErrNotConnected
	}
	var resp []positionResponse
	if err := a.do(ctx, http.MethodGet, "/v2/positions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.SimulatedPosition, 0, len(resp))
	for _, r := range resp {
		qty, _ := decimal.NewFromString(r.Qty)
		avg, _ := decimal.NewFromString(r.AvgEntry)
		mv, _ := decimal.NewFromString(r.MarketValue)
		upl, _ := decimal.NewFromString(r.UnrealizedPL)
		out = append(out, domain.SimulatedPosition{
			Symbol: r.Symbol, Qty: qty, Side: domain.PositionSide(r.Side),
			AvgEntryPrice: avg, MarkValue: mv, UnrealizedPnL: upl,
		})
	}
	return out, nil
}

type barResponse struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

func (a *Adapter) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Bar, error) {
	if !a.connected {
		return nil, exchange.ErrNotConnected
	}
	path := fmt.Sprintf("/v2/stocks/%s/bars?timeframe=%s&start=%s&end=%s",
		symbol, tf, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	var resp struct {
		Bars []barResponse `json:"bars"`
	}
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		ts, err := time.Parse(time.RFC3339, b.Timestamp)
		if err != nil {
			continue
		}
		out = append(out, domain.Bar{Symbol: symbol, Timeframe: tf, Timestamp: ts, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	return out, nil
}

// StreamQuotes opens a WebSocket connection to the brokerage's quote feed
// and subscribes to symbols, decoding each inbound frame into a Quote.
// The connection is closed when ctx is cancelled.
func (a *Adapter) StreamQuotes(ctx context.Context, symbols []string) (<-chan exchange.Quote, error) {
	if a.streamURL == "" {
		return nil, exchange.ErrUnsupported
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("live adapter: stream dial: %w", err)
	}

	auth := map[string]string{"action": "auth", "key": a.apiKey, "secret": a.apiSecret}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, err
	}
	sub := map[string]any{"action": "subscribe", "quotes": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, err
	}

	out := make(chan exchange.Quote, 64)
	go func() {
		defer close(out)
		defer conn.Close()
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			var frame struct {
				Symbol string  `json:"S"`
				Bid    float64 `json:"bp"`
				Ask    float64 `json:"ap"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			q := exchange.Quote{Symbol: frame.Symbol, Bid: decimal.NewFromFloat(frame.Bid), Ask: decimal.NewFromFloat(frame.Ask), Timestamp: time.Now().UTC()}
			select {
			case out <- q:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *Adapter) SupportsFeature(feature string) bool {
	for _, f := range Metadata.SupportedFeatures {
		if f == feature {
			return true
		}
	}
	return false
}

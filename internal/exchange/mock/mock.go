// Package mock is the "mock" Exchange Adapter: a deterministic in-memory
// test double over the universe's synthetic symbol registry and GBM price
// engine. It evaluates each order once, at submission, against the current
// simulated tick with the same fill simulator the Backtest Engine uses
// (there is no resting-order book), so strategy/API tests exercise real fill
// semantics without a live exchange or a seeded Postgres bar store.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/exchange"
	"github.com/weaverhq/weaver/internal/fillsim"
	"github.com/weaverhq/weaver/internal/pricegen"
	"github.com/weaverhq/weaver/internal/universe"
)

// Metadata describes this adapter for exchange.Loader.RegisterBuiltin.
var Metadata = exchange.Metadata{
	ID:                "mock",
	Name:              "Mock Exchange",
	Version:           "1.0.0",
	ClassName:         "Adapter",
	SupportedFeatures: []string{exchange.FeatureStreaming, exchange.FeatureFractional},
}

const startingCash = 100000.0

// Adapter is a deterministic exchange double driven by pricegen's GBM
// engine over the universe's 30-symbol registry. Two Adapters built with
// the same seed produce identical fills for identical order sequences.
type Adapter struct {
	mu sync.Mutex

	rng    *pricegen.RNG
	market *pricegen.MarketEngine
	byLoc  map[uint16]*universe.Symbol
	byTick map[string]*universe.Symbol

	sim *fillsim.Simulator

	connected bool
	account   exchange.Account
	orders    map[string]*domain.Order // by exchange order id
	byClient  map[string]*domain.Order
	positions map[string]*domain.SimulatedPosition

	nextID int
}

// New builds a mock Adapter seeded with seed (0 seeds from wall-clock,
// which is appropriate for ad hoc manual runs but not for reproducible
// tests — pass a fixed nonzero seed there).
func New(seed int64) *Adapter {
	syms := universe.AllSymbols()
	rng := pricegen.NewRNG(seed)
	market := pricegen.NewMarketEngine(rng, syms)
	market.GenerateSectorShocks()

	byLoc := make(map[uint16]*universe.Symbol, len(syms))
	byTick := make(map[string]*universe.Symbol, len(syms))
	for i := range syms {
		byLoc[syms[i].LocateCode] = &syms[i]
		byTick[syms[i].Ticker] = &syms[i]
	}

	return &Adapter{
		rng:       rng,
		market:    market,
		byLoc:     byLoc,
		byTick:    byTick,
		sim:       fillsim.New(fillsim.DefaultConfig()),
		account:   exchange.Account{ID: "mock", Currency: "USD", Cash: decimal.NewFromFloat(startingCash), Equity: decimal.NewFromFloat(startingCash), BuyingPower: decimal.NewFromFloat(startingCash)},
		orders:    make(map[string]*domain.Order),
		byClient:  make(map[string]*domain.Order),
		positions: make(map[string]*domain.SimulatedPosition),
	}
}

func (a *Adapter) Connect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *Adapter) Disconnect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *Adapter) SubmitOrder(ctx context.Context, o domain.Order) (exchange.SubmitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return exchange.SubmitResult{}, exchange.ErrNotConnected
	}

	if existing, ok := a.byClient[o.ClientOrderID]; ok {
		return exchange.SubmitResult{Success: true, ExchangeOrderID: existing.ExchangeOrderID, Status: existing.Status}, nil
	}

	sym, ok := a.byTick[o.Symbol]
	if !ok {
		return exchange.SubmitResult{Success: false, ErrorCode: "unknown_symbol", ErrorMessage: fmt.Sprintf("symbol %q is not in the mock universe", o.Symbol)}, nil
	}

	a.nextID++
	exchID := fmt.Sprintf("mock-%06d", a.nextID)
	o.ExchangeOrderID = exchID
	o.Status = domain.OrderAccepted
	now := time.Now().UTC()
	o.SubmittedAt = &now

	// Orders are evaluated once, against the tick produced by this very
	// submission; there is no resting-order book that re-evaluates a
	// limit/stop against later ticks. An unfilled day/gtc order simply
	// stays accepted — good enough for exercising order intake and
	// idempotency, not a substitute for the Backtest Engine's pending
	// order loop.
	bar := a.step(sym)
	intent := fillsim.Intent{Side: o.Side, Type: o.Type, Qty: o.Qty, LimitPrice: o.LimitPrice, StopPrice: o.StopPrice}
	res := a.sim.Evaluate(intent, bar)
	if res.Filled {
		a.applyFill(&o, res, now)
	} else if o.TimeInForce == domain.TIFIOC || o.TimeInForce == domain.TIFFOK {
		o.Status = domain.OrderCancelled
		o.CancelledAt = &now
	}

	a.orders[exchID] = &o
	a.byClient[o.ClientOrderID] = &o
	return exchange.SubmitResult{Success: true, ExchangeOrderID: exchID, Status: o.Status}, nil
}

// step advances the symbol's simulated price by one GBM tick and returns
// a synthetic OHLC bar bracketing the move, so limit/stop conditions can
// be evaluated the same way the Backtest Engine evaluates them.
func (a *Adapter) step(sym *universe.Symbol) domain.Bar {
	open := a.market.Tick(sym.LocateCode)
	close := a.market.Tick(sym.LocateCode)
	high, low := open, close
	if close > high {
		high = close
	}
	if open < low {
		low = open
	}
	return domain.Bar{
		Symbol: sym.Ticker, Timeframe: domain.Timeframe1m, Timestamp: time.Now().UTC(),
		Open: open, High: high, Low: low, Close: close,
	}
}

func (a *Adapter) applyFill(o *domain.Order, res fillsim.Result, t time.Time) {
	fill := domain.Fill{ID: fmt.Sprintf("fill-%d", a.nextID), OrderID: o.ID, Qty: o.Qty, Price: res.Price, Commission: res.Commission, Slippage: res.Slippage, Timestamp: t}
	o.ApplyFill(fill)
	if o.Status == domain.OrderFilled {
		o.FilledAt = &t
	}

	pos, ok := a.positions[o.Symbol]
	if !ok {
		pos = &domain.SimulatedPosition{Symbol: o.Symbol, Side: domain.PositionFlat}
		a.positions[o.Symbol] = pos
	}
	pos.ApplyFill(o.Side, fill.Qty, fill.Price)
	pos.Remark(fill.Price)

	notional := fill.Price.Mul(fill.Qty)
	if o.Side == domain.SideBuy {
		a.account.Cash = a.account.Cash.Sub(notional).Sub(fill.Commission)
	} else {
		a.account.Cash = a.account.Cash.Add(notional).Sub(fill.Commission)
	}
	a.account.Equity = a.account.Cash
	for _, p := range a.positions {
		a.account.Equity = a.account.Equity.Add(p.MarkValue)
	}
	a.account.BuyingPower = a.account.Cash
}

func (a *Adapter) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[exchangeOrderID]
	if !ok {
		return exchange.ErrUnsupported
	}
	if o.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	o.Status = domain.OrderCancelled
	o.CancelledAt = &now
	return nil
}

func (a *Adapter) GetOrder(ctx context.Context, exchangeOrderID string) (domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[exchangeOrderID]
	if !ok {
		return domain.Order{}, exchange.ErrUnsupported
	}
	return *o, nil
}

func (a *Adapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Order, 0, len(a.orders))
	for _, o := range a.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExchangeOrderID < out[j].ExchangeOrderID })
	return out, nil
}

func (a *Adapter) GetAccount(ctx context.Context) (exchange.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return exchange.Account{}, exchange.ErrNotConnected
	}
	return a.account, nil
}

func (a *Adapter) ListPositions(ctx context.Context) ([]domain.SimulatedPosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.SimulatedPosition, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// GetBars generates a deterministic synthetic history for symbol by
// repeatedly ticking its GBM engine, one bar per period between from and
// to. It exists for strategies and tests that need bars without a seeded
// Bar Repository; it does not read or write Postgres.
func (a *Adapter) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Bar, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sym, ok := a.byTick[symbol]
	if !ok {
		return nil, fmt.Errorf("mock adapter: unknown symbol %q", symbol)
	}
	period := tf.Period()
	if period <= 0 {
		return nil, fmt.Errorf("mock adapter: invalid timeframe %q", tf)
	}

	var out []domain.Bar
	for t := from; t.Before(to); t = t.Add(period) {
		open := a.market.Tick(sym.LocateCode)
		close := a.market.Tick(sym.LocateCode)
		high, low := open, close
		if close > high {
			high = close
		}
		if open < low {
			low = open
		}
		out = append(out, domain.Bar{Symbol: symbol, Timeframe: tf, Timestamp: t, Open: open, High: high, Low: low, Close: close})
	}
	return out, nil
}

// StreamQuotes emits one synthetic quote per symbol roughly every 250ms
// until ctx is cancelled, approximating the bid/ask spread with a fixed
// two ticks either side of the GBM price.
func (a *Adapter) StreamQuotes(ctx context.Context, symbols []string) (<-chan exchange.Quote, error) {
	syms := make([]*universe.Symbol, 0, len(symbols))
	for _, s := range symbols {
		a.mu.Lock()
		sym, ok := a.byTick[s]
		a.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("mock adapter: unknown symbol %q", s)
		}
		syms = append(syms, sym)
	}

	out := make(chan exchange.Quote, 16)
	go func() {
		defer close(out)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sym := range syms {
					a.mu.Lock()
					mid := a.market.Tick(sym.LocateCode)
					a.mu.Unlock()
					half := sym.TickSize * 2
					q := exchange.Quote{
						Symbol:    sym.Ticker,
						Bid:       decimal.NewFromFloat(mid - half),
						Ask:       decimal.NewFromFloat(mid + half),
						Timestamp: time.Now().UTC(),
					}
					select {
					case out <- q:
					case <-ctx.Done():
						return
					}
				}
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

// Package simulated is the "simulated" Exchange Adapter: it satisfies the
// exchange.Adapter port by delegating reads to a backtest.Engine, giving
// API/CLI callers a uniform adapter-shaped view of a backtest run's
// account, positions and bars even though order intake for that run
// actually flows through the Engine's Event Log subscription directly.
package simulated

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/backtest"
	"github.com/weaverhq/weaver/internal/bars"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/exchange"
)

// Adapter wraps one run's backtest.Engine.
type Adapter struct {
	engine    *backtest.Engine
	repo      bars.Repository
	connected bool
}

// New builds a simulated Adapter over engine, reading historical bars
// from repo.
func New(engine *backtest.Engine, repo bars.Repository) *Adapter {
	return &Adapter{engine: engine, repo: repo}
}

func (a *Adapter) Connect(context.Context) error {
	a.connected = true
	return nil
}

func (a *Adapter) Disconnect(context.Context) error {
	a.connected = false
	return nil
}

func (a *Adapter) Connected() bool { return a.connected }

// SubmitOrder is not used on this adapter: backtest order intake flows
// through the Engine's Event Log subscription (backtest.PlaceOrder),
// bypassing the adapter entirely, per spec.md's own notes on the
// simulated implementation.
func (a *Adapter) SubmitOrder(context.Context, domain.Order) (exchange.SubmitResult, error) {
	return exchange.SubmitResult{}, fmt.Errorf("simulated adapter: submit orders via backtest.PlaceOrder events, not this port")
}

func (a *Adapter) CancelOrder(context.Context, string) error {
	return fmt.Errorf("simulated adapter: cancel orders via backtest.CancelOrder events, not this port")
}

func (a *Adapter) GetOrder(context.Context, string) (domain.Order, error) {
	return domain.Order{}, exchange.ErrUnsupported
}

func (a *Adapter) ListOrders(context.Context) ([]domain.Order, error) {
	return nil, exchange.ErrUnsupported
}

func (a *Adapter) GetAccount(context.Context) (exchange.Account, error) {
	if !a.connected {
		return exchange.Account{}, exchange.ErrNotConnected
	}
	var equity decimal.Decimal
	if curve := a.engine.EquityCurve(); len(curve) > 0 {
		equity = curve[len(curve)-1].Equity
	}
	return exchange.Account{ID: "backtest", Currency: "USD", Equity: equity}, nil
}

func (a *Adapter) ListPositions(context.Context) ([]domain.SimulatedPosition, error) {
	if !a.connected {
		return nil, exchange.ErrNotConnected
	}
	return a.engine.Positions(), nil
}

func (a *Adapter) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Bar, error) {
	if !a.connected {
		return nil, exchange.ErrNotConnected
	}
	f := from.Unix()
	t := to.Unix()
	return a.repo.GetBars(ctx, bars.Filter{Symbol: symbol, Timeframe: tf, From: &f, To: &t, Limit: 100000})
}

func (a *Adapter) StreamQuotes(context.Context, []string) (<-chan exchange.Quote, error) {
	return nil, exchange.ErrUnsupported
}

func (a *Adapter) SupportsFeature(feature string) bool {
	return false
}

// Package backtest implements the per-run backtest execution environment
// (spec §4.7, component C7): it holds positions, pending orders and an
// equity curve, advances on each clock tick, and simulates fills via the
// Fill Simulator.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/google/uuid"

	"github.com/weaverhq/weaver/internal/bars"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/fillsim"
)

// EquityPoint is one sample on the run's equity curve.
type EquityPoint struct {
	Time   time.Time
	Equity decimal.Decimal
}

// pendingOrder is the engine's working copy of an order awaiting a fill
// decision, carrying the fill-simulator state a stop_limit order needs to
// remember across bars.
type pendingOrder struct {
	order         domain.Order
	stopTriggered bool
	dayBoundary   time.Time // end-of-day deadline for TIF=day
}

// Engine is one run's isolated execution environment. No shared mutable
// state with other runs beyond the immutable Bar Repository.
type Engine struct {
	runID  string
	nodeID string
	repo   bars.Repository
	cache  *bars.Cache
	log    eventlog.Log
	sim    *fillsim.Simulator

	mu         sync.Mutex
	symbols    []string
	timeframe  domain.Timeframe
	currentBar map[string]domain.Bar
	pending    map[string]*pendingOrder // by client order id
	byExchID   map[string]*pendingOrder // by exchange order id, once created
	positions  map[string]*domain.SimulatedPosition
	equity     []EquityPoint
	cashStart  decimal.Decimal
	cash       decimal.Decimal
	totalCommission decimal.Decimal
	totalSlippage   decimal.Decimal

	fetchWindows map[string]fetchWindowRequest // correlation id -> request
}

type fetchWindowRequest struct {
	Symbol    string
	Timeframe domain.Timeframe
	Lookback  int
}

// Config parameterizes one Engine instance.
type Config struct {
	RunID         string
	NodeID        string
	Repo          bars.Repository
	Log           eventlog.Log
	FillSim       fillsim.Config
	StartingCash  decimal.Decimal
}

// New constructs an Engine. Call Initialize before the first tick.
func New(cfg Config) *Engine {
	startingCash := cfg.StartingCash
	if startingCash.IsZero() {
		startingCash = decimal.NewFromInt(100000)
	}
	return &Engine{
		runID:        cfg.RunID,
		nodeID:       cfg.NodeID,
		repo:         cfg.Repo,
		cache:        bars.NewCache(),
		log:          cfg.Log,
		sim:          fillsim.New(cfg.FillSim),
		currentBar:   make(map[string]domain.Bar),
		pending:      make(map[string]*pendingOrder),
		byExchID:     make(map[string]*pendingOrder),
		positions:    make(map[string]*domain.SimulatedPosition),
		fetchWindows: make(map[string]fetchWindowRequest),
		cashStart:    startingCash,
		cash:         startingCash,
	}
}

// Initialize preloads bars for the union of symbols into the in-memory
// cache, keyed for O(1) point lookup as each tick advances.
func (e *Engine) Initialize(ctx context.Context, symbols []string, tf domain.Timeframe, start, end time.Time) error {
	e.mu.Lock()
	e.symbols = symbols
	e.timeframe = tf
	e.mu.Unlock()

	fromUnix := start.Unix()
	toUnix := end.Unix()
	for _, sym := range symbols {
		if err := e.cache.Preload(ctx, e.repo, sym, tf, fromUnix, toUnix); err != nil {
			return fmt.Errorf("backtest %s: preload %s: %w", e.runID, sym, err)
		}
		e.mu.Lock()
		e.positions[sym] = &domain.SimulatedPosition{RunID: e.runID, Symbol: sym, Side: domain.PositionFlat}
		e.mu.Unlock()
	}
	return nil
}

// Positions returns a snapshot of every symbol's current position.
func (e *Engine) Positions() []domain.SimulatedPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.SimulatedPosition, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// EquityCurve returns a copy of the recorded equity points.
func (e *Engine) EquityCurve() []EquityPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EquityPoint, len(e.equity))
	copy(out, e.equity)
	return out
}

// newOrderID generates an internal order id; a small seam so tests can
// override determinism if ever needed (kept as a plain function call to
// stay identical to the rest of the codebase's id-generation style).
func newOrderID() string { return uuid.NewString() }

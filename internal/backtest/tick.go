package backtest

import (
	"context"
	"time"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/fillsim"
)

// Advance runs one tick's full pipeline for timestamp t: refresh the
// current-bar map, drain pending orders against it, remark positions,
// record the equity-curve point, and answer outstanding FetchWindow
// requests. It never blocks on I/O beyond Event Log
// appends.
func (e *Engine) Advance(ctx context.Context, t time.Time) error {
	e.refreshCurrentBars()

	if err := e.drainPending(ctx, t); err != nil {
		return err
	}

	e.remarkPositions()
	e.recordEquityPoint(t)
	return e.fulfillFetchWindows(ctx)
}

// fulfillFetchWindows builds and appends data.WindowReady for every
// outstanding FetchWindow request, using the cache's current cursor as
// the lookback's end. All bars are preloaded for a backtest run, so a
// request is always fulfillable once registered.
func (e *Engine) fulfillFetchWindows(ctx context.Context) error {
	e.mu.Lock()
	reqs := make(map[string]fetchWindowRequest, len(e.fetchWindows))
	for corrID, req := range e.fetchWindows {
		reqs[corrID] = req
		delete(e.fetchWindows, corrID)
	}
	e.mu.Unlock()

	for corrID, req := range reqs {
		window := e.cache.Window(req.Symbol, req.Lookback)
		payload := map[string]any{
			"symbol":    req.Symbol,
			"timeframe": string(req.Timeframe),
			"bars":      window,
		}
		env := eventlog.NewEnvelope(eventlog.EventDataWindowReady, e.nodeID, e.runID, corrID, payload)
		if _, err := e.log.Append(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) refreshCurrentBars() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sym := range e.symbols {
		if b, ok := e.cache.Next(sym); ok {
			e.currentBar[sym] = b
		}
	}
}

func (e *Engine) drainPending(ctx context.Context, t time.Time) error {
	e.mu.Lock()
	candidates := make([]*pendingOrder, 0, len(e.pending))
	for _, p := range e.pending {
		if p.order.Status.Terminal() {
			continue
		}
		candidates = append(candidates, p)
	}
	e.mu.Unlock()

	for _, p := range candidates {
		if err := e.drainOne(ctx, p, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) drainOne(ctx context.Context, p *pendingOrder, t time.Time) error {
	e.mu.Lock()
	bar, ok := e.currentBar[p.order.Symbol]
	e.mu.Unlock()
	if !ok {
		return nil
	}

	intent := fillsim.Intent{
		Side:          p.order.Side,
		Type:          p.order.Type,
		Qty:           p.order.Qty.Sub(p.order.FilledQty),
		LimitPrice:    p.order.LimitPrice,
		StopPrice:     p.order.StopPrice,
		StopTriggered: p.stopTriggered,
	}
	res := e.sim.Evaluate(intent, bar)
	p.stopTriggered = res.StopTriggered

	if res.Filled {
		return e.applyFill(ctx, p, res, t)
	}
	return e.handleNoFill(ctx, p, t)
}

func (e *Engine) applyFill(ctx context.Context, p *pendingOrder, res fillsim.Result, t time.Time) error {
	fill := domain.Fill{
		ID:         newOrderID(),
		OrderID:    p.order.ID,
		Qty:        p.order.Qty.Sub(p.order.FilledQty),
		Price:      res.Price,
		Commission: res.Commission,
		Slippage:   res.Slippage,
		Timestamp:  t,
	}
	p.order.ApplyFill(fill)
	if p.order.Status == domain.OrderFilled {
		p.order.FilledAt = &t
	}

	e.mu.Lock()
	pos, ok := e.positions[p.order.Symbol]
	if !ok {
		pos = &domain.SimulatedPosition{RunID: e.runID, Symbol: p.order.Symbol, Side: domain.PositionFlat}
		e.positions[p.order.Symbol] = pos
	}
	pos.ApplyFill(p.order.Side, fill.Qty, fill.Price)
	e.totalCommission = e.totalCommission.Add(fill.Commission)
	e.totalSlippage = e.totalSlippage.Add(fill.Slippage)
	notional := fill.Price.Mul(fill.Qty)
	if p.order.Side == domain.SideBuy {
		e.cash = e.cash.Sub(notional).Sub(fill.Commission)
	} else {
		e.cash = e.cash.Add(notional).Sub(fill.Commission)
	}
	if p.order.Status.Terminal() {
		delete(e.pending, p.order.ClientOrderID)
	}
	e.mu.Unlock()

	evt := eventlog.EventOrdersFilled
	if p.order.Status == domain.OrderPartiallyFilled {
		evt = eventlog.EventOrdersPartiallyFilled
	}
	return e.emitOrderState(ctx, p.order, evt, "", 0)
}

func (e *Engine) handleNoFill(ctx context.Context, p *pendingOrder, t time.Time) error {
	switch p.order.TimeInForce {
	case domain.TIFIOC, domain.TIFFOK:
		p.order.Status = domain.OrderCancelled
		p.order.CancelledAt = &t
		e.mu.Lock()
		delete(e.pending, p.order.ClientOrderID)
		e.mu.Unlock()
		return e.emitOrderState(ctx, p.order, eventlog.EventOrdersCancelled, "", 0)

	case domain.TIFDay:
		if p.dayBoundary.IsZero() {
			p.dayBoundary = endOfDay(t)
		}
		if !t.Before(p.dayBoundary) {
			p.order.Status = domain.OrderExpired
			e.mu.Lock()
			delete(e.pending, p.order.ClientOrderID)
			e.mu.Unlock()
			return e.emitOrderState(ctx, p.order, eventlog.EventOrdersExpired, "", 0)
		}
		return nil

	default: // gtc
		return nil
	}
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

func (e *Engine) remarkPositions() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for sym, pos := range e.positions {
		if bar, ok := e.currentBar[sym]; ok {
			pos.Remark(decimalFromFloat(bar.Close))
		}
	}
}

// recordEquityPoint computes equity as cash plus the mark-to-market value
// of every open position. Realized PnL from closed fills is already
// reflected in cash, since buys/sells move cash directly at the fill
// price; MarkValue captures only the inventory still held.
func (e *Engine) recordEquityPoint(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	equity := e.cash
	for _, pos := range e.positions {
		equity = equity.Add(pos.MarkValue)
	}
	e.equity = append(e.equity, EquityPoint{Time: t, Equity: equity})
}

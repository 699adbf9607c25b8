package runmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weaverhq/weaver/internal/apperr"
	"github.com/weaverhq/weaver/internal/backtest"
	"github.com/weaverhq/weaver/internal/clock"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/strategy"
)

// Start builds the RunContext and transitions a pending run to running.
// Preconditions: the run must exist and be pending; backtest mode
// requires a Bar Repository; any mode requires a Strategy Loader. Any
// failure anywhere in this path transitions the run straight to error
// and runs the cleanup path, per spec.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, exists := m.contexts[id]; exists {
		m.mu.Unlock()
		return apperr.New(apperr.CodeNotStartable, "run "+id+" already has an active context")
	}
	m.mu.Unlock()

	run, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status != domain.RunPending {
		return apperr.New(apperr.CodeNotStartable, fmt.Sprintf("run %s is %s, not pending", id, run.Status))
	}

	rc, err := m.buildRunContext(ctx, run)
	if err != nil {
		m.transitionToError(ctx, run, err)
		return err
	}

	m.mu.Lock()
	m.contexts[id] = rc
	m.mu.Unlock()

	now := time.Now().UTC()
	run.Status = domain.RunRunning
	run.StartedAt = &now
	if err := m.repo.Update(ctx, run); err != nil {
		m.mu.Lock()
		delete(m.contexts, id)
		m.mu.Unlock()
		rc.cancel()
		err = fmt.Errorf("runmanager: persist running status: %w", err)
		m.transitionToError(ctx, run, err)
		return err
	}
	if _, err := m.cfg.Log.Append(ctx, eventlog.NewEnvelope(
		eventlog.EventRunStarted, m.cfg.NodeID, id, uuid.NewString(), nil,
	)); err != nil {
		m.mu.Lock()
		delete(m.contexts, id)
		m.mu.Unlock()
		rc.cancel()
		err = fmt.Errorf("runmanager: append run.Started: %w", err)
		m.transitionToError(ctx, run, err)
		return err
	}

	go func() {
		runErr := rc.loop(rc.ctx)
		m.finalize(id, rc, runErr)
		close(rc.doneCh)
	}()

	return nil
}

// buildRunContext assembles the Clock, strategy Runner, and
// mode-dependent BacktestEngine/liveBridge for run, per spec's start()
// preconditions and registration order.
func (m *Manager) buildRunContext(ctx context.Context, run domain.Run) (*runContext, error) {
	if m.cfg.Strategies == nil {
		return nil, apperr.New(apperr.CodeNotStartable, "no strategy loader configured")
	}
	if run.Mode == domain.ModeBacktest && m.cfg.BarRepo == nil {
		return nil, apperr.New(apperr.CodeNotStartable, "backtest mode requires a bar repository")
	}
	if run.Mode != domain.ModeBacktest && m.cfg.LiveAdapter == nil {
		return nil, apperr.New(apperr.CodeNotStartable, "live/paper mode requires a live adapter")
	}

	plugin, err := m.cfg.Strategies.Load(run.StrategyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNotStartable, "load strategy plugin", err)
	}
	if err := plugin.Initialize(run.Symbols, nil); err != nil {
		return nil, apperr.Wrap(apperr.CodeNotStartable, "initialize strategy plugin", err)
	}

	runner := strategy.NewRunner(run.ID, m.cfg.NodeID, plugin, m.cfg.Log)

	rcCtx, cancel := context.WithCancel(context.Background())
	rc := &runContext{
		runID:  run.ID,
		nodeID: m.cfg.NodeID,
		runner: runner,
		evlog:  m.cfg.Log,
		ctx:    rcCtx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}

	switch run.Mode {
	case domain.ModeBacktest:
		engine := backtest.New(backtest.Config{
			RunID:  run.ID,
			NodeID: m.cfg.NodeID,
			Repo:   m.cfg.BarRepo,
			Log:    m.cfg.Log,
		})
		if err := engine.Initialize(ctx, run.Symbols, run.Timeframe, *run.StartTime, *run.EndTime); err != nil {
			cancel()
			return nil, apperr.Wrap(apperr.CodeNotStartable, "initialize backtest engine", err)
		}
		rc.engine = engine
		rc.clk = &clock.BacktestClock{Start: *run.StartTime, End: *run.EndTime, Timeframe: run.Timeframe}

	default: // paper, live
		if !m.cfg.LiveAdapter.Connected() {
			if err := m.cfg.LiveAdapter.Connect(ctx); err != nil {
				cancel()
				return nil, apperr.Wrap(apperr.CodeNotStartable, "connect live adapter", err)
			}
		}
		rc.live = newLiveBridge(run.ID, m.cfg.NodeID, m.cfg.LiveAdapter, m.cfg.Log)
		rc.clk = &clock.RealtimeClock{Start: time.Now().UTC(), Timeframe: run.Timeframe}
	}

	return rc, nil
}

// transitionToError is the failure path out of Start: it records the
// error status and appends run.Error. It does no cleanup itself; callers
// that already registered a RunContext remove and cancel it first.
func (m *Manager) transitionToError(ctx context.Context, run domain.Run, cause error) {
	run.Status = domain.RunError
	run.ErrorMsg = cause.Error()
	_ = m.repo.Update(ctx, run)
	_, _ = m.cfg.Log.Append(ctx, eventlog.NewEnvelope(
		eventlog.EventRunError, m.cfg.NodeID, run.ID, uuid.NewString(),
		map[string]any{"message": run.ErrorMsg},
	))
}

// Stop is idempotent: stopping an already-terminal run is a no-op.
// Stopping a running run cancels its context and blocks until its cleanup
// has completed. Stopping a run that was never started (no runContext
// exists because Start was never called) transitions it straight from
// pending to stopped without ever emitting run.Started.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	rc, ok := m.contexts[id]
	m.mu.Unlock()
	if !ok {
		return m.stopNeverStarted(ctx, id)
	}

	rc.cancel()
	select {
	case <-rc.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopNeverStarted handles Stop called against a run with no live
// runContext: either it already reached a terminal state (no-op) or it is
// still pending, in which case it is stopped directly.
func (m *Manager) stopNeverStarted(ctx context.Context, id string) error {
	run, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	run.Status = domain.RunStopped
	run.StoppedAt = &now
	if err := m.repo.Update(ctx, run); err != nil {
		return fmt.Errorf("runmanager: persist stopped status: %w", err)
	}
	if _, err := m.cfg.Log.Append(ctx, eventlog.NewEnvelope(
		eventlog.EventRunStopped, m.cfg.NodeID, id, uuid.NewString(), nil,
	)); err != nil {
		return fmt.Errorf("runmanager: append run.Stopped: %w", err)
	}
	return nil
}

// finalize is the single place a run reaches a terminal state from a
// started RunContext: it finalizes the engine (if any), records the
// outcome, appends the matching run.* event, and releases the context.
// It runs exactly once per Start, from the goroutine loop spawned there,
// regardless of whether the run stopped via Stop, ran to completion, or
// failed.
func (m *Manager) finalize(id string, rc *runContext, loopErr error) {
	bg := context.Background()

	run, err := m.repo.Get(bg, id)
	if err != nil {
		return // run record is gone; nothing left to record against
	}

	now := time.Now().UTC()
	var evtType eventlog.EventType
	switch {
	case loopErr != nil && !errors.Is(loopErr, context.Canceled):
		run.Status = domain.RunError
		run.ErrorMsg = loopErr.Error()
		evtType = eventlog.EventRunError

	case errors.Is(loopErr, context.Canceled):
		run.Status = domain.RunStopped
		run.StoppedAt = &now
		evtType = eventlog.EventRunStopped

	default:
		run.Status = domain.RunCompleted
		run.CompletedAt = &now
		evtType = eventlog.EventRunCompleted
	}

	if rc.engine != nil && run.Status != domain.RunError {
		result := rc.engine.Finalize()
		run.Stats = map[string]any{
			"sharpe":          result.Sharpe,
			"sortino":         result.Sortino,
			"maxDrawdown":     result.MaxDrawdown,
			"winRate":         result.WinRate,
			"profitFactor":    result.ProfitFactor,
			"totalCommission": result.TotalCommission.String(),
			"totalSlippage":   result.TotalSlippage.String(),
			"finalEquity":     result.FinalEquity.String(),
		}
	}

	_ = m.repo.Update(bg, run)
	_, _ = m.cfg.Log.Append(bg, eventlog.NewEnvelope(
		evtType, m.cfg.NodeID, id, uuid.NewString(),
		map[string]any{"message": run.ErrorMsg},
	))

	m.mu.Lock()
	delete(m.contexts, id)
	m.mu.Unlock()
}

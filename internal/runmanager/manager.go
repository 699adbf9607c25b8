// Package runmanager implements the Run Manager (spec §4.9, component
// C9): the authoritative owner of run lifecycle and of the in-memory
// contexts[run_id] -> RunContext map. Every state transition a run goes
// through — pending, running, stopped/completed/error — happens here.
package runmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/weaverhq/weaver/internal/apperr"
	"github.com/weaverhq/weaver/internal/bars"
	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/exchange"
	"github.com/weaverhq/weaver/internal/strategy"
)

// Config are the Manager's construction-time dependencies. BarRepo and
// LiveAdapter are both nullable, but are required the moment a backtest
// or live/paper run (respectively) is started.
type Config struct {
	Log         eventlog.Log
	BarRepo     bars.Repository
	Strategies  *strategy.Loader
	LiveAdapter exchange.Adapter
	Repo        Repository
	NodeID      string
}

// Manager owns run lifecycle. One Manager per process.
type Manager struct {
	cfg  Config
	repo Repository

	mu       sync.Mutex
	contexts map[string]*runContext
}

// NewManager builds a Manager. A nil cfg.Repo falls back to an in-process
// MemRepository, which makes the Manager fully usable without a database
// — restart recovery is then moot, since nothing survives the restart
// either way.
func NewManager(cfg Config) *Manager {
	repo := cfg.Repo
	if repo == nil {
		repo = NewMemRepository()
	}
	return &Manager{
		cfg:      cfg,
		repo:     repo,
		contexts: make(map[string]*runContext),
	}
}

// Create validates request, persists a new pending Run, and appends
// run.Created.
func (m *Manager) Create(ctx context.Context, req domain.CreateRunRequest) (domain.Run, error) {
	if err := validateCreate(req); err != nil {
		return domain.Run{}, err
	}

	run := domain.Run{
		ID:         uuid.NewString(),
		StrategyID: req.StrategyID,
		Mode:       req.Mode,
		Symbols:    req.Symbols,
		Timeframe:  req.Timeframe,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Status:     domain.RunPending,
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.repo.Create(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("runmanager: create: %w", err)
	}

	if _, err := m.cfg.Log.Append(ctx, eventlog.NewEnvelope(
		eventlog.EventRunCreated, m.cfg.NodeID, run.ID, uuid.NewString(),
		map[string]any{"strategyId": run.StrategyID, "mode": string(run.Mode)},
	)); err != nil {
		return domain.Run{}, fmt.Errorf("runmanager: append run.Created: %w", err)
	}

	return run, nil
}

func validateCreate(req domain.CreateRunRequest) error {
	if !req.Mode.Valid() {
		return apperr.New(apperr.CodeInvalidMode, fmt.Sprintf("unknown run mode %q", req.Mode))
	}
	if req.StrategyID == "" {
		return apperr.New(apperr.CodeValidation, "strategyId is required")
	}
	if len(req.Symbols) == 0 {
		return apperr.New(apperr.CodeValidation, "at least one symbol is required")
	}
	if !req.Timeframe.Valid() {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("unknown timeframe %q", req.Timeframe))
	}
	if req.Mode == domain.ModeBacktest {
		if req.StartTime == nil || req.EndTime == nil {
			return apperr.New(apperr.CodeValidation, "backtest runs require startTime and endTime")
		}
		if !req.StartTime.Before(*req.EndTime) {
			return apperr.New(apperr.CodeValidation, "startTime must precede endTime")
		}
	}
	return nil
}

// List returns a page of runs matching f and the total matching count.
func (m *Manager) List(ctx context.Context, f domain.RunFilter) ([]domain.Run, int64, error) {
	return m.repo.List(ctx, f)
}

// Get returns one run by id.
func (m *Manager) Get(ctx context.Context, id string) (domain.Run, error) {
	return m.repo.Get(ctx, id)
}

// Delete removes a run's persisted record. It refuses to delete a run
// that currently has an active RunContext.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, active := m.contexts[id]
	m.mu.Unlock()
	if active {
		return apperr.New(apperr.CodeConflict, "run "+id+" is active; stop it before deleting")
	}

	if _, err := m.repo.Get(ctx, id); err != nil {
		return err
	}
	return m.repo.Delete(ctx, id)
}

// UpdateStats merges stats into a run's persisted Stats blob, used both
// for the Backtest Engine's final Result and for any periodic snapshot a
// caller wants recorded mid-run.
func (m *Manager) UpdateStats(ctx context.Context, id string, stats map[string]any) error {
	run, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Stats == nil {
		run.Stats = make(map[string]any, len(stats))
	}
	for k, v := range stats {
		run.Stats[k] = v
	}
	return m.repo.Update(ctx, run)
}

// Recover transitions every run left in `running` (from a prior process
// that terminated without stopping cleanly) to `error`. It never attempts
// to resume a run; a fresh start() is required. Call once at startup,
// before accepting new start() calls.
func (m *Manager) Recover(ctx context.Context) error {
	stuck, err := m.repo.ListByStatus(ctx, domain.RunRunning)
	if err != nil {
		return fmt.Errorf("runmanager: recover: list running: %w", err)
	}
	for _, run := range stuck {
		run.Status = domain.RunError
		run.ErrorMsg = "process terminated"
		if err := m.repo.Update(ctx, run); err != nil {
			return fmt.Errorf("runmanager: recover: update %s: %w", run.ID, err)
		}
		if _, err := m.cfg.Log.Append(ctx, eventlog.NewEnvelope(
			eventlog.EventRunError, m.cfg.NodeID, run.ID, uuid.NewString(),
			map[string]any{"message": run.ErrorMsg},
		)); err != nil {
			return fmt.Errorf("runmanager: recover: append run.Error for %s: %w", run.ID, err)
		}
	}
	return nil
}

// Shutdown stops every currently active run concurrently and waits for
// all of them to finish cleanup, bounding total shutdown time to the
// slowest single run rather than the sum of all of them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return m.Stop(gctx, id)
		})
	}
	return g.Wait()
}

// RunMode implements domainrouter.ModeLookup so the Domain Router can
// resolve a run's execution mode without importing runmanager's internal
// RunContext map.
func (m *Manager) RunMode(ctx context.Context, runID string) (domain.Mode, error) {
	run, err := m.repo.Get(ctx, runID)
	if err != nil {
		return "", err
	}
	return run.Mode, nil
}

package domainrouter

import (
	"context"
	"testing"
	"time"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/eventlog"
)

type fixedModeLookup struct {
	mode domain.Mode
}

func (f fixedModeLookup) RunMode(context.Context, string) (domain.Mode, error) {
	return f.mode, nil
}

func waitForEvent(t *testing.T, l eventlog.Log, typ eventlog.EventType, timeout time.Duration) eventlog.Envelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		entries, _ := l.ReadFrom(context.Background(), 0, 0)
		for _, e := range entries {
			if e.Type == typ {
				return e
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event type %q", typ)
	return eventlog.Envelope{}
}

func TestRouterTranslatesStrategyToBacktest(t *testing.T) {
	l := eventlog.NewMemLog()
	router := New(l, fixedModeLookup{mode: domain.ModeBacktest}, NewMemDedup(), "router-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	env := eventlog.NewEnvelope(eventlog.EventStrategyPlaceRequest, "strategy-runner", "run-1", "corr-1", map[string]any{"symbol": "AAPL"})
	appended, err := l.Append(context.Background(), env)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	translated := waitForEvent(t, l, eventlog.EventBacktestPlaceOrder, 2*time.Second)
	if translated.CausationID == nil || *translated.CausationID != appended.Offset {
		t.Fatalf("expected causation id %d, got %+v", appended.Offset, translated.CausationID)
	}
	if translated.CorrelationID != "corr-1" {
		t.Fatalf("expected correlation id preserved, got %q", translated.CorrelationID)
	}
}

func TestRouterTranslatesStrategyToLiveForPaperMode(t *testing.T) {
	l := eventlog.NewMemLog()
	router := New(l, fixedModeLookup{mode: domain.ModePaper}, NewMemDedup(), "router-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	env := eventlog.NewEnvelope(eventlog.EventStrategyFetchWindow, "strategy-runner", "run-2", "corr-2", map[string]any{"symbol": "AAPL"})
	if _, err := l.Append(context.Background(), env); err != nil {
		t.Fatalf("append: %v", err)
	}

	waitForEvent(t, l, eventlog.EventLiveFetchWindow, 2*time.Second)
}

func TestRouterIgnoresNonStrategyEvents(t *testing.T) {
	l := eventlog.NewMemLog()
	dedup := NewMemDedup()
	router := New(l, fixedModeLookup{mode: domain.ModeBacktest}, dedup, "router-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	env := eventlog.NewEnvelope(eventlog.EventClockTick, "clock", "run-3", "", nil)
	if _, err := l.Append(context.Background(), env); err != nil {
		t.Fatalf("append: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	entries, _ := l.ReadFrom(context.Background(), 0, 0)
	if len(entries) != 1 {
		t.Fatalf("expected no translated event to be appended, got %d entries", len(entries))
	}
}

func TestRouterDoesNotDoubleTranslateSameOffset(t *testing.T) {
	l := eventlog.NewMemLog()
	dedup := NewMemDedup()

	env := eventlog.NewEnvelope(eventlog.EventStrategyPlaceRequest, "strategy-runner", "run-4", "corr-4", map[string]any{})
	appended, err := l.Append(context.Background(), env)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	r1 := New(l, fixedModeLookup{mode: domain.ModeBacktest}, dedup, "router-a")
	r2 := New(l, fixedModeLookup{mode: domain.ModeBacktest}, dedup, "router-b")

	if err := r1.handle(context.Background(), appended); err != nil {
		t.Fatalf("r1 handle: %v", err)
	}
	if err := r2.handle(context.Background(), appended); err != nil {
		t.Fatalf("r2 handle: %v", err)
	}

	entries, _ := l.ReadFrom(context.Background(), 0, 0)
	var translated int
	for _, e := range entries {
		if e.Type == eventlog.EventBacktestPlaceOrder {
			translated++
		}
	}
	if translated != 1 {
		t.Fatalf("expected exactly 1 translated event across two router instances, got %d", translated)
	}
}

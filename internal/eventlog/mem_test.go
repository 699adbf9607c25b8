package eventlog

import (
	"context"
	"testing"
)

func TestMemLogOffsetsMonotonic(t *testing.T) {
	l := NewMemLog()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e, err := l.Append(ctx, NewEnvelope(EventClockTick, "test", "", "corr-1", nil))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if e.Offset != int64(i+1) {
			t.Fatalf("append %d: got offset %d, want %d", i, e.Offset, i+1)
		}
	}
}

func TestMemLogReadFromIsExclusive(t *testing.T) {
	l := NewMemLog()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, NewEnvelope(EventClockTick, "test", "", "corr-1", nil)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := l.ReadFrom(ctx, 1, 0)
	if err != nil {
		t.Fatalf("read from: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Offset != 2 || entries[1].Offset != 3 {
		t.Fatalf("unexpected offsets: %+v", entries)
	}
}

func TestMemLogSubscribeDeliversAppendsOnly(t *testing.T) {
	l := NewMemLog()
	ctx := context.Background()

	if _, err := l.Append(ctx, NewEnvelope(EventClockTick, "test", "", "corr-1", nil)); err != nil {
		t.Fatalf("append before subscribe: %v", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub := l.Subscribe(subCtx)

	e, err := l.Append(ctx, NewEnvelope(EventClockTick, "test", "", "corr-2", nil))
	if err != nil {
		t.Fatalf("append after subscribe: %v", err)
	}

	select {
	case got := <-sub.C:
		if got.Offset != e.Offset {
			t.Fatalf("got offset %d, want %d", got.Offset, e.Offset)
		}
	default:
		t.Fatal("subscriber did not receive the post-subscribe append")
	}
}

func TestMemLogQueryFiltersByRunID(t *testing.T) {
	l := NewMemLog()
	ctx := context.Background()

	e1 := NewEnvelope(EventRunCreated, "test", "run-a", "corr-1", nil)
	e2 := NewEnvelope(EventRunCreated, "test", "run-b", "corr-2", nil)
	if _, err := l.Append(ctx, e1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(ctx, e2); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := l.Query(ctx, Filter{RunID: "run-a"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].RunID != "run-a" {
		t.Fatalf("unexpected query result: %+v", out)
	}
}

func TestMemLogOffsetStoreRoundtrip(t *testing.T) {
	l := NewMemLog()
	ctx := context.Background()

	if got, err := l.Offsets().Get(ctx, "consumer-a"); err != nil || got != 0 {
		t.Fatalf("expected zero offset for unseen consumer, got %d, err %v", got, err)
	}
	if err := l.Offsets().Set(ctx, "consumer-a", 42); err != nil {
		t.Fatalf("set offset: %v", err)
	}
	if got, err := l.Offsets().Get(ctx, "consumer-a"); err != nil || got != 42 {
		t.Fatalf("got %d, want 42, err %v", got, err)
	}
}

func TestMemLogAppendAfterCloseFails(t *testing.T) {
	l := NewMemLog()
	ctx := context.Background()
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := l.Append(ctx, NewEnvelope(EventClockTick, "test", "", "corr-1", nil)); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

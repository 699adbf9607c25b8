package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/weaverhq/weaver/internal/eventlog"
)

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestServeHTTPStreamsLiveEvents(t *testing.T) {
	l := eventlog.NewMemLog()
	b := NewBroadcaster(Config{Log: l, HeartbeatInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stream", nil)
	reqCtx, reqCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer reqCancel()
	req = req.WithContext(reqCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req)
		close(done)
	}()

	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.clients) == 1
	}, time.Second)

	if _, err := l.Append(context.Background(), eventlog.NewEnvelope(
		eventlog.EventRunCreated, "node-a", "run-1", "corr-1", map[string]any{"strategyId": "noop"},
	)); err != nil {
		t.Fatalf("append: %v", err)
	}

	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: run.Created") {
		t.Fatalf("expected run.Created event in body, got %q", body)
	}
	if !strings.Contains(body, "id: 1") {
		t.Fatalf("expected offset id in body, got %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream content type, got %q", ct)
	}
}

func TestServeHTTPFiltersByRunID(t *testing.T) {
	l := eventlog.NewMemLog()
	b := NewBroadcaster(Config{Log: l, HeartbeatInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stream?run_id=run-a", nil)
	reqCtx, reqCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer reqCancel()
	req = req.WithContext(reqCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req)
		close(done)
	}()

	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.clients) == 1
	}, time.Second)

	l.Append(context.Background(), eventlog.NewEnvelope(eventlog.EventRunCreated, "node-a", "run-b", "c1", nil))
	l.Append(context.Background(), eventlog.NewEnvelope(eventlog.EventRunCreated, "node-a", "run-a", "c2", nil))

	<-done

	body := rec.Body.String()
	if strings.Contains(body, "run-b") {
		t.Fatalf("expected run-b event to be filtered out, got %q", body)
	}
	if !strings.Contains(body, "id: 2") {
		t.Fatalf("expected run-a event (offset 2) in body, got %q", body)
	}
}

func TestServeHTTPReplaysFromLastEventID(t *testing.T) {
	l := eventlog.NewMemLog()
	for i := 0; i < 3; i++ {
		l.Append(context.Background(), eventlog.NewEnvelope(eventlog.EventRunCreated, "node-a", "run-1", "c", nil))
	}

	b := NewBroadcaster(Config{Log: l, HeartbeatInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stream", nil)
	req.Header.Set("Last-Event-ID", "1")
	reqCtx, reqCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer reqCancel()
	req = req.WithContext(reqCtx)
	rec := httptest.NewRecorder()

	b.ServeHTTP(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "id: 1") {
		t.Fatalf("expected offset 1 to be excluded from replay, got %q", body)
	}
	if !strings.Contains(body, "id: 2") || !strings.Contains(body, "id: 3") {
		t.Fatalf("expected offsets 2 and 3 replayed, got %q", body)
	}
}

func TestBroadcastDisconnectsSlowConsumer(t *testing.T) {
	l := eventlog.NewMemLog()
	b := NewBroadcaster(Config{Log: l, ClientBufferSize: 1})

	ch := b.addClient("")
	// Fill the buffer, then push one more: the slow-consumer policy closes
	// the channel rather than blocking the broadcaster.
	b.broadcast(eventlog.Envelope{Offset: 1, Type: eventlog.EventRunCreated})
	b.broadcast(eventlog.Envelope{Offset: 2, Type: eventlog.EventRunCreated})

	_, stillOpen := <-ch
	if stillOpen {
		// drain the buffered one and check the channel is now closed
		_, stillOpen = <-ch
	}
	if stillOpen {
		t.Fatalf("expected channel to be closed after overflow")
	}

	b.mu.Lock()
	_, tracked := b.clients[ch]
	b.mu.Unlock()
	if tracked {
		t.Fatalf("expected client to be removed from broadcaster after overflow")
	}
}

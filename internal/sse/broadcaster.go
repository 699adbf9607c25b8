// Package sse implements the SSE Broadcaster (spec §4.10, component C10):
// it subscribes to the Event Log and fans events out to connected HTTP
// clients, each optionally filtered to a single run id, with resumability
// via Last-Event-ID and a slow-consumer disconnect policy.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/weaverhq/weaver/internal/eventlog"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultClientBufferSize  = 64
)

// Config are the Broadcaster's construction-time dependencies.
type Config struct {
	Log               eventlog.Log
	HeartbeatInterval time.Duration
	ClientBufferSize  int
}

// Broadcaster owns the Event Log subscription and the set of connected
// clients. One Broadcaster per process; clients attach and detach via
// ServeHTTP for the lifetime of their HTTP request.
type Broadcaster struct {
	log               eventlog.Log
	heartbeatInterval time.Duration
	clientBufferSize  int

	mu      sync.Mutex
	clients map[chan eventlog.Envelope]string // channel -> run id filter, "" = unfiltered
}

// NewBroadcaster builds a Broadcaster with defaulted heartbeat interval and
// client buffer size when Config leaves them zero.
func NewBroadcaster(cfg Config) *Broadcaster {
	hb := cfg.HeartbeatInterval
	if hb <= 0 {
		hb = defaultHeartbeatInterval
	}
	buf := cfg.ClientBufferSize
	if buf <= 0 {
		buf = defaultClientBufferSize
	}
	return &Broadcaster{
		log:               cfg.Log,
		heartbeatInterval: hb,
		clientBufferSize:  buf,
		clients:           make(map[chan eventlog.Envelope]string),
	}
}

// Run subscribes to the Event Log and fans every envelope out to every
// connected client whose run-id filter matches. It blocks until ctx is
// cancelled, at which point every connected client channel is closed.
func (b *Broadcaster) Run(ctx context.Context) {
	sub := b.log.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case env, ok := <-sub.C:
			if !ok {
				b.closeAll()
				return
			}
			b.broadcast(env)
		}
	}
}

func (b *Broadcaster) broadcast(env eventlog.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, runFilter := range b.clients {
		if runFilter != "" && env.RunID != runFilter {
			continue
		}
		select {
		case ch <- env:
		default:
			// Slow consumer: drop the channel rather than block the
			// broadcaster. The client's own read loop sees the closed
			// channel and disconnects.
			close(ch)
			delete(b.clients, ch)
		}
	}
}

func (b *Broadcaster) addClient(runFilter string) chan eventlog.Envelope {
	ch := make(chan eventlog.Envelope, b.clientBufferSize)
	b.mu.Lock()
	b.clients[ch] = runFilter
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) removeClient(ch chan eventlog.Envelope) {
	b.mu.Lock()
	_, ok := b.clients[ch]
	delete(b.clients, ch)
	b.mu.Unlock()
	if ok {
		// Only close channels still owned by the map; broadcast() may
		// have already closed and removed it on a slow-consumer drop.
		close(ch)
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		close(ch)
		delete(b.clients, ch)
	}
}

// ServeHTTP handles one SSE connection for its lifetime. Query parameter
// run_id restricts the stream to a single run. Request header
// Last-Event-ID, if present and parseable, triggers a replay of every
// envelope with offset > last_seen_id before switching over to live
// delivery, so a reconnecting client never misses events appended during
// the gap.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	runFilter := r.URL.Query().Get("run_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Register before replay so nothing appended during the replay window
	// is lost between the ReadFrom snapshot and the live subscription.
	ch := b.addClient(runFilter)
	defer b.removeClient(ch)

	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		if after, err := strconv.ParseInt(lastID, 10, 64); err == nil {
			if err := b.replay(r.Context(), w, flusher, after, runFilter); err != nil {
				log.Printf("sse: replay from %d failed: %v", after, err)
				return
			}
		}
	}

	heartbeat := time.NewTicker(b.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEnvelope(w, flusher, env); err != nil {
				return
			}
			heartbeat.Reset(b.heartbeatInterval)
		case <-heartbeat.C:
			if err := writeHeartbeat(w, flusher); err != nil {
				return
			}
		}
	}
}

func (b *Broadcaster) replay(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, after int64, runFilter string) error {
	envs, err := b.log.ReadFrom(ctx, after, 0)
	if err != nil {
		return err
	}
	for _, env := range envs {
		if runFilter != "" && env.RunID != runFilter {
			continue
		}
		if err := writeEnvelope(w, flusher, env); err != nil {
			return err
		}
	}
	return nil
}

func writeEnvelope(w http.ResponseWriter, flusher http.Flusher, env eventlog.Envelope) error {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", env.Offset, env.Type, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeHeartbeat(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := fmt.Fprintf(w, "event: heartbeat\ndata: %d\n\n", time.Now().UTC().Unix()); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

package eventlog

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a Log after Close has run.
var ErrClosed = errors.New("eventlog: closed")

// Filter narrows Query results. A zero Filter matches every envelope.
type Filter struct {
	RunID     string
	Types     []EventType
	FromOffset int64
	Limit     int
}

func (f Filter) matches(e Envelope) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == e.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Subscription delivers envelopes appended after it was created. Delivery
// stops when Close is called or the Subscribe ctx is done; the channel
// itself is never closed.
type Subscription struct {
	C      <-chan Envelope
	cancel func()
}

// Close unsubscribes; it is idempotent and safe to call multiple times.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Log is the single source of truth: a durable, append-only, densely and
// monotonically offset sequence of Envelopes (spec §4.1).
//
// Append assigns the next offset and fans the envelope out to every live
// Subscribe call before returning, giving in-process consumers
// synchronous, ordered delivery. Cross-process consumers resume by
// calling ReadFrom with their last known offset.
type Log interface {
	// Append assigns the next dense offset, persists the envelope, and
	// returns it with Offset populated.
	Append(ctx context.Context, e Envelope) (Envelope, error)

	// ReadFrom returns envelopes with Offset > after, in order, up to
	// limit (0 means no limit).
	ReadFrom(ctx context.Context, after int64, limit int) ([]Envelope, error)

	// Subscribe delivers every envelope appended after this call. Nothing
	// is dropped: once Subscription.C's buffer is full, Append blocks until
	// the caller drains it, so the caller must drain it promptly.
	Subscribe(ctx context.Context) *Subscription

	// Query runs a filtered read over the whole log.
	Query(ctx context.Context, f Filter) ([]Envelope, error)

	// Head returns the offset of the most recently appended envelope, or
	// 0 if the log is empty.
	Head(ctx context.Context) (int64, error)

	// Offsets exposes named consumer-offset bookkeeping so a consumer can
	// resume a ReadFrom loop across restarts.
	Offsets() OffsetStore

	Close() error
}

// OffsetStore persists the last-processed offset for a named consumer
// (e.g. "domain-router", "sse-broadcaster-3").
type OffsetStore interface {
	Get(ctx context.Context, consumer string) (int64, error)
	Set(ctx context.Context, consumer string, offset int64) error
}

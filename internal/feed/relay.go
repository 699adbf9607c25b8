package feed

import (
	"context"

	"github.com/weaverhq/weaver/internal/eventlog"
	"github.com/weaverhq/weaver/internal/itch"
)

// Relay subscribes to the Event Log and frames every orders.* envelope
// except orders.Created as
// an ITCH-style message broadcast to this endpoint's connected clients —
// the binary-framing counterpart to the SSE Broadcaster's JSON frames.
type Relay struct {
	log eventlog.Log
	mgr *Manager
}

// NewRelay builds a Relay over l, fanning events out through mgr.
func NewRelay(l eventlog.Log, mgr *Manager) *Relay {
	return &Relay{log: l, mgr: mgr}
}

// Run subscribes and relays envelopes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	sub := r.log.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			r.relay(env)
		}
	}
}

func (r *Relay) relay(env eventlog.Envelope) {
	symbol, _ := env.Payload["symbol"].(string)
	orderID, _ := env.Payload["orderId"].(string)
	if symbol == "" || orderID == "" {
		return
	}
	locate := itch.Locate(symbol)

	switch env.Type {
	case eventlog.EventOrdersSubmitted, eventlog.EventOrdersAccepted:
		side, _ := env.Payload["side"].(string)
		msg := itch.NewOrderSubmitted(symbol, orderID, side == "buy", intField(env.Payload, "qty"), floatField(env.Payload, "limitPrice"))
		r.mgr.Broadcast(locate, []itch.Message{msg})

	case eventlog.EventOrdersPartiallyFilled, eventlog.EventOrdersFilled:
		executed, trade := itch.NewOrderFilled(symbol, orderID, intField(env.Payload, "filledQty"), floatField(env.Payload, "filledAvgPrice"), uint64(env.Offset))
		r.mgr.Broadcast(locate, []itch.Message{executed, trade})

	case eventlog.EventOrdersCancelled, eventlog.EventOrdersRejected, eventlog.EventOrdersExpired:
		msg := itch.NewOrderCancelled(symbol, orderID)
		r.mgr.Broadcast(locate, []itch.Message{msg})

	default:
		return
	}
}

func intField(m map[string]any, key string) int32 {
	switch v := m[key].(type) {
	case float64:
		return int32(v)
	case int:
		return int32(v)
	case int32:
		return v
	case string:
		// decimal.Decimal-valued fields sometimes arrive as strings
		// depending on the producer; best-effort truncation to whole
		// shares is fine for a display-only relay.
		var n int32
		for _, c := range v {
			if c < '0' || c > '9' {
				break
			}
			n = n*10 + int32(c-'0')
		}
		return n
	default:
		return 0
	}
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	default:
		return 0
	}
}

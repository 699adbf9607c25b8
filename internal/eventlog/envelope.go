// Package eventlog implements the durable, totally-ordered append-only
// outbox (spec §4.1, component C1) that is the single source of truth for
// every inter-component message in Weaver.
package eventlog

import "time"

// EventType is a namespaced, dotted event type string. The set is closed
// for the core (spec §3).
type EventType string

const (
	EventRunCreated   EventType = "run.Created"
	EventRunStarted   EventType = "run.Started"
	EventRunStopped   EventType = "run.Stopped"
	EventRunCompleted EventType = "run.Completed"
	EventRunError     EventType = "run.Error"

	EventClockTick EventType = "clock.Tick"

	EventStrategyFetchWindow   EventType = "strategy.FetchWindow"
	EventStrategyPlaceRequest  EventType = "strategy.PlaceRequest"
	EventStrategyCancelRequest EventType = "strategy.CancelRequest"

	EventBacktestFetchWindow EventType = "backtest.FetchWindow"
	EventBacktestPlaceOrder  EventType = "backtest.PlaceOrder"
	EventBacktestCancelOrder EventType = "backtest.CancelOrder"

	EventLiveFetchWindow EventType = "live.FetchWindow"
	EventLivePlaceOrder  EventType = "live.PlaceOrder"
	EventLiveCancelOrder EventType = "live.CancelOrder"

	EventDataWindowReady EventType = "data.WindowReady"

	EventOrdersCreated         EventType = "orders.Created"
	EventOrdersSubmitted       EventType = "orders.Submitted"
	EventOrdersAccepted        EventType = "orders.Accepted"
	EventOrdersPartiallyFilled EventType = "orders.PartiallyFilled"
	EventOrdersFilled          EventType = "orders.Filled"
	EventOrdersCancelled       EventType = "orders.Cancelled"
	EventOrdersRejected        EventType = "orders.Rejected"
	EventOrdersExpired         EventType = "orders.Expired"
)

// IsStrategyDomain reports whether t is one of the mode-agnostic
// strategy.* intents the Domain Router rewrites.
func (t EventType) IsStrategyDomain() bool {
	return len(t) > 9 && t[:9] == "strategy."
}

// Envelope is the immutable unit flowing through the Event Log.
type Envelope struct {
	Offset        int64          `json:"offset" bson:"offset"`
	Type          EventType      `json:"type" bson:"type"`
	Timestamp     time.Time      `json:"timestamp" bson:"timestamp"`
	ProducerID    string         `json:"producerId" bson:"producer_id"`
	RunID         string         `json:"runId,omitempty" bson:"run_id,omitempty"`
	Payload       map[string]any `json:"payload" bson:"payload"`
	CorrelationID string         `json:"correlationId" bson:"correlation_id"`
	CausationID   *int64         `json:"causationId,omitempty" bson:"causation_id,omitempty"`
}

// NewEnvelope builds an envelope ready for Append; Offset is assigned by
// the log itself and must be zero (unset) here.
func NewEnvelope(typ EventType, producerID, runID, correlationID string, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		Type:          typ,
		Timestamp:     time.Now().UTC(),
		ProducerID:    producerID,
		RunID:         runID,
		Payload:       payload,
		CorrelationID: correlationID,
	}
}

// CausedBy marks the envelope as caused by the given offset, matching the
// Domain Router's translation rule (spec §4.8).
func (e Envelope) CausedBy(offset int64) Envelope {
	e.CausationID = &offset
	return e
}

// Package strategy runs a strategy plugin against one run's tick and data
// stream, translating its decisions into Event Log entries without ever
// revealing to the plugin whether it is running in backtest or live mode
// (spec §4.6, component C6).
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
)

// Tick is what on_tick receives: the bar-open timestamp the clock just
// emitted, never the wall time of delivery.
type Tick struct {
	RunID     string
	Timestamp time.Time
	BarIndex  int64
}

// Window is the payload of a data.WindowReady event: a lookback slice of
// bars for one symbol/timeframe, tagged with the correlation id of the
// FetchWindow request that produced it.
type Window struct {
	CorrelationID string
	Symbol        string
	Timeframe     domain.Timeframe
	Bars          []domain.Bar
}

// ActionKind is the closed set of things a strategy can ask the runner to
// do on its behalf.
type ActionKind string

const (
	ActionFetchWindow  ActionKind = "fetch_window"
	ActionPlaceOrder   ActionKind = "place_order"
	ActionCancelOrder  ActionKind = "cancel_order"
)

// Action is a tagged union over ActionKind; only the fields relevant to
// Kind are populated.
type Action struct {
	Kind ActionKind

	// fetch_window
	Symbol    string
	Timeframe domain.Timeframe
	Lookback  int

	// place_order
	ClientOrderID string
	Side          domain.Side
	Type          domain.OrderType
	Qty           decimal.Decimal
	LimitPrice    *decimal.Decimal
	StopPrice     *decimal.Decimal
	TimeInForce   domain.TimeInForce

	// cancel_order reuses ClientOrderID above.
}

// FetchWindow builds a fetch_window action.
func FetchWindow(symbol string, tf domain.Timeframe, lookback int) Action {
	return Action{Kind: ActionFetchWindow, Symbol: symbol, Timeframe: tf, Lookback: lookback}
}

// PlaceOrder builds a place_order action.
func PlaceOrder(clientOrderID, symbol string, side domain.Side, typ domain.OrderType, qty decimal.Decimal) Action {
	return Action{
		Kind:          ActionPlaceOrder,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		Qty:           qty,
		TimeInForce:   domain.TIFDay,
	}
}

// CancelOrder builds a cancel_order action.
func CancelOrder(clientOrderID string) Action {
	return Action{Kind: ActionCancelOrder, ClientOrderID: clientOrderID}
}

// Plugin is the capability set every strategy must implement. It never
// receives a mode flag: the same implementation drives backtest, paper,
// and live runs identically.
type Plugin interface {
	Initialize(symbols []string, config map[string]any) error
	OnTick(tick Tick) ([]Action, error)
	OnData(window Window) ([]Action, error)
}

// Metadata is a plugin's self-description, extracted without importing
// the plugin package (see loader.go).
type Metadata struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	ClassName string  `json:"className"`
	File     string   `json:"-"`
}

// Factory constructs a Plugin instance once a concrete implementation has
// been registered for a Metadata.ID (see Loader.Register).
type Factory func() Plugin

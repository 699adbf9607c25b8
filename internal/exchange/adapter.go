// Package exchange defines the venue port every run trades through (spec
// §4.3, component C3) and its three implementations: simulated (backtest),
// mock (deterministic test double), and live (real venue over REST/WS).
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
)

// SubmitResult is the adapter's verdict on an order submission. Success
// means "accepted for processing by the exchange"; it never implies a
// fill.
type SubmitResult struct {
	Success         bool
	ExchangeOrderID string
	Status          domain.OrderStatus
	ErrorCode       string
	ErrorMessage    string
}

// Account is a venue's account snapshot.
type Account struct {
	ID            string
	Currency      string
	Cash          decimal.Decimal
	Equity        decimal.Decimal
	BuyingPower   decimal.Decimal
}

// Quote is a top-of-book snapshot for streaming.
type Quote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp time.Time
}

// Adapter is the venue port. All order-mutating operations must be
// idempotent in ClientOrderID: resubmitting an intent whose
// ClientOrderID already exists returns the existing order with no side
// effects and without creating a duplicate upstream.
type Adapter interface {
	// Connect initializes clients and verifies an active account.
	// Idempotent: calling it while already connected is a no-op success.
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool

	SubmitOrder(ctx context.Context, o domain.Order) (SubmitResult, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	GetOrder(ctx context.Context, exchangeOrderID string) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)

	GetAccount(ctx context.Context) (Account, error)
	ListPositions(ctx context.Context) ([]domain.SimulatedPosition, error)

	GetBars(ctx context.Context, symbol string, tf domain.Timeframe, from, to time.Time) ([]domain.Bar, error)

	// StreamQuotes is optional: adapters that don't support streaming
	// return ErrUnsupported.
	StreamQuotes(ctx context.Context, symbols []string) (<-chan Quote, error)

	// SupportsFeature reports whether a named capability (e.g.
	// "streaming", "stop_limit") is available without attempting it.
	SupportsFeature(feature string) bool
}

// Feature names recognized by SupportsFeature/Metadata.SupportedFeatures.
const (
	FeatureStreaming  = "streaming"
	FeatureStopLimit  = "stop_limit"
	FeatureFractional = "fractional_qty"
)

// Package bars stores and serves the immutable OHLCV history that both
// the Backtest Engine and the simulated Exchange Adapter read windows from
// (spec §4.2, component C2).
package bars

import (
	"context"
	"fmt"

	"github.com/weaverhq/weaver/internal/domain"
)

// Filter narrows a GetBars query to one symbol/timeframe over a half-open
// time range, newest-bounded by To.
type Filter struct {
	Symbol    string
	Timeframe domain.Timeframe
	From      *int64 // unix seconds, inclusive
	To        *int64 // unix seconds, exclusive
	Limit     int
}

// Repository is the read/write contract over bar storage.
type Repository interface {
	// SaveBars upserts bars by their natural key (symbol, timeframe,
	// timestamp); re-saving the same bar is idempotent.
	SaveBars(ctx context.Context, bars []domain.Bar) error

	// GetBars returns bars matching f in ascending timestamp order.
	GetBars(ctx context.Context, f Filter) ([]domain.Bar, error)

	// GetBarAt returns the single bar opening exactly at ts, or
	// ErrNotFound.
	GetBarAt(ctx context.Context, symbol string, tf domain.Timeframe, ts int64) (domain.Bar, error)

	Close(ctx context.Context) error
}

// ErrNotFound is returned by GetBarAt when no bar exists at that key.
var ErrNotFound = fmt.Errorf("bars: not found")

// Package smacrossover is a reference strategy plugin: buy on a fast/slow
// SMA bullish cross, sell on a bearish cross. It exists to exercise the
// Strategy Runner end to end, not to be profitable.
package smacrossover

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
	"github.com/weaverhq/weaver/internal/strategy"
)

// Metadata is extracted by pluginscan without importing this package.
var Metadata = strategy.Metadata{
	ID:        "sma-crossover",
	Name:      "SMA Crossover",
	Version:   "1.0.0",
	ClassName: "Strategy",
}

const (
	fastPeriod = 10
	slowPeriod = 30
)

// Strategy is the concrete Plugin implementation.
type Strategy struct {
	symbols   []string
	lastCross map[string]int // -1 bearish, 0 none, 1 bullish
}

// New constructs a fresh Strategy, suitable as a strategy.Factory.
func New() strategy.Plugin {
	return &Strategy{lastCross: make(map[string]int)}
}

func (s *Strategy) Initialize(symbols []string, _ map[string]any) error {
	s.symbols = symbols
	return nil
}

func (s *Strategy) OnTick(tick strategy.Tick) ([]strategy.Action, error) {
	var actions []strategy.Action
	for _, sym := range s.symbols {
		actions = append(actions, strategy.FetchWindow(sym, domain.Timeframe1m, slowPeriod))
	}
	return actions, nil
}

func (s *Strategy) OnData(win strategy.Window) ([]strategy.Action, error) {
	if len(win.Bars) < slowPeriod {
		return nil, nil
	}

	fast := sma(win.Bars, fastPeriod)
	slow := sma(win.Bars, slowPeriod)

	cross := 0
	switch {
	case fast > slow:
		cross = 1
	case fast < slow:
		cross = -1
	}

	prev := s.lastCross[win.Symbol]
	s.lastCross[win.Symbol] = cross

	if cross == prev || cross == 0 {
		return nil, nil
	}

	side := domain.SideSell
	if cross == 1 {
		side = domain.SideBuy
	}
	clientOrderID := fmt.Sprintf("%s-%s-%d", win.Symbol, side, len(win.Bars))
	return []strategy.Action{
		strategy.PlaceOrder(clientOrderID, win.Symbol, side, domain.OrderMarket, decimal.NewFromInt(1)),
	}, nil
}

func sma(bars []domain.Bar, period int) float64 {
	if period > len(bars) {
		period = len(bars)
	}
	var sum float64
	window := bars[len(bars)-period:]
	for _, b := range window {
		sum += b.Close
	}
	return sum / float64(period)
}

// Package fillsim decides, for one order intent against one bar, whether
// and at what price a fill occurs (spec §4.5, component C5). It is used
// only by the Backtest Engine; live and paper runs get fills from the
// Exchange Adapter instead.
package fillsim

import (
	"github.com/shopspring/decimal"

	"github.com/weaverhq/weaver/internal/domain"
)

// BasePriceMode selects which bar price a filled market order clears at.
type BasePriceMode string

const (
	BasePriceOpen  BasePriceMode = "open"
	BasePriceClose BasePriceMode = "close"
	BasePriceVWAP  BasePriceMode = "vwap"
	BasePriceWorst BasePriceMode = "worst"
)

// Config parameterizes the simulator. Zero value is invalid; use
// DefaultConfig.
type Config struct {
	MarketBasePrice   BasePriceMode
	SlippageBps       decimal.Decimal // fixed basis points of price
	CommissionBps     decimal.Decimal // basis points of notional
	CommissionFloor   decimal.Decimal
}

// DefaultConfig matches spec.md's stated defaults: fixed-bps slippage,
// bps-of-notional commission with a floor.
func DefaultConfig() Config {
	return Config{
		MarketBasePrice: BasePriceClose,
		SlippageBps:     decimal.NewFromFloat(5),  // 5 bps
		CommissionBps:   decimal.NewFromFloat(10), // 10 bps
		CommissionFloor: decimal.NewFromFloat(1),  // $1 minimum
	}
}

// Intent is the subset of an Order the simulator needs to evaluate a fill.
// StopTriggered lets the caller carry stop_limit state across bars: once
// true, the simulator only re-checks the limit condition.
type Intent struct {
	Side          domain.Side
	Type          domain.OrderType
	Qty           decimal.Decimal
	LimitPrice    *decimal.Decimal
	StopPrice     *decimal.Decimal
	StopTriggered bool
}

// Result is the simulator's verdict for one (intent, bar) evaluation.
type Result struct {
	Filled        bool
	Price         decimal.Decimal
	Commission    decimal.Decimal
	Slippage      decimal.Decimal
	StopTriggered bool // echoes/updates Intent.StopTriggered for stop_limit
}

// Simulator evaluates order intents against bars. It holds no per-run
// state; the same Simulator instance is safe to share across runs and
// goroutines, which is what makes it trivially deterministic — identical
// (intent, bar, config) always yields an identical Result.
type Simulator struct {
	cfg Config
}

func New(cfg Config) *Simulator {
	return &Simulator{cfg: cfg}
}

// Evaluate returns the fill decision for intent against bar. No partials:
// an order either fills in full on this bar or it doesn't fill at all,
// per the "no partials" default documented for this implementation.
func (s *Simulator) Evaluate(intent Intent, bar domain.Bar) Result {
	basePrice, ok := s.basePrice(intent, bar)
	if !ok {
		triggered := intent.StopTriggered
		if intent.Type == domain.OrderStopLimit && !triggered && intent.StopPrice != nil {
			stop := *intent.StopPrice
			if intent.Side == domain.SideBuy {
				triggered = decimal.NewFromFloat(bar.High).GreaterThanOrEqual(stop)
			} else {
				triggered = decimal.NewFromFloat(bar.Low).LessThanOrEqual(stop)
			}
		}
		return Result{StopTriggered: triggered}
	}

	slippage := s.slippage(intent.Side, basePrice)
	fillPrice := basePrice.Add(slippage)
	notional := fillPrice.Mul(intent.Qty)
	commission := s.commission(notional)

	return Result{
		Filled:        true,
		Price:         fillPrice,
		Commission:    commission,
		Slippage:      slippage.Abs(),
		StopTriggered: true,
	}
}

// basePrice returns the unslipped fill price for intent against bar, and
// whether the order's fill condition is met at all.
func (s *Simulator) basePrice(intent Intent, bar domain.Bar) (decimal.Decimal, bool) {
	switch intent.Type {
	case domain.OrderMarket:
		return s.marketBasePrice(intent.Side, bar), true

	case domain.OrderLimit:
		if intent.LimitPrice == nil {
			return decimal.Zero, false
		}
		limit := *intent.LimitPrice
		if intent.Side == domain.SideBuy {
			if decimal.NewFromFloat(bar.Low).LessThanOrEqual(limit) {
				return limit, true
			}
			return decimal.Zero, false
		}
		if decimal.NewFromFloat(bar.High).GreaterThanOrEqual(limit) {
			return limit, true
		}
		return decimal.Zero, false

	case domain.OrderStop:
		if intent.StopPrice == nil {
			return decimal.Zero, false
		}
		stop := *intent.StopPrice
		if intent.Side == domain.SideBuy {
			if decimal.NewFromFloat(bar.High).GreaterThanOrEqual(stop) {
				return stop, true
			}
			return decimal.Zero, false
		}
		if decimal.NewFromFloat(bar.Low).LessThanOrEqual(stop) {
			return stop, true
		}
		return decimal.Zero, false

	case domain.OrderStopLimit:
		return s.stopLimitBasePrice(intent, bar)

	default:
		return decimal.Zero, false
	}
}

func (s *Simulator) stopLimitBasePrice(intent Intent, bar domain.Bar) (decimal.Decimal, bool) {
	if intent.StopPrice == nil || intent.LimitPrice == nil {
		return decimal.Zero, false
	}

	triggered := intent.StopTriggered
	if !triggered {
		stop := *intent.StopPrice
		if intent.Side == domain.SideBuy {
			triggered = decimal.NewFromFloat(bar.High).GreaterThanOrEqual(stop)
		} else {
			triggered = decimal.NewFromFloat(bar.Low).LessThanOrEqual(stop)
		}
	}
	if !triggered {
		return decimal.Zero, false
	}

	limit := *intent.LimitPrice
	if intent.Side == domain.SideBuy {
		if decimal.NewFromFloat(bar.Low).LessThanOrEqual(limit) {
			return limit, true
		}
		return decimal.Zero, false
	}
	if decimal.NewFromFloat(bar.High).GreaterThanOrEqual(limit) {
		return limit, true
	}
	return decimal.Zero, false
}

func (s *Simulator) marketBasePrice(side domain.Side, bar domain.Bar) decimal.Decimal {
	switch s.cfg.MarketBasePrice {
	case BasePriceOpen:
		return decimal.NewFromFloat(bar.Open)
	case BasePriceVWAP:
		return vwap(bar)
	case BasePriceWorst:
		open := decimal.NewFromFloat(bar.Open)
		close := decimal.NewFromFloat(bar.Close)
		if side == domain.SideBuy {
			return decimal.Max(open, close)
		}
		return decimal.Min(open, close)
	case BasePriceClose:
		fallthrough
	default:
		return decimal.NewFromFloat(bar.Close)
	}
}

// vwap approximates a bar's volume-weighted price from OHLC, the standard
// stand-in when tick-level trade data isn't available.
func vwap(bar domain.Bar) decimal.Decimal {
	typical := (bar.Open + bar.High + bar.Low + bar.Close) / 4
	return decimal.NewFromFloat(typical)
}

func (s *Simulator) slippage(side domain.Side, basePrice decimal.Decimal) decimal.Decimal {
	amount := basePrice.Mul(s.cfg.SlippageBps).Div(decimal.NewFromInt(10000))
	if side == domain.SideSell {
		return amount.Neg()
	}
	return amount
}

func (s *Simulator) commission(notional decimal.Decimal) decimal.Decimal {
	c := notional.Mul(s.cfg.CommissionBps).Div(decimal.NewFromInt(10000)).Abs()
	if c.LessThan(s.cfg.CommissionFloor) {
		return s.cfg.CommissionFloor
	}
	return c
}

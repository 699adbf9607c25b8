package backtest

import (
	"math"

	"github.com/shopspring/decimal"
)

// Result is the run's final statistics, computed from the equity curve
// and fill log when the clock ends.
type Result struct {
	Sharpe         float64
	Sortino        float64
	MaxDrawdown    float64
	WinRate        float64
	ProfitFactor   float64
	TotalCommission decimal.Decimal
	TotalSlippage   decimal.Decimal
	FinalEquity     decimal.Decimal
}

// Finalize computes Result from the accumulated equity curve and closed
// positions' realized PnL. Call once, after the clock has ended.
func (e *Engine) Finalize() Result {
	e.mu.Lock()
	curve := make([]EquityPoint, len(e.equity))
	copy(curve, e.equity)
	totalCommission := e.totalCommission
	totalSlippage := e.totalSlippage
	var wins, losses int
	var grossProfit, grossLoss decimal.Decimal
	for _, pos := range e.positions {
		if pos.RealizedPnL.IsPositive() {
			wins++
			grossProfit = grossProfit.Add(pos.RealizedPnL)
		} else if pos.RealizedPnL.IsNegative() {
			losses++
			grossLoss = grossLoss.Add(pos.RealizedPnL.Abs())
		}
	}
	e.mu.Unlock()

	returns := dailyReturns(curve)
	res := Result{
		Sharpe:      sharpe(returns),
		Sortino:     sortino(returns),
		MaxDrawdown: maxDrawdown(curve),
	}
	if wins+losses > 0 {
		res.WinRate = float64(wins) / float64(wins+losses)
	}
	if grossLoss.IsPositive() {
		pf, _ := grossProfit.Div(grossLoss).Float64()
		res.ProfitFactor = pf
	} else if grossProfit.IsPositive() {
		res.ProfitFactor = math.Inf(1)
	}
	res.TotalCommission = totalCommission
	res.TotalSlippage = totalSlippage
	if len(curve) > 0 {
		res.FinalEquity = curve[len(curve)-1].Equity
	}
	return res
}

func dailyReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev.IsZero() {
			continue
		}
		r, _ := curve[i].Equity.Sub(prev).Div(prev).Float64()
		returns = append(returns, r)
	}
	return returns
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stddev(returns, m)
	if sd == 0 {
		return 0
	}
	return (m / sd) * math.Sqrt(float64(len(returns)))
}

func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	dd := stddev(downside, 0)
	if dd == 0 {
		return 0
	}
	return (m / dd) * math.Sqrt(float64(len(returns)))
}

func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if peak.IsZero() {
			continue
		}
		dd, _ := peak.Sub(p.Equity).Div(peak).Float64()
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

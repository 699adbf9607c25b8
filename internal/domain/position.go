package domain

import "github.com/shopspring/decimal"

// PositionSide is the directional state of a SimulatedPosition.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
	PositionFlat  PositionSide = "flat"
)

// SimulatedPosition is the Backtest Engine's per-(run, symbol) holding.
// It is remarked on every tick and mutated on every fill.
type SimulatedPosition struct {
	RunID         string
	Symbol        string
	Qty           decimal.Decimal
	Side          PositionSide
	AvgEntryPrice decimal.Decimal
	RealizedPnL   decimal.Decimal
	MarkValue     decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// ApplyFill updates average entry price and realized PnL for a fill on the
// buy (positive delta) or sell (negative delta) side.
func (p *SimulatedPosition) ApplyFill(side Side, qty, price decimal.Decimal) {
	signedQty := qty
	if side == SideSell {
		signedQty = qty.Neg()
	}

	switch {
	case p.Qty.IsZero() || sameSign(p.Qty, signedQty):
		// Opening or adding to a position: blend the average entry price.
		totalQty := p.Qty.Add(signedQty)
		if !totalQty.IsZero() {
			priorNotional := p.AvgEntryPrice.Mul(p.Qty.Abs())
			addNotional := price.Mul(qty)
			p.AvgEntryPrice = priorNotional.Add(addNotional).Div(totalQty.Abs())
		}
		p.Qty = totalQty
	default:
		// Reducing or flipping: realize PnL on the portion being closed.
		closingQty := decimal.Min(qty, p.Qty.Abs())
		var pnl decimal.Decimal
		if p.Qty.IsPositive() {
			pnl = price.Sub(p.AvgEntryPrice).Mul(closingQty)
		} else {
			pnl = p.AvgEntryPrice.Sub(price).Mul(closingQty)
		}
		p.RealizedPnL = p.RealizedPnL.Add(pnl)
		p.Qty = p.Qty.Add(signedQty)
		if sign(p.Qty) != sign(p.Qty.Sub(signedQty)) && !p.Qty.IsZero() {
			// Flipped through flat: the remainder opens a new position at
			// this fill's price.
			p.AvgEntryPrice = price
		}
	}

	p.updateSide()
}

// Remark re-marks the position to a new market price.
func (p *SimulatedPosition) Remark(price decimal.Decimal) {
	p.MarkValue = p.Qty.Mul(price)
	if p.Qty.IsZero() {
		p.UnrealizedPnL = decimal.Zero
		return
	}
	if p.Qty.IsPositive() {
		p.UnrealizedPnL = price.Sub(p.AvgEntryPrice).Mul(p.Qty)
	} else {
		p.UnrealizedPnL = p.AvgEntryPrice.Sub(price).Mul(p.Qty.Abs())
	}
}

func (p *SimulatedPosition) updateSide() {
	switch {
	case p.Qty.IsPositive():
		p.Side = PositionLong
	case p.Qty.IsNegative():
		p.Side = PositionShort
	default:
		p.Side = PositionFlat
		p.AvgEntryPrice = decimal.Zero
	}
}

func sameSign(a, b decimal.Decimal) bool {
	return sign(a) == sign(b) || a.IsZero() || b.IsZero()
}

func sign(d decimal.Decimal) int {
	switch {
	case d.IsPositive():
		return 1
	case d.IsNegative():
		return -1
	default:
		return 0
	}
}

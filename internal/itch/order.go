package itch

import (
	"hash/fnv"
)

// This package started life as a synthetic ITCH 5.0 message codec. The
// wire framing (length-prefixed binary, mirrored JSON) is genuinely
// reusable for any low-latency tick relay, so it stays; what it now
// carries is real order lifecycle events off the Event Log
// (orders.Submitted/Filled/Cancelled/...), not synthetic order-book
// noise. Locate codes and order refs are no longer assigned from a
// static symbol table — they're hashed from the run's actual symbol and
// order id so the framing needs no registry to stay stable per entity.

// Locate hashes a symbol to the uint16 StockLocate the binary frames
// carry. Collisions are acceptable: locate is a transport-level
// correlation hint for subscription filtering, the Stock field itself
// carries the real symbol.
func Locate(symbol string) uint16 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return uint16(h.Sum32())
}

// OrderRef hashes an order id to the uint64 OrderRef binary frames
// carry for the same reason Locate hashes symbols.
func OrderRef(orderID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(orderID))
	return h.Sum64()
}

// NewOrderSubmitted frames an orders.Submitted/Accepted envelope as an
// Add Order message: side/qty/price as the order was accepted at.
func NewOrderSubmitted(symbol, orderID string, buy bool, qty int32, price float64) Message {
	side := byte('S')
	if buy {
		side = 'B'
	}
	return Message{
		Type:        MsgAddOrder,
		Stock:       symbol,
		StockLocate: Locate(symbol),
		OrderRef:    OrderRef(orderID),
		Side:        side,
		Shares:      qty,
		Price:       price,
	}
}

// NewOrderFilled frames an orders.Filled/PartiallyFilled envelope as an
// Order Executed message, plus a Trade print carrying the fill price
// (Order Executed alone has no price field in ITCH 5.0).
func NewOrderFilled(symbol, orderID string, filledQty int32, fillPrice float64, matchNumber uint64) (executed, trade Message) {
	ref := OrderRef(orderID)
	locate := Locate(symbol)
	executed = Message{
		Type:        MsgOrderExecuted,
		Stock:       symbol,
		StockLocate: locate,
		OrderRef:    ref,
		Shares:      filledQty,
		MatchNumber: matchNumber,
	}
	trade = Message{
		Type:        MsgTrade,
		Stock:       symbol,
		StockLocate: locate,
		OrderRef:    ref,
		Shares:      filledQty,
		Price:       fillPrice,
		MatchNumber: matchNumber,
	}
	return executed, trade
}

// NewOrderCancelled frames an orders.Cancelled/Rejected/Expired envelope
// as an Order Delete message — the order is done, full stop, unlike a
// partial Order Cancel which only reduces remaining shares.
func NewOrderCancelled(symbol, orderID string) Message {
	return Message{
		Type:        MsgOrderDelete,
		Stock:       symbol,
		StockLocate: Locate(symbol),
		OrderRef:    OrderRef(orderID),
	}
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the matching condition for an order.
type OrderType string

const (
	OrderMarket     OrderType = "market"
	OrderLimit      OrderType = "limit"
	OrderStop       OrderType = "stop"
	OrderStopLimit  OrderType = "stop_limit"
)

// TimeInForce controls how long an unfilled order remains workable.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
)

// OrderStatus moves monotonically toward a terminal state.
type OrderStatus string

const (
	OrderCreated         OrderStatus = "created"
	OrderSubmitted       OrderStatus = "submitted"
	OrderAccepted        OrderStatus = "accepted"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
	OrderExpired         OrderStatus = "expired"
)

// Terminal reports whether the order can no longer be mutated.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

// Fill is an immutable execution record against an order.
type Fill struct {
	ID         string          `json:"id" gorm:"primaryKey;size:36"`
	OrderID    string          `json:"orderId" gorm:"size:36;index"`
	Qty        decimal.Decimal `json:"qty" gorm:"type:decimal(24,8)"`
	Price      decimal.Decimal `json:"price" gorm:"type:decimal(24,8)"`
	Commission decimal.Decimal `json:"commission" gorm:"type:decimal(24,8)"`
	Slippage   decimal.Decimal `json:"slippage" gorm:"type:decimal(24,8)"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (Fill) TableName() string { return "fills" }

// Order is the system's record of a strategy-originated trade intent and
// its lifecycle against an exchange (simulated or real).
type Order struct {
	ID              string          `json:"id" gorm:"primaryKey;size:36"`
	ClientOrderID   string          `json:"clientOrderId" gorm:"size:128;uniqueIndex"`
	ExchangeOrderID string          `json:"exchangeOrderId,omitempty" gorm:"size:128"`
	RunID           string          `json:"runId" gorm:"size:36;index"`
	Symbol          string          `json:"symbol" gorm:"size:32;index"`
	Side            Side            `json:"side" gorm:"size:8"`
	Type            OrderType       `json:"type" gorm:"size:16"`
	Qty             decimal.Decimal `json:"qty" gorm:"type:decimal(24,8)"`
	LimitPrice      *decimal.Decimal `json:"limitPrice,omitempty" gorm:"type:decimal(24,8)"`
	StopPrice       *decimal.Decimal `json:"stopPrice,omitempty" gorm:"type:decimal(24,8)"`
	TimeInForce     TimeInForce     `json:"timeInForce" gorm:"size:8"`
	Status          OrderStatus     `json:"status" gorm:"size:24;index"`
	FilledQty       decimal.Decimal `json:"filledQty" gorm:"type:decimal(24,8)"`
	FilledAvgPrice  decimal.Decimal `json:"filledAvgPrice" gorm:"type:decimal(24,8)"`
	Fills           []Fill          `json:"fills,omitempty" gorm:"-"`
	RejectReason    string          `json:"rejectReason,omitempty" gorm:"size:512"`
	CreatedAt       time.Time       `json:"createdAt"`
	SubmittedAt     *time.Time      `json:"submittedAt,omitempty"`
	FilledAt        *time.Time      `json:"filledAt,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
}

func (Order) TableName() string { return "orders" }

// ApplyFill folds a new fill into the order's aggregate filled state,
// recomputing the weighted average fill price. The caller is responsible
// for appending the Fill to o.Fills and persisting both.
func (o *Order) ApplyFill(f Fill) {
	priorNotional := o.FilledAvgPrice.Mul(o.FilledQty)
	newNotional := f.Price.Mul(f.Qty)
	o.FilledQty = o.FilledQty.Add(f.Qty)
	if o.FilledQty.IsZero() {
		o.FilledAvgPrice = decimal.Zero
	} else {
		o.FilledAvgPrice = priorNotional.Add(newNotional).Div(o.FilledQty)
	}
	if o.FilledQty.GreaterThanOrEqual(o.Qty) {
		o.Status = OrderFilled
	} else {
		o.Status = OrderPartiallyFilled
	}
}

// OrderFilter narrows API/list queries over orders.
type OrderFilter struct {
	RunID     string
	Status    OrderStatus
	Symbol    string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

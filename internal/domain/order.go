package domain

import "time"

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus is the lifecycle of a simulated order.
// NEW → FILLED and NEW → CANCELED are the only legal transitions.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// SimulatedOrder is a resting limit order in the matching engine.
// It always executes at its own limit price, never at the tick that
// triggered it.
type SimulatedOrder struct {
	ID             string
	Symbol         string
	Side           Side
	Price          float64
	Quantity       float64
	FilledQuantity float64
	Status         OrderStatus
	GridLevel      int // ladder rung that owns this order
	// EntryPrice is the rung price the position was (or would be) acquired
	// at. Sells realize (Price - EntryPrice) * Quantity on fill.
	EntryPrice float64
	// Reserved is false when placement could not lock funds; the order still
	// exists so the level lifecycle stays consistent.
	Reserved  bool
	CreatedAt time.Time
	FilledAt  *time.Time
}

// Open reports whether the order is still resting.
func (o SimulatedOrder) Open() bool {
	return o.Status == OrderStatusNew
}

// Notional is price × quantity.
func (o SimulatedOrder) Notional() float64 {
	return o.Price * o.Quantity
}

package domain

import "time"

// FeedEvent is the tagged variant emitted by a price source. Payloads are
// validated once at the feed boundary and never re-validated downstream.
type FeedEvent interface {
	feedEvent()
}

// PriceTick is one validated price sample for a subscribed symbol.
type PriceTick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

func (PriceTick) feedEvent() {}

// OrderUpdate reports an exchange-side order transition. Only live feeds
// emit these; the simulated matching engine produces fills internally.
type OrderUpdate struct {
	OrderID        string
	Symbol         string
	Status         OrderStatus
	FilledQuantity float64
	Time           time.Time
}

func (OrderUpdate) feedEvent() {}

// ConnectionEvent signals feed connectivity changes. Up=false with
// Exhausted=true means reconnect attempts ran out and the affected symbols
// should stop trading until manually restarted.
type ConnectionEvent struct {
	Up        bool
	Exhausted bool
	Detail    string
	Symbols   []string
	Time      time.Time
}

func (ConnectionEvent) feedEvent() {}

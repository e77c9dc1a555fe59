package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument is the exchange metadata consulted at order-placement time:
// price and quantity granularity plus the minimum order notional.
type Instrument struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	TickSize    float64
	StepSize    float64
	MinNotional float64
}

// RoundPrice floors a price to the nearest tick-size multiple.
func (i Instrument) RoundPrice(price float64) float64 {
	return floorToIncrement(price, i.TickSize)
}

// RoundQuantity floors a quantity to the nearest step-size multiple.
func (i Instrument) RoundQuantity(qty float64) float64 {
	return floorToIncrement(qty, i.StepSize)
}

// CheckNotional rejects orders under the instrument's minimum notional.
func (i Instrument) CheckNotional(price, qty float64) error {
	if i.MinNotional <= 0 {
		return nil
	}
	if notional := price * qty; notional < i.MinNotional {
		return fmt.Errorf("%w: %s notional %.8f < minimum %.8f", ErrBelowMinNotional, i.Symbol, notional, i.MinNotional)
	}
	return nil
}

// floorToIncrement floors value to a multiple of inc. Exact decimal division
// avoids the float artifacts that binary floor(v/inc)*inc produces on common
// tick sizes like 0.01.
func floorToIncrement(value, inc float64) float64 {
	if inc <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	step := decimal.NewFromFloat(inc)
	out, _ := v.Div(step).Floor().Mul(step).Float64()
	return out
}

package domain

import (
	"fmt"
	"math"
	"time"
)

// GridType selects the level spacing formula.
type GridType string

const (
	GridArithmetic GridType = "arithmetic"
	GridGeometric  GridType = "geometric"
)

// LevelStatus is the per-rung state machine:
//
//	empty → buy_pending → bought → sell_pending → sold → buy_pending → …
//
// A completed round trip re-arms the buy side; levels cycle for the pair's
// lifetime. The topmost rung is only ever a sell target and stays empty.
type LevelStatus string

const (
	LevelEmpty       LevelStatus = "empty"
	LevelBuyPending  LevelStatus = "buy_pending"
	LevelBought      LevelStatus = "bought"
	LevelSellPending LevelStatus = "sell_pending"
	LevelSold        LevelStatus = "sold"
)

// GridLevel is one rung on the ladder. A level owns at most one open buy
// order at its own price and one open sell order one rung up.
type GridLevel struct {
	Level       int
	Price       float64
	BuyOrderID  string
	SellOrderID string
	Status      LevelStatus
	FilledAt    *time.Time
}

// BuildLevels generates count+1 strictly ascending prices between lower and
// upper. Arithmetic grids use constant spacing (upper-lower)/count; geometric
// grids use constant ratio (upper/lower)^(1/count).
func BuildLevels(lower, upper float64, count int, gridType GridType) ([]float64, error) {
	if lower <= 0 || upper <= 0 {
		return nil, fmt.Errorf("%w: bounds must be positive (lower=%g upper=%g)", ErrInvalidGridConfig, lower, upper)
	}
	if upper <= lower {
		return nil, fmt.Errorf("%w: upper %g must exceed lower %g", ErrInvalidGridConfig, upper, lower)
	}
	if count < 2 {
		return nil, fmt.Errorf("%w: count %d must be at least 2", ErrInvalidGridConfig, count)
	}

	levels := make([]float64, count+1)
	switch gridType {
	case GridGeometric:
		ratio := math.Pow(upper/lower, 1/float64(count))
		for i := range levels {
			levels[i] = lower * math.Pow(ratio, float64(i))
		}
	case GridArithmetic, "":
		spacing := (upper - lower) / float64(count)
		for i := range levels {
			levels[i] = lower + spacing*float64(i)
		}
	default:
		return nil, fmt.Errorf("%w: unknown grid type %q", ErrInvalidGridConfig, gridType)
	}

	// Pin the bounds so float accumulation never pushes them outside the range.
	levels[0] = lower
	levels[count] = upper
	return levels, nil
}

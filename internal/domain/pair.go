package domain

import "time"

// PairStatus is the lifecycle of one trading pair inside the portfolio.
type PairStatus string

const (
	PairStopped PairStatus = "stopped"
	PairRunning PairStatus = "running"
	PairPaused  PairStatus = "paused"
	PairError   PairStatus = "error"
)

// Trade records one executed fill. RealizedPnl is non-zero only on sells
// (buy fills open inventory, sells close a grid round trip).
type Trade struct {
	ID          string
	OrderID     string
	Symbol      string
	Side        Side
	Price       float64
	Quantity    float64
	GridLevel   int
	RealizedPnl float64
	ExecutedAt  time.Time
}

// PairState is the per-symbol aggregate owned by the portfolio. It is
// mutated only through the grid ledger's operations; readers get copies.
type PairState struct {
	Symbol        string
	Status        PairStatus
	PauseReason   string
	CurrentPrice  float64
	Levels        []GridLevel
	PositionSize  float64
	PositionValue float64
	AvgEntryPrice float64
	RealizedPnl   float64
	UnrealizedPnl float64
	TradesCount   int
	OpenOrders    int
}

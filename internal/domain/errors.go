package domain

import "errors"

// Sentinel errors for the trading core. Callers match with errors.Is; the
// fill/risk loop never propagates these as fatal.
var (
	// ErrInvalidGridConfig rejects bad grid bounds or counts at setup time.
	// Fatal to that pair's configuration, never to the portfolio.
	ErrInvalidGridConfig = errors.New("invalid grid config")

	// ErrBelowMinNotional rejects an order whose price*quantity is under the
	// instrument's minimum. Non-fatal, logged at placement time.
	ErrBelowMinNotional = errors.New("order below min notional")

	// ErrInsufficientBalance means free funds could not cover a reservation.
	// The order is still created so the level lifecycle stays consistent.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientData means a statistic has too few samples. Callers
	// degrade to a neutral value instead of failing the tick.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrFeedDisconnected is raised when a price feed exhausts its reconnect
	// attempts. The affected pair pauses; the process keeps running.
	ErrFeedDisconnected = errors.New("price feed disconnected")
)

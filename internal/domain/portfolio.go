package domain

import "time"

// PortfolioStatus is the top-level lifecycle.
type PortfolioStatus string

const (
	PortfolioStopped     PortfolioStatus = "stopped"
	PortfolioStarting    PortfolioStatus = "starting"
	PortfolioRunning     PortfolioStatus = "running"
	PortfolioPaused      PortfolioStatus = "paused"
	PortfolioRebalancing PortfolioStatus = "rebalancing"
	PortfolioStopping    PortfolioStatus = "stopping"
	PortfolioError       PortfolioStatus = "error"
)

// AlertLevel classifies outbound alerts.
type AlertLevel string

const (
	AlertCritical AlertLevel = "CRITICAL"
	AlertWarning  AlertLevel = "WARNING"
	AlertInfo     AlertLevel = "INFO"
	AlertSuccess  AlertLevel = "SUCCESS"
)

// RiskMetrics is the aggregate view the risk controller recomputes each tick.
type RiskMetrics struct {
	TotalValue        float64
	Exposure          float64
	DailyPnl          float64
	DailyPnlPct       float64
	Drawdown          float64 // peak-to-current decline in currency
	DrawdownPct       float64
	Volatility        float64 // annualized portfolio volatility
	Sharpe            float64
	VaR95             float64 // 95% one-period value at risk, in currency
	Diversification   float64
	ConsecutiveLosses int
	OpenOrders        int
	UpdatedAt         time.Time
}

// RiskEvent is an operator-visible risk transition persisted as a durable
// record: a breach, a pause, a resume, or a feed loss.
type RiskEvent struct {
	Type    string
	Symbol  string // empty for portfolio-wide events
	Reason  string
	Level   AlertLevel
	Metrics RiskMetrics
	At      time.Time
}

// PricePoint is one stored price sample.
type PricePoint struct {
	Symbol string
	Price  float64
	At     time.Time
}

// PortfolioSnapshot is the immutable view handed to readers (reporting,
// persistence). Writers never share internal state directly.
type PortfolioSnapshot struct {
	Status           PortfolioStatus
	PauseReason      string
	TotalCapital     float64
	AvailableCapital float64
	AllocatedCapital float64
	Pairs            []PairState
	Risk             RiskMetrics
	Symbols          []string
	Correlations     [][]float64 // aligned with Symbols, diagonal 1.0
	TakenAt          time.Time
}

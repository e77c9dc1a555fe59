package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/gridbot/internal/application/correlation"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

const (
	// maxEquityHistory bounds the portfolio return series used for
	// volatility, Sharpe and VaR.
	maxEquityHistory = 500

	// minVolSamples before the volatility-spike breaker arms itself.
	minVolSamples = 20
)

// View is the read-only portfolio state the controller evaluates each tick.
type View struct {
	Equity            float64 // total portfolio value in quote terms
	Exposure          float64 // sum of position values
	FreeCash          float64
	TotalCapital      float64
	Symbols           []string
	OpenOrdersPerPair map[string]int
	Paused            bool
}

// Decision is the controller's verdict for one tick. At most one of Pause
// and Resume is set; Reason is non-empty whenever Pause is.
type Decision struct {
	Pause   bool
	Resume  bool
	Reason  string
	Metrics domain.RiskMetrics
}

// Controller aggregates per-pair state into portfolio risk metrics and
// enforces one tier's limits. All computations degrade to neutral values on
// missing data; risk evaluation must never halt the trading loop.
type Controller struct {
	limits     Limits
	corr       *correlation.Engine
	store      ports.Store
	alerter    ports.Alerter
	autoResume bool
	now        func() time.Time

	dayStart          time.Time
	dailyPnl          float64
	consecutiveLosses int

	peakEquity    float64
	equityHistory []float64
	volHistory    []float64
	lastMetrics   domain.RiskMetrics
}

// NewController builds a controller for one tier's limits. store and
// alerter may be nil (events are then only logged).
func NewController(limits Limits, corr *correlation.Engine, store ports.Store, alerter ports.Alerter, autoResume bool) *Controller {
	c := &Controller{
		limits:     limits,
		corr:       corr,
		store:      store,
		alerter:    alerter,
		autoResume: autoResume,
		now:        time.Now,
	}
	c.dayStart = localMidnight(c.now())
	return c
}

// SetClock overrides the controller's clock, for tests.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// Limits returns the active limit set.
func (c *Controller) Limits() Limits { return c.limits }

// LastMetrics returns the metrics from the most recent evaluation. Reads
// must not trigger a fresh evaluation; those belong to the event loop.
func (c *Controller) LastMetrics() domain.RiskMetrics { return c.lastMetrics }

// RecordFill folds one executed trade into the daily P&L and the
// consecutive-loss streak. Buys carry no realized P&L and leave the streak
// untouched; only closed round trips count.
func (c *Controller) RecordFill(t domain.Trade) {
	c.rollDay(t.ExecutedAt)

	if t.Side != domain.SideSell {
		return
	}
	c.dailyPnl += t.RealizedPnl
	switch {
	case t.RealizedPnl < 0:
		c.consecutiveLosses++
	case t.RealizedPnl > 0:
		c.consecutiveLosses = 0
	}
}

// Evaluate recomputes aggregate metrics and walks the circuit breakers in
// priority order: daily loss → drawdown → consecutive losses → volatility
// spike → correlation/diversification. Evaluation stops at the first
// breach; breaches are not combined. A triggered breach is persisted as a
// risk event and alerted, both best-effort.
func (c *Controller) Evaluate(ctx context.Context, view View) Decision {
	now := c.now()
	c.rollDay(now)
	c.observeEquity(view.Equity)

	metrics := c.metrics(view, now)
	c.lastMetrics = metrics

	if reason := c.firstBreach(view, metrics); reason != "" {
		if !view.Paused {
			c.emitEvent(ctx, domain.RiskEvent{
				Type:    "circuit_breaker",
				Reason:  reason,
				Level:   domain.AlertCritical,
				Metrics: metrics,
				At:      now,
			})
		}
		return Decision{Pause: true, Reason: reason, Metrics: metrics}
	}

	if view.Paused && c.autoResume {
		c.emitEvent(ctx, domain.RiskEvent{
			Type:    "resume",
			Reason:  "no breach condition holds",
			Level:   domain.AlertSuccess,
			Metrics: metrics,
			At:      now,
		})
		return Decision{Resume: true, Metrics: metrics}
	}

	return Decision{Metrics: metrics}
}

// WouldHurtDiversification rejects a proposed pair whose correlation with
// any existing pair exceeds the tier's maximum. Pairs without sufficient
// data never block.
func (c *Controller) WouldHurtDiversification(candidate string, existing []string) (bool, string) {
	for _, sym := range existing {
		if sym == candidate {
			continue
		}
		rho, err := c.corr.Correlation(candidate, sym)
		if err != nil {
			continue
		}
		if math.Abs(rho) > c.limits.MaxCorrelation {
			return true, fmt.Sprintf("correlation %.2f with %s exceeds max %.2f", rho, sym, c.limits.MaxCorrelation)
		}
	}
	return false, ""
}

// firstBreach returns the first tripped breaker's reason, or "".
func (c *Controller) firstBreach(view View, m domain.RiskMetrics) string {
	if c.limits.MaxDailyLoss > 0 && c.dailyPnl <= -c.limits.MaxDailyLoss {
		return fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -c.dailyPnl, c.limits.MaxDailyLoss)
	}
	if c.limits.MaxDailyLossPct > 0 && view.TotalCapital > 0 {
		lossPct := -c.dailyPnl / view.TotalCapital * 100
		if lossPct >= c.limits.MaxDailyLossPct {
			return fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%", lossPct, c.limits.MaxDailyLossPct)
		}
	}

	if c.limits.MaxDrawdownPct > 0 && m.DrawdownPct >= c.limits.MaxDrawdownPct {
		return fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", m.DrawdownPct, c.limits.MaxDrawdownPct)
	}

	if n := c.limits.PauseOnConsecutiveLosses; n > 0 && c.consecutiveLosses >= n {
		return fmt.Sprintf("%d consecutive losing trades reached pause threshold %d", c.consecutiveLosses, n)
	}

	if mult := c.limits.VolatilitySpikeMult; mult > 0 && len(c.volHistory) >= minVolSamples {
		avg := domain.Mean(c.volHistory)
		if avg > 0 && m.Volatility > mult*avg {
			return fmt.Sprintf("volatility %.4f spiked above %.1fx trailing average %.4f", m.Volatility, mult, avg)
		}
	}

	if len(view.Symbols) >= 2 {
		if maxRho, pair := c.maxPairwiseCorrelation(view.Symbols); maxRho > c.limits.MaxCorrelation {
			return fmt.Sprintf("correlation %.2f (%s) exceeds max %.2f", maxRho, pair, c.limits.MaxCorrelation)
		}
		if div := c.corr.DiversificationScore(view.Symbols); div < c.limits.MinDiversification {
			return fmt.Sprintf("diversification %.2f below minimum %.2f", div, c.limits.MinDiversification)
		}
	}

	return ""
}

// metrics assembles the aggregate risk metrics for this tick. Failed or
// under-sampled statistics yield zero values, never errors.
func (c *Controller) metrics(view View, now time.Time) domain.RiskMetrics {
	m := domain.RiskMetrics{
		TotalValue:        view.Equity,
		Exposure:          view.Exposure,
		DailyPnl:          c.dailyPnl,
		ConsecutiveLosses: c.consecutiveLosses,
		Diversification:   c.corr.DiversificationScore(view.Symbols),
		UpdatedAt:         now,
	}
	if view.TotalCapital > 0 {
		m.DailyPnlPct = c.dailyPnl / view.TotalCapital * 100
	}
	for _, n := range view.OpenOrdersPerPair {
		m.OpenOrders += n
	}

	if c.peakEquity > 0 {
		m.Drawdown = c.peakEquity - view.Equity
		if m.Drawdown < 0 {
			m.Drawdown = 0
		}
		m.DrawdownPct = m.Drawdown / c.peakEquity * 100
	}

	returns := c.equityReturns()
	if len(returns) >= 2 {
		std := domain.SampleStdDev(returns)
		m.Volatility = std
		if std > 0 {
			m.Sharpe = domain.Mean(returns) / std * math.Sqrt(365)
		}

		sorted := append([]float64(nil), returns...)
		sort.Float64s(sorted)
		if q := domain.Percentile(sorted, 0.05); q < 0 {
			m.VaR95 = -q * view.Equity
		}

		c.volHistory = append(c.volHistory, std)
		if len(c.volHistory) > maxEquityHistory {
			c.volHistory = c.volHistory[len(c.volHistory)-maxEquityHistory:]
		}
	}

	return m
}

func (c *Controller) maxPairwiseCorrelation(symbols []string) (float64, string) {
	var maxRho float64
	var pair string
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			rho, err := c.corr.Correlation(symbols[i], symbols[j])
			if err != nil {
				continue
			}
			if abs := math.Abs(rho); abs > maxRho {
				maxRho = abs
				pair = symbols[i] + "/" + symbols[j]
			}
		}
	}
	return maxRho, pair
}

// observeEquity tracks the equity curve and its peak.
func (c *Controller) observeEquity(equity float64) {
	if equity <= 0 {
		return
	}
	if equity > c.peakEquity {
		c.peakEquity = equity
	}
	c.equityHistory = append(c.equityHistory, equity)
	if len(c.equityHistory) > maxEquityHistory {
		c.equityHistory = c.equityHistory[len(c.equityHistory)-maxEquityHistory:]
	}
}

func (c *Controller) equityReturns() []float64 {
	if len(c.equityHistory) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(c.equityHistory)-1)
	for i := 1; i < len(c.equityHistory); i++ {
		prev := c.equityHistory[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, c.equityHistory[i]/prev-1)
	}
	return returns
}

// rollDay resets daily metrics when the local trading day changes.
func (c *Controller) rollDay(now time.Time) {
	midnight := localMidnight(now)
	if midnight.After(c.dayStart) {
		c.dayStart = midnight
		c.dailyPnl = 0
		slog.Info("risk: daily metrics reset", "day", midnight.Format("2006-01-02"))
	}
}

// emitEvent persists and alerts a risk event; both sinks are best-effort.
func (c *Controller) emitEvent(ctx context.Context, e domain.RiskEvent) {
	slog.Warn("risk: event",
		"type", e.Type,
		"reason", e.Reason,
		"level", e.Level,
		"daily_pnl", e.Metrics.DailyPnl,
		"drawdown_pct", e.Metrics.DrawdownPct,
	)
	if c.store != nil {
		if err := c.store.LogRiskEvent(ctx, e); err != nil {
			slog.Warn("risk: error persisting event", "err", err)
		}
	}
	if c.alerter != nil {
		meta := map[string]string{
			"daily_pnl":    fmt.Sprintf("%.2f", e.Metrics.DailyPnl),
			"drawdown_pct": fmt.Sprintf("%.2f", e.Metrics.DrawdownPct),
		}
		if err := c.alerter.Alert(ctx, e.Level, "Risk "+e.Type, e.Reason, meta); err != nil {
			slog.Warn("risk: error delivering alert", "err", err)
		}
	}
}

func localMidnight(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

package risk_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/gridbot/internal/application/correlation"
	"github.com/alejandrodnm/gridbot/internal/application/risk"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sellTrade(pnl float64, at time.Time) domain.Trade {
	return domain.Trade{
		Symbol:      "BTCUSDT",
		Side:        domain.SideSell,
		Price:       42000,
		Quantity:    0.01,
		RealizedPnl: pnl,
		ExecutedAt:  at,
	}
}

func singlePairView(equity float64) risk.View {
	return risk.View{
		Equity:            equity,
		TotalCapital:      10000,
		Symbols:           []string{"BTCUSDT"},
		OpenOrdersPerPair: map[string]int{"BTCUSDT": 5},
	}
}

func TestLimitsForTier_Ordering(t *testing.T) {
	conservative := risk.LimitsForTier(risk.TierConservative)
	moderate := risk.LimitsForTier(risk.TierModerate)
	aggressive := risk.LimitsForTier(risk.TierAggressive)

	assert.Less(t, conservative.MaxDailyLoss, moderate.MaxDailyLoss)
	assert.Less(t, moderate.MaxDailyLoss, aggressive.MaxDailyLoss)
	assert.Less(t, conservative.MaxDrawdownPct, aggressive.MaxDrawdownPct)
	assert.Less(t, conservative.MaxCorrelation, aggressive.MaxCorrelation)
	assert.Greater(t, conservative.MinDiversification, aggressive.MinDiversification)
	assert.Less(t, conservative.PauseOnConsecutiveLosses, aggressive.PauseOnConsecutiveLosses)

	// Unknown tiers fall back to moderate
	assert.Equal(t, moderate, risk.LimitsForTier(risk.Tier("reckless")))
}

func TestController_ConsecutiveLossesPause(t *testing.T) {
	limits := risk.LimitsForTier(risk.TierModerate)
	c := risk.NewController(limits, correlation.NewEngine(), nil, nil, false)

	now := time.Now()
	for i := 0; i < limits.PauseOnConsecutiveLosses; i++ {
		c.RecordFill(sellTrade(-10, now))
	}

	decision := c.Evaluate(context.Background(), singlePairView(10000))
	assert.True(t, decision.Pause)
	assert.NotEmpty(t, decision.Reason)
	assert.Contains(t, decision.Reason, "consecutive")
	assert.Equal(t, limits.PauseOnConsecutiveLosses, decision.Metrics.ConsecutiveLosses)
}

func TestController_WinResetsLossStreak(t *testing.T) {
	limits := risk.LimitsForTier(risk.TierModerate)
	c := risk.NewController(limits, correlation.NewEngine(), nil, nil, false)

	now := time.Now()
	for i := 0; i < limits.PauseOnConsecutiveLosses-1; i++ {
		c.RecordFill(sellTrade(-10, now))
	}
	c.RecordFill(sellTrade(5, now))

	decision := c.Evaluate(context.Background(), singlePairView(10000))
	assert.False(t, decision.Pause)
	assert.Zero(t, decision.Metrics.ConsecutiveLosses)
}

func TestController_BuysDoNotTouchStreak(t *testing.T) {
	limits := risk.LimitsForTier(risk.TierModerate)
	c := risk.NewController(limits, correlation.NewEngine(), nil, nil, false)

	now := time.Now()
	c.RecordFill(sellTrade(-10, now))
	for i := 0; i < 10; i++ {
		c.RecordFill(domain.Trade{Side: domain.SideBuy, ExecutedAt: now})
	}

	decision := c.Evaluate(context.Background(), singlePairView(10000))
	assert.Equal(t, 1, decision.Metrics.ConsecutiveLosses)
}

func TestController_DailyLossBeforeConsecutiveLosses(t *testing.T) {
	limits := risk.LimitsForTier(risk.TierModerate)
	c := risk.NewController(limits, correlation.NewEngine(), nil, nil, false)

	// Six losses that also blow the daily dollar limit: the breaker walk
	// must report the daily loss, not the streak
	now := time.Now()
	for i := 0; i < 6; i++ {
		c.RecordFill(sellTrade(-60, now))
	}

	decision := c.Evaluate(context.Background(), singlePairView(10000))
	require.True(t, decision.Pause)
	assert.Contains(t, decision.Reason, "daily loss")
}

func TestController_DrawdownPause(t *testing.T) {
	limits := risk.LimitsForTier(risk.TierModerate)
	c := risk.NewController(limits, correlation.NewEngine(), nil, nil, false)

	decision := c.Evaluate(context.Background(), singlePairView(10000))
	assert.False(t, decision.Pause)

	// Equity falls 20% off the peak, over the moderate 15% limit
	decision = c.Evaluate(context.Background(), singlePairView(8000))
	require.True(t, decision.Pause)
	assert.Contains(t, decision.Reason, "drawdown")
	assert.InDelta(t, 20, decision.Metrics.DrawdownPct, 1e-9)
}

func TestController_NoResumeWithoutAutoResume(t *testing.T) {
	c := risk.NewController(risk.LimitsForTier(risk.TierModerate), correlation.NewEngine(), nil, nil, false)

	view := singlePairView(10000)
	view.Paused = true
	decision := c.Evaluate(context.Background(), view)
	assert.False(t, decision.Pause)
	assert.False(t, decision.Resume)
}

func TestController_AutoResumeWhenClear(t *testing.T) {
	c := risk.NewController(risk.LimitsForTier(risk.TierModerate), correlation.NewEngine(), nil, nil, true)

	view := singlePairView(10000)
	view.Paused = true
	decision := c.Evaluate(context.Background(), view)
	assert.True(t, decision.Resume)
	assert.False(t, decision.Pause)
}

func TestController_DailyRollover(t *testing.T) {
	c := risk.NewController(risk.LimitsForTier(risk.TierModerate), correlation.NewEngine(), nil, nil, false)

	// The day anchor is set from the real clock at construction, so the
	// fake clock starts on the real today and advances from there
	y, m, d := time.Now().Local().Date()
	day1 := time.Date(y, m, d, 15, 0, 0, 0, time.Local)
	c.SetClock(func() time.Time { return day1 })

	// Blow the daily limit on day one
	for i := 0; i < 5; i++ {
		c.RecordFill(sellTrade(-60, day1))
	}
	decision := c.Evaluate(context.Background(), singlePairView(10000))
	require.True(t, decision.Pause)

	// Next day the daily counter resets; only the streak remains, and five
	// losses still hold it paused, so clear the streak with a winner first
	day2 := day1.Add(24 * time.Hour)
	c.SetClock(func() time.Time { return day2 })
	c.RecordFill(sellTrade(5, day2))

	decision = c.Evaluate(context.Background(), singlePairView(10000))
	assert.False(t, decision.Pause)
	// Yesterday's losses are gone; only the day-two winner remains
	assert.InDelta(t, 5, decision.Metrics.DailyPnl, 1e-9)
}

func TestController_CorrelatedPortfolioPauses(t *testing.T) {
	corr := correlation.NewEngine()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a, b := 42000.0, 2500.0
	for i := 0; i < 30; i++ {
		step := 0.01 * math.Sin(float64(i))
		a *= 1 + step
		b *= 1 + step
		corr.RecordSample("BTCUSDT", a, ts)
		corr.RecordSample("ETHUSDT", b, ts)
	}

	c := risk.NewController(risk.LimitsForTier(risk.TierModerate), corr, nil, nil, false)

	view := risk.View{
		Equity:       10000,
		TotalCapital: 10000,
		Symbols:      []string{"BTCUSDT", "ETHUSDT"},
	}
	decision := c.Evaluate(context.Background(), view)
	require.True(t, decision.Pause)
	assert.Contains(t, decision.Reason, "correlation")
}

func TestController_WouldHurtDiversification(t *testing.T) {
	corr := correlation.NewEngine()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a, b := 42000.0, 2500.0
	for i := 0; i < 30; i++ {
		step := 0.01 * math.Sin(float64(i))
		a *= 1 + step
		b *= 1 + step
		corr.RecordSample("BTCUSDT", a, ts)
		corr.RecordSample("ETHUSDT", b, ts)
	}

	c := risk.NewController(risk.LimitsForTier(risk.TierModerate), corr, nil, nil, false)

	hurts, why := c.WouldHurtDiversification("ETHUSDT", []string{"BTCUSDT"})
	assert.True(t, hurts)
	assert.NotEmpty(t, why)

	// No data on the candidate: never blocks
	hurts, _ = c.WouldHurtDiversification("SOLUSDT", []string{"BTCUSDT"})
	assert.False(t, hurts)

	// The candidate itself in the existing list is skipped
	hurts, _ = c.WouldHurtDiversification("BTCUSDT", []string{"BTCUSDT"})
	assert.False(t, hurts)
}

func TestController_LastMetricsTracksEvaluate(t *testing.T) {
	c := risk.NewController(risk.LimitsForTier(risk.TierModerate), correlation.NewEngine(), nil, nil, false)

	assert.Zero(t, c.LastMetrics().TotalValue)

	c.Evaluate(context.Background(), singlePairView(12345))
	assert.InDelta(t, 12345, c.LastMetrics().TotalValue, 1e-9)
}

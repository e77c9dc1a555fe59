package risk

// Tier names a predefined limit set.
type Tier string

const (
	TierConservative Tier = "conservative"
	TierModerate     Tier = "moderate"
	TierAggressive   Tier = "aggressive"
)

// Limits is one tier's full circuit-breaker configuration.
type Limits struct {
	MaxPositionPct    float64 // max position value per pair, % of total capital
	MaxExposurePct    float64 // max total exposure, % of total capital
	MinCashReservePct float64 // minimum free cash, % of total capital

	MaxDailyLoss    float64 // currency
	MaxDailyLossPct float64 // % of total capital

	MaxDrawdownPct float64

	MaxCorrelation     float64 // max allowed |pairwise correlation|
	MinDiversification float64

	MaxOpenOrdersPerPair int
	MaxOpenOrdersTotal   int

	PauseOnConsecutiveLosses int

	// VolatilitySpikeMult pauses when current portfolio volatility exceeds
	// this multiple of its trailing average.
	VolatilitySpikeMult float64
}

// LimitsForTier returns the preset limits for a tier. Unknown tiers get
// the moderate preset.
func LimitsForTier(t Tier) Limits {
	switch t {
	case TierConservative:
		return Limits{
			MaxPositionPct:           10,
			MaxExposurePct:           50,
			MinCashReservePct:        30,
			MaxDailyLoss:             100,
			MaxDailyLossPct:          2,
			MaxDrawdownPct:           10,
			MaxCorrelation:           0.5,
			MinDiversification:       0.5,
			MaxOpenOrdersPerPair:     20,
			MaxOpenOrdersTotal:       60,
			PauseOnConsecutiveLosses: 3,
			VolatilitySpikeMult:      2,
		}
	case TierModerate:
		return Limits{
			MaxPositionPct:           20,
			MaxExposurePct:           70,
			MinCashReservePct:        20,
			MaxDailyLoss:             250,
			MaxDailyLossPct:          5,
			MaxDrawdownPct:           15,
			MaxCorrelation:           0.7,
			MinDiversification:       0.3,
			MaxOpenOrdersPerPair:     40,
			MaxOpenOrdersTotal:       120,
			PauseOnConsecutiveLosses: 5,
			VolatilitySpikeMult:      3,
		}
	case TierAggressive:
		return Limits{
			MaxPositionPct:           35,
			MaxExposurePct:           90,
			MinCashReservePct:        10,
			MaxDailyLoss:             1000,
			MaxDailyLossPct:          10,
			MaxDrawdownPct:           25,
			MaxCorrelation:           0.85,
			MinDiversification:       0.15,
			MaxOpenOrdersPerPair:     80,
			MaxOpenOrdersTotal:       300,
			PauseOnConsecutiveLosses: 8,
			VolatilitySpikeMult:      4,
		}
	default:
		return LimitsForTier(TierModerate)
	}
}

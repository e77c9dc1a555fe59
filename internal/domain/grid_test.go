package domain_test

import (
	"testing"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLevels_Arithmetic(t *testing.T) {
	levels, err := domain.BuildLevels(40000, 45000, 5, domain.GridArithmetic)
	require.NoError(t, err)
	require.Len(t, levels, 6)

	expected := []float64{40000, 41000, 42000, 43000, 44000, 45000}
	for i, want := range expected {
		assert.InDelta(t, want, levels[i], 1e-9)
	}

	// Constant spacing
	for i := 1; i < len(levels); i++ {
		assert.InDelta(t, 1000, levels[i]-levels[i-1], 1e-9)
	}
}

func TestBuildLevels_Geometric(t *testing.T) {
	levels, err := domain.BuildLevels(100, 200, 4, domain.GridGeometric)
	require.NoError(t, err)
	require.Len(t, levels, 5)

	assert.InDelta(t, 100, levels[0], 1e-9)
	assert.InDelta(t, 200, levels[4], 1e-9)

	// Constant ratio between adjacent rungs
	ratio := levels[1] / levels[0]
	for i := 2; i < len(levels); i++ {
		assert.InDelta(t, ratio, levels[i]/levels[i-1], 1e-9)
	}
}

func TestBuildLevels_StrictlyAscending(t *testing.T) {
	for _, gridType := range []domain.GridType{domain.GridArithmetic, domain.GridGeometric} {
		levels, err := domain.BuildLevels(0.5, 3.7, 17, gridType)
		require.NoError(t, err)
		require.Len(t, levels, 18)
		for i := 1; i < len(levels); i++ {
			assert.Greater(t, levels[i], levels[i-1], "type %s index %d", gridType, i)
		}
	}
}

func TestBuildLevels_Errors(t *testing.T) {
	cases := []struct {
		name     string
		lower    float64
		upper    float64
		count    int
		gridType domain.GridType
	}{
		{"zero lower", 0, 100, 5, domain.GridArithmetic},
		{"negative lower", -1, 100, 5, domain.GridArithmetic},
		{"upper below lower", 100, 50, 5, domain.GridArithmetic},
		{"upper equals lower", 100, 100, 5, domain.GridArithmetic},
		{"count too small", 100, 200, 1, domain.GridArithmetic},
		{"unknown type", 100, 200, 5, domain.GridType("fibonacci")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.BuildLevels(tc.lower, tc.upper, tc.count, tc.gridType)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidGridConfig)
		})
	}
}

func TestInstrument_Rounding(t *testing.T) {
	inst := domain.Instrument{TickSize: 0.01, StepSize: 0.001, MinNotional: 10}

	assert.InDelta(t, 42000.12, inst.RoundPrice(42000.12999), 1e-9)
	assert.InDelta(t, 0.015, inst.RoundQuantity(0.01599), 1e-9)

	// Exact multiples survive unchanged
	assert.InDelta(t, 0.29, inst.RoundPrice(0.29), 1e-12)
}

func TestInstrument_CheckNotional(t *testing.T) {
	inst := domain.Instrument{Symbol: "BTCUSDT", MinNotional: 10}

	assert.NoError(t, inst.CheckNotional(100, 0.5))

	err := inst.CheckNotional(100, 0.05)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBelowMinNotional)

	// No minimum configured: anything goes
	free := domain.Instrument{Symbol: "TEST"}
	assert.NoError(t, free.CheckNotional(0.0001, 0.0001))
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

const validYAML = `
portfolio:
  total_capital: 10000
pairs:
  - symbol: BTCUSDT
    lower_price: 40000
    upper_price: 45000
    grid_count: 5
    amount_per_grid: 0.01
    quote_balance: 3000
risk:
  tier: conservative
feed:
  mode: synthetic
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.InDelta(t, 10000, cfg.Portfolio.TotalCapital, 0.001)
	assert.Equal(t, "conservative", cfg.Risk.Tier)
	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, "BTCUSDT", cfg.Pairs[0].Symbol)
	// grid_type omitted falls back to arithmetic
	assert.Equal(t, "arithmetic", cfg.Pairs[0].GridType)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "pairs: []\n"))
	require.NoError(t, err)

	assert.InDelta(t, 10000, cfg.Portfolio.TotalCapital, 0.001)
	assert.Equal(t, 100, cfg.Portfolio.SnapshotEvery)
	assert.Equal(t, "moderate", cfg.Risk.Tier)
	assert.Equal(t, "synthetic", cfg.Feed.Mode)
	assert.Equal(t, "gridbot.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.Minute, cfg.ReportInterval())
	assert.Equal(t, time.Second, cfg.SyntheticTick())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GRIDBOT_DSN", ":memory:")
	t.Setenv("GRIDBOT_FEED_MODE", "binance")

	cfg, err := config.Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "binance", cfg.Feed.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad feed mode",
			yaml: "feed:\n  mode: carrier-pigeon\n",
			want: "feed mode",
		},
		{
			name: "bad tier",
			yaml: "risk:\n  tier: yolo\n",
			want: "risk tier",
		},
		{
			name: "inverted band",
			yaml: "pairs:\n  - symbol: BTCUSDT\n    lower_price: 45000\n    upper_price: 40000\n    grid_count: 5\n",
			want: "upper_price",
		},
		{
			name: "grid too small",
			yaml: "pairs:\n  - symbol: BTCUSDT\n    lower_price: 40000\n    upper_price: 45000\n    grid_count: 1\n",
			want: "grid_count",
		},
		{
			name: "over-allocated",
			yaml: "portfolio:\n  total_capital: 1000\npairs:\n  - symbol: BTCUSDT\n    lower_price: 40000\n    upper_price: 45000\n    grid_count: 5\n    quote_balance: 5000\n",
			want: "capital",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

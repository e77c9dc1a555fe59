package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration.
type Config struct {
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Pairs     []PairConfig    `yaml:"pairs"`
	Risk      RiskConfig      `yaml:"risk"`
	Feed      FeedConfig      `yaml:"feed"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// PortfolioConfig controls capital and reporting cadence.
type PortfolioConfig struct {
	TotalCapital  float64 `yaml:"total_capital"`
	SnapshotEvery int     `yaml:"snapshot_every"` // ticks between persisted snapshots
	ReportSeconds int     `yaml:"report_seconds"` // console portfolio report interval
	AutoResume    bool    `yaml:"auto_resume"`    // resume when no breaker holds
}

// PairConfig describes one grid ladder.
type PairConfig struct {
	Symbol        string  `yaml:"symbol"`
	LowerPrice    float64 `yaml:"lower_price"`
	UpperPrice    float64 `yaml:"upper_price"`
	GridCount     int     `yaml:"grid_count"`
	GridType      string  `yaml:"grid_type"` // arithmetic | geometric
	AmountPerGrid float64 `yaml:"amount_per_grid"`
	BaseBalance   float64 `yaml:"base_balance"`
	QuoteBalance  float64 `yaml:"quote_balance"`
}

// RiskConfig selects the tier preset.
type RiskConfig struct {
	Tier string `yaml:"tier"` // conservative | moderate | aggressive
}

// FeedConfig selects the price source.
type FeedConfig struct {
	Mode      string  `yaml:"mode"`       // binance | synthetic
	StreamURL string  `yaml:"stream_url"` // websocket endpoint; empty = production
	RESTBase  string  `yaml:"rest_base"`  // exchangeInfo endpoint; empty = production
	TickMs    int     `yaml:"tick_ms"`    // synthetic: interval between ticks
	StepPct   float64 `yaml:"step_pct"`   // synthetic: max per-tick move
	Seed      int64   `yaml:"seed"`       // synthetic: RNG seed, 0 = clock
}

// StorageConfig controls persistence.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// NotifyConfig controls alert delivery.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"` // Discord-compatible; empty disables
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file plus a .env if present. Environment variables
// override the YAML for the keys they cover.
func Load(path string) (*Config, error) {
	// Load .env when present (missing file is not an error)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// ReportInterval returns the console report cadence as a time.Duration.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Portfolio.ReportSeconds) * time.Second
}

// SyntheticTick returns the synthetic feed tick interval.
func (c *Config) SyntheticTick() time.Duration {
	return time.Duration(c.Feed.TickMs) * time.Millisecond
}

// applyEnvOverrides lets the environment win for operational knobs.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GRIDBOT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("GRIDBOT_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("GRIDBOT_FEED_MODE"); v != "" {
		cfg.Feed.Mode = v
	}
}

// setDefaults fills required values with sensible ones.
func setDefaults(cfg *Config) {
	if cfg.Portfolio.TotalCapital <= 0 {
		cfg.Portfolio.TotalCapital = 10000
	}
	if cfg.Portfolio.SnapshotEvery <= 0 {
		cfg.Portfolio.SnapshotEvery = 100
	}
	if cfg.Portfolio.ReportSeconds <= 0 {
		cfg.Portfolio.ReportSeconds = 60
	}
	if cfg.Risk.Tier == "" {
		cfg.Risk.Tier = "moderate"
	}
	if cfg.Feed.Mode == "" {
		cfg.Feed.Mode = "synthetic"
	}
	if cfg.Feed.TickMs <= 0 {
		cfg.Feed.TickMs = 1000
	}
	if cfg.Feed.StepPct <= 0 {
		cfg.Feed.StepPct = 0.002
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gridbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	for i := range cfg.Pairs {
		if cfg.Pairs[i].GridType == "" {
			cfg.Pairs[i].GridType = "arithmetic"
		}
	}
}

// validate rejects configs that cannot possibly run.
func validate(cfg *Config) error {
	switch cfg.Feed.Mode {
	case "binance", "synthetic":
	default:
		return fmt.Errorf("unknown feed mode %q", cfg.Feed.Mode)
	}
	switch cfg.Risk.Tier {
	case "conservative", "moderate", "aggressive":
	default:
		return fmt.Errorf("unknown risk tier %q", cfg.Risk.Tier)
	}

	var allocated float64
	for _, p := range cfg.Pairs {
		if p.Symbol == "" {
			return fmt.Errorf("pair with empty symbol")
		}
		if p.UpperPrice <= p.LowerPrice {
			return fmt.Errorf("pair %s: upper_price must exceed lower_price", p.Symbol)
		}
		if p.GridCount < 2 {
			return fmt.Errorf("pair %s: grid_count must be at least 2", p.Symbol)
		}
		switch p.GridType {
		case "arithmetic", "geometric":
		default:
			return fmt.Errorf("pair %s: unknown grid_type %q", p.Symbol, p.GridType)
		}
		allocated += p.QuoteBalance
	}
	if allocated > cfg.Portfolio.TotalCapital {
		return fmt.Errorf("pairs allocate %.2f quote, capital is %.2f", allocated, cfg.Portfolio.TotalCapital)
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/gridbot/config"
	"github.com/alejandrodnm/gridbot/internal/adapters/binance"
	"github.com/alejandrodnm/gridbot/internal/adapters/feed"
	"github.com/alejandrodnm/gridbot/internal/adapters/notify"
	"github.com/alejandrodnm/gridbot/internal/adapters/storage"
	"github.com/alejandrodnm/gridbot/internal/application/correlation"
	"github.com/alejandrodnm/gridbot/internal/application/grid"
	"github.com/alejandrodnm/gridbot/internal/application/portfolio"
	"github.com/alejandrodnm/gridbot/internal/application/risk"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	synthetic := flag.Bool("synthetic", false, "force the synthetic feed (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *synthetic {
		cfg.Feed.Mode = "synthetic"
	}
	setupLogger(cfg.Log)

	slog.Info("gridbot starting",
		"config", *configPath,
		"pairs", len(cfg.Pairs),
		"capital", cfg.Portfolio.TotalCapital,
		"tier", cfg.Risk.Tier,
		"feed", cfg.Feed.Mode,
	)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole()
	alerter := ports.Alerter(console)
	if cfg.Notify.WebhookURL != "" {
		alerter = notify.NewMulti(console, notify.NewWebhook(cfg.Notify.WebhookURL, 0))
	}

	source, instruments := buildFeed(cfg)
	defer source.Close()

	corr := correlation.NewEngine()
	riskCtl := risk.NewController(risk.LimitsForTier(risk.Tier(cfg.Risk.Tier)), corr, store, alerter, cfg.Portfolio.AutoResume)

	pf := portfolio.New(portfolio.Config{
		TotalCapital:  cfg.Portfolio.TotalCapital,
		AutoResume:    cfg.Portfolio.AutoResume,
		SnapshotEvery: cfg.Portfolio.SnapshotEvery,
	}, source, store, alerter, instruments, corr, riskCtl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	warmCorrelations(ctx, store, corr, cfg.Pairs)

	for _, pair := range cfg.Pairs {
		gridCfg := grid.Config{
			Symbol:        pair.Symbol,
			Lower:         pair.LowerPrice,
			Upper:         pair.UpperPrice,
			Count:         pair.GridCount,
			Type:          domain.GridType(pair.GridType),
			AmountPerGrid: pair.AmountPerGrid,
			BaseBalance:   pair.BaseBalance,
			QuoteBalance:  pair.QuoteBalance,
		}
		if err := pf.AddPair(ctx, gridCfg); err != nil {
			slog.Error("failed to add pair", "symbol", pair.Symbol, "err", err)
			os.Exit(1)
		}
	}

	go reportLoop(ctx, console, pf, cfg.ReportInterval())

	if err := pf.Run(ctx); err != nil {
		slog.Error("portfolio exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("gridbot stopped cleanly")
}

// buildFeed wires the configured price source and the matching instrument
// provider. The synthetic feed pairs with config-sourced filters; the live
// feed pulls them from the exchange.
func buildFeed(cfg *config.Config) (ports.PriceSource, ports.InstrumentProvider) {
	if cfg.Feed.Mode == "binance" {
		return feed.NewBinance(cfg.Feed.StreamURL), binance.NewInstruments(cfg.Feed.RESTBase)
	}

	starts := make(map[string]float64, len(cfg.Pairs))
	instruments := make([]domain.Instrument, 0, len(cfg.Pairs))
	for _, pair := range cfg.Pairs {
		starts[pair.Symbol] = (pair.LowerPrice + pair.UpperPrice) / 2
		instruments = append(instruments, domain.Instrument{
			Symbol:      pair.Symbol,
			TickSize:    0.01,
			StepSize:    0.000001,
			MinNotional: 10,
		})
	}
	source := feed.NewSynthetic(feed.SyntheticConfig{
		Interval:    cfg.SyntheticTick(),
		StepPct:     cfg.Feed.StepPct,
		StartPrices: starts,
		Seed:        cfg.Feed.Seed,
	})
	return source, binance.NewStatic(instruments)
}

// warmCorrelations replays persisted prices so correlation gating works
// from the first tick after a restart.
func warmCorrelations(ctx context.Context, store *storage.SQLiteStore, corr *correlation.Engine, pairs []config.PairConfig) {
	for _, pair := range pairs {
		points, err := store.GetPriceHistory(ctx, pair.Symbol, 500)
		if err != nil {
			slog.Warn("failed to load price history", "symbol", pair.Symbol, "err", err)
			continue
		}
		for _, p := range points {
			corr.RecordSample(p.Symbol, p.Price, p.At)
		}
		if len(points) > 0 {
			slog.Info("correlation warm-up", "symbol", pair.Symbol, "samples", len(points))
		}
	}
}

// reportLoop prints the portfolio table at the configured cadence.
func reportLoop(ctx context.Context, console *notify.Console, pf *portfolio.Portfolio, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			console.PrintPortfolio(pf.Snapshot())
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

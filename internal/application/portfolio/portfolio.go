package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/gridbot/internal/application/correlation"
	"github.com/alejandrodnm/gridbot/internal/application/grid"
	"github.com/alejandrodnm/gridbot/internal/application/risk"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

// Config holds portfolio-level settings.
type Config struct {
	TotalCapital float64
	AutoResume   bool
	// SnapshotEvery persists a portfolio snapshot every N processed ticks.
	// 0 disables periodic snapshots.
	SnapshotEvery int
}

// Portfolio owns all pair ledgers and runs the single event loop: price
// events are delivered serially and each one is processed to completion
// (fills → balances → correlation → risk) before the next is accepted.
// Pairs are otherwise independent; nothing outside the loop goroutine
// mutates ledger state.
type Portfolio struct {
	cfg         Config
	feed        ports.PriceSource
	store       ports.Store
	alerter     ports.Alerter
	instruments ports.InstrumentProvider
	corr        *correlation.Engine
	risk        *risk.Controller

	mu               sync.RWMutex
	ledgers          map[string]*grid.Ledger
	status           domain.PortfolioStatus
	pauseReason      string
	availableCapital float64
	allocatedCapital float64
	allocation       map[string]float64
	ticksProcessed   int
}

// New wires a portfolio from its collaborators. store and alerter may be
// nil; persistence and alerting then degrade to log-only.
func New(
	cfg Config,
	feed ports.PriceSource,
	store ports.Store,
	alerter ports.Alerter,
	instruments ports.InstrumentProvider,
	corr *correlation.Engine,
	riskCtl *risk.Controller,
) *Portfolio {
	return &Portfolio{
		cfg:              cfg,
		feed:             feed,
		store:            store,
		alerter:          alerter,
		instruments:      instruments,
		corr:             corr,
		risk:             riskCtl,
		ledgers:          make(map[string]*grid.Ledger),
		status:           domain.PortfolioStopped,
		availableCapital: cfg.TotalCapital,
		allocation:       make(map[string]float64),
	}
}

// AddPair configures a new grid ladder, reserves its capital and subscribes
// its symbol on the feed. Rejected when the candidate's correlation with an
// existing pair exceeds the tier's maximum, when capital is short, or when
// the grid config is invalid. All are fatal to this pair only.
func (p *Portfolio) AddPair(ctx context.Context, cfg grid.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.ledgers[cfg.Symbol]; exists {
		return fmt.Errorf("portfolio.AddPair: %s already configured", cfg.Symbol)
	}

	if hurts, why := p.risk.WouldHurtDiversification(cfg.Symbol, p.symbolsLocked()); hurts {
		return fmt.Errorf("portfolio.AddPair: %s would hurt diversification: %s", cfg.Symbol, why)
	}

	capital := cfg.QuoteBalance
	if capital > p.availableCapital {
		return fmt.Errorf("portfolio.AddPair: %s needs %.2f quote capital, %.2f available",
			cfg.Symbol, capital, p.availableCapital)
	}

	limits := p.risk.Limits()
	if pct := limits.MaxPositionPct; pct > 0 && capital > pct/100*p.cfg.TotalCapital {
		return fmt.Errorf("portfolio.AddPair: %s capital %.2f exceeds %.0f%% position limit of %.2f",
			cfg.Symbol, capital, pct, p.cfg.TotalCapital)
	}
	if pct := limits.MaxExposurePct; pct > 0 && p.allocatedCapital+capital > pct/100*p.cfg.TotalCapital {
		return fmt.Errorf("portfolio.AddPair: %s would push allocation past %.0f%% exposure limit", cfg.Symbol, pct)
	}
	if pct := limits.MinCashReservePct; pct > 0 && p.availableCapital-capital < pct/100*p.cfg.TotalCapital {
		return fmt.Errorf("portfolio.AddPair: %s would leave less than the %.0f%% cash reserve", cfg.Symbol, pct)
	}

	inst, err := p.instruments.Instrument(ctx, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("portfolio.AddPair: %s: instrument metadata: %w", cfg.Symbol, err)
	}

	ledger, err := grid.NewLedger(cfg, inst)
	if err != nil {
		return fmt.Errorf("portfolio.AddPair: %w", err)
	}

	if limit := limits.MaxOpenOrdersPerPair; limit > 0 && cfg.Count > limit {
		return fmt.Errorf("portfolio.AddPair: %s: %d grid orders exceed per-pair limit %d",
			cfg.Symbol, cfg.Count, limit)
	}
	if limit := limits.MaxOpenOrdersTotal; limit > 0 {
		open := cfg.Count
		for _, ledger := range p.ledgers {
			open += ledger.OpenOrders()
		}
		if open > limit {
			return fmt.Errorf("portfolio.AddPair: %s: %d total open orders exceed limit %d",
				cfg.Symbol, open, limit)
		}
	}

	if err := p.feed.Subscribe(ctx, cfg.Symbol); err != nil {
		return fmt.Errorf("portfolio.AddPair: %s: subscribe: %w", cfg.Symbol, err)
	}

	p.ledgers[cfg.Symbol] = ledger
	p.availableCapital -= capital
	p.allocatedCapital += capital
	p.allocation[cfg.Symbol] = capital

	slog.Info("portfolio: pair added",
		"symbol", cfg.Symbol,
		"levels", cfg.Count+1,
		"capital", capital,
		"available", p.availableCapital,
	)
	return nil
}

// RemovePair cancels the pair's resting orders, releases its capital and
// destroys its grid levels.
func (p *Portfolio) RemovePair(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ledger, ok := p.ledgers[symbol]
	if !ok {
		return fmt.Errorf("portfolio.RemovePair: unknown pair %s", symbol)
	}

	ledger.Stop()
	if err := p.feed.Unsubscribe(symbol); err != nil {
		slog.Warn("portfolio: unsubscribe failed", "symbol", symbol, "err", err)
	}

	capital := p.allocation[symbol]
	p.availableCapital += capital
	p.allocatedCapital -= capital
	delete(p.allocation, symbol)
	delete(p.ledgers, symbol)

	p.persistPair(ctx, ledger)
	slog.Info("portfolio: pair removed", "symbol", symbol, "capital_released", capital)
	return nil
}

// SuggestAllocation proposes inverse-volatility capital weights for the
// current symbols. Advisory only; it does not move capital.
func (p *Portfolio) SuggestAllocation() map[string]float64 {
	p.mu.RLock()
	symbols := p.symbolsLocked()
	p.mu.RUnlock()
	return p.corr.SuggestAllocation(symbols, p.cfg.TotalCapital)
}

// Run drives the event loop until ctx is canceled or the feed closes. The
// in-flight event is always processed to completion before shutdown, so no
// order or balance is ever left partially settled.
func (p *Portfolio) Run(ctx context.Context) error {
	p.setStatus(domain.PortfolioStarting, "")
	p.setStatus(domain.PortfolioRunning, "")
	slog.Info("portfolio: running", "pairs", len(p.ledgers), "capital", p.cfg.TotalCapital)

	defer p.shutdown(context.WithoutCancel(ctx))

	events := p.feed.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return domain.ErrFeedDisconnected
			}
			p.handleEvent(ctx, ev)
		}
	}
}

// handleEvent dispatches one tagged feed event.
func (p *Portfolio) handleEvent(ctx context.Context, ev domain.FeedEvent) {
	switch e := ev.(type) {
	case domain.PriceTick:
		p.handleTick(ctx, e)
	case domain.OrderUpdate:
		p.handleOrderUpdate(ctx, e)
	case domain.ConnectionEvent:
		p.handleConnection(ctx, e)
	default:
		slog.Warn("portfolio: unknown feed event", "event", fmt.Sprintf("%T", ev))
	}
}

// handleTick is the core pipeline: grid fills, balance mutation, sample
// recording, risk evaluation. Sink failures are logged and never abort it.
func (p *Portfolio) handleTick(ctx context.Context, tick domain.PriceTick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ledger, ok := p.ledgers[tick.Symbol]
	if !ok {
		return
	}

	var trades []domain.Trade
	if !ledger.Paused() && p.status != domain.PortfolioPaused {
		trades = ledger.OnPriceTick(tick.Price, tick.Time)
	} else {
		ledger.MarkPrice(tick.Price)
	}

	for _, t := range trades {
		p.risk.RecordFill(t)
		if p.store != nil {
			if err := p.store.SaveTrade(ctx, t); err != nil {
				slog.Warn("portfolio: error saving trade", "symbol", t.Symbol, "err", err)
			}
		}
	}

	p.corr.RecordSample(tick.Symbol, tick.Price, tick.Time)
	if p.store != nil {
		if err := p.store.SavePricePoint(ctx, domain.PricePoint{Symbol: tick.Symbol, Price: tick.Price, At: tick.Time}); err != nil {
			slog.Warn("portfolio: error saving price point", "symbol", tick.Symbol, "err", err)
		}
	}

	decision := p.risk.Evaluate(ctx, p.riskViewLocked())
	switch {
	case decision.Pause && p.status == domain.PortfolioRunning:
		p.status = domain.PortfolioPaused
		p.pauseReason = decision.Reason
		slog.Warn("portfolio: paused", "reason", decision.Reason)
	case decision.Resume && p.status == domain.PortfolioPaused:
		p.status = domain.PortfolioRunning
		p.pauseReason = ""
		slog.Info("portfolio: resumed")
	}

	if len(trades) > 0 {
		p.persistPair(ctx, ledger)
	}

	p.ticksProcessed++
	if n := p.cfg.SnapshotEvery; n > 0 && p.ticksProcessed%n == 0 && p.store != nil {
		if err := p.store.SavePortfolioSnapshot(ctx, p.snapshotLocked()); err != nil {
			slog.Warn("portfolio: error saving snapshot", "err", err)
		}
	}
}

// handleOrderUpdate routes an exchange-side fill into the owning ledger.
func (p *Portfolio) handleOrderUpdate(ctx context.Context, up domain.OrderUpdate) {
	if up.Status != domain.OrderStatusFilled {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ledger, ok := p.ledgers[up.Symbol]
	if !ok {
		return
	}
	trade, err := ledger.FillOrder(up.OrderID, up.Time)
	if err != nil {
		slog.Warn("portfolio: unmatched order update", "symbol", up.Symbol, "order", up.OrderID, "err", err)
		return
	}
	p.risk.RecordFill(trade)
	if p.store != nil {
		if err := p.store.SaveTrade(ctx, trade); err != nil {
			slog.Warn("portfolio: error saving trade", "symbol", trade.Symbol, "err", err)
		}
	}
	p.persistPair(ctx, ledger)
}

// handleConnection pauses affected pairs when a feed exhausts its reconnect
// attempts; trading without a live price is never allowed. Manual restart
// (ResumePair) re-arms them.
func (p *Portfolio) handleConnection(ctx context.Context, ev domain.ConnectionEvent) {
	if ev.Up {
		slog.Info("portfolio: feed connected", "detail", ev.Detail)
		return
	}

	slog.Warn("portfolio: feed connection lost", "detail", ev.Detail, "exhausted", ev.Exhausted)
	if !ev.Exhausted {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	symbols := ev.Symbols
	if len(symbols) == 0 {
		symbols = p.symbolsLocked()
	}
	for _, sym := range symbols {
		ledger, ok := p.ledgers[sym]
		if !ok || ledger.Paused() {
			continue
		}
		reason := fmt.Sprintf("price feed disconnected: %s", ev.Detail)
		ledger.Pause(reason)
		event := domain.RiskEvent{
			Type:   "feed_disconnected",
			Symbol: sym,
			Reason: reason,
			Level:  domain.AlertCritical,
			At:     ev.Time,
		}
		if p.store != nil {
			if err := p.store.LogRiskEvent(ctx, event); err != nil {
				slog.Warn("portfolio: error persisting feed event", "err", err)
			}
		}
		if p.alerter != nil {
			if err := p.alerter.Alert(ctx, domain.AlertCritical, "Feed disconnected", reason,
				map[string]string{"symbol": sym}); err != nil {
				slog.Warn("portfolio: error alerting feed event", "err", err)
			}
		}
	}
}

// ResumePair manually resumes a pair paused by a feed loss or operator
// action, after resubscribing its symbol.
func (p *Portfolio) ResumePair(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ledger, ok := p.ledgers[symbol]
	if !ok {
		return fmt.Errorf("portfolio.ResumePair: unknown pair %s", symbol)
	}
	if err := p.feed.Subscribe(ctx, symbol); err != nil {
		return fmt.Errorf("portfolio.ResumePair: %s: %w", symbol, err)
	}
	ledger.Resume()
	slog.Info("portfolio: pair resumed", "symbol", symbol)
	return nil
}

// Snapshot returns an immutable view for readers.
func (p *Portfolio) Snapshot() domain.PortfolioSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Portfolio) snapshotLocked() domain.PortfolioSnapshot {
	symbols := p.symbolsLocked()

	pairs := make([]domain.PairState, 0, len(p.ledgers))
	for _, sym := range symbols {
		pairs = append(pairs, p.ledgers[sym].State())
	}

	return domain.PortfolioSnapshot{
		Status:           p.status,
		PauseReason:      p.pauseReason,
		TotalCapital:     p.cfg.TotalCapital,
		AvailableCapital: p.availableCapital,
		AllocatedCapital: p.allocatedCapital,
		Pairs:            pairs,
		Risk:             p.risk.LastMetrics(),
		Symbols:          symbols,
		Correlations:     p.corr.Matrix(symbols),
		TakenAt:          time.Now().UTC(),
	}
}

// riskViewLocked projects the portfolio into the controller's read model.
func (p *Portfolio) riskViewLocked() risk.View {
	view := risk.View{
		Equity:            p.availableCapital,
		FreeCash:          p.availableCapital,
		TotalCapital:      p.cfg.TotalCapital,
		Symbols:           p.symbolsLocked(),
		OpenOrdersPerPair: make(map[string]int, len(p.ledgers)),
		Paused:            p.status == domain.PortfolioPaused,
	}
	for sym, ledger := range p.ledgers {
		view.Equity += ledger.Equity()
		state := ledger.State()
		view.Exposure += state.PositionValue
		view.OpenOrdersPerPair[sym] = state.OpenOrders
	}
	return view
}

func (p *Portfolio) symbolsLocked() []string {
	symbols := make([]string, 0, len(p.ledgers))
	for sym := range p.ledgers {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// persistPair saves grid + pair state, best-effort.
func (p *Portfolio) persistPair(ctx context.Context, ledger *grid.Ledger) {
	if p.store == nil {
		return
	}
	state := ledger.State()
	if err := p.store.SaveGridState(ctx, state.Symbol, state.Levels); err != nil {
		slog.Warn("portfolio: error saving grid state", "symbol", state.Symbol, "err", err)
	}
	if err := p.store.SavePairState(ctx, state); err != nil {
		slog.Warn("portfolio: error saving pair state", "symbol", state.Symbol, "err", err)
	}
}

// shutdown cancels all resting orders and persists final state. Runs after
// the in-flight event has completed, so nothing is left half-settled.
func (p *Portfolio) shutdown(ctx context.Context) {
	p.setStatus(domain.PortfolioStopping, "")

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ledger := range p.ledgers {
		ledger.Stop()
		p.persistPair(ctx, ledger)
	}
	if p.store != nil {
		if err := p.store.SavePortfolioSnapshot(ctx, p.snapshotLocked()); err != nil {
			slog.Warn("portfolio: error saving final snapshot", "err", err)
		}
	}

	p.status = domain.PortfolioStopped
	slog.Info("portfolio: stopped")
}

func (p *Portfolio) setStatus(s domain.PortfolioStatus, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
	p.pauseReason = reason
}

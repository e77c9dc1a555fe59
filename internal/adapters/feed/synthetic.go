package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// SyntheticConfig drives the random-walk generator.
type SyntheticConfig struct {
	// Interval between ticks per symbol.
	Interval time.Duration
	// StepPct is the per-tick maximum percentage move, e.g. 0.002 for
	// ±0.2% steps.
	StepPct float64
	// StartPrices seeds the walk per symbol. Symbols without a seed
	// start at 100.
	StartPrices map[string]float64
	// Seed fixes the RNG for reproducible runs; 0 uses the clock.
	Seed int64
}

// Synthetic emits a bounded random walk per subscribed symbol. It exists
// for dry runs and tests; it satisfies the same contract as the live feed,
// including a ConnectionEvent on startup.
type Synthetic struct {
	cfg    SyntheticConfig
	events chan domain.FeedEvent

	mu      sync.Mutex
	rng     *rand.Rand
	cancels map[string]context.CancelFunc
	closed  bool
}

// NewSynthetic builds the generator. Zero-value config fields fall back to
// a 1s interval and ±0.2% steps.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.StepPct <= 0 {
		cfg.StepPct = 0.002
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthetic{
		cfg:     cfg,
		events:  make(chan domain.FeedEvent, 256),
		rng:     rand.New(rand.NewSource(seed)),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Subscribe starts the walk for symbol.
func (s *Synthetic) Subscribe(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("feed.Subscribe: synthetic feed closed")
	}
	if _, ok := s.cancels[symbol]; ok {
		return nil
	}

	start := s.cfg.StartPrices[symbol]
	if start <= 0 {
		start = 100
	}

	walkCtx, cancel := context.WithCancel(ctx)
	s.cancels[symbol] = cancel
	go s.walk(walkCtx, symbol, start)

	s.emitLocked(domain.ConnectionEvent{Up: true, Detail: "synthetic feed", Symbols: []string{symbol}, Time: time.Now().UTC()})
	slog.Info("feed: synthetic subscription", "symbol", symbol, "start", start, "interval", s.cfg.Interval)
	return nil
}

// Unsubscribe stops the walk for symbol. Unknown symbols are a no-op.
func (s *Synthetic) Unsubscribe(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[symbol]; ok {
		cancel()
		delete(s.cancels, symbol)
	}
	return nil
}

func (s *Synthetic) Events() <-chan domain.FeedEvent { return s.events }

// Close stops all walks and closes the events channel.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for sym, cancel := range s.cancels {
		cancel()
		delete(s.cancels, sym)
	}
	close(s.events)
	return nil
}

func (s *Synthetic) walk(ctx context.Context, symbol string, price float64) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			step := (s.rng.Float64()*2 - 1) * s.cfg.StepPct
			price *= 1 + step
			s.emitLocked(domain.PriceTick{Symbol: symbol, Price: price, Time: now.UTC()})
			s.mu.Unlock()
		}
	}
}

// emitLocked drops events when the consumer lags; a stale synthetic tick
// has no value. Callers hold s.mu, which also fences Close.
func (s *Synthetic) emitLocked(ev domain.FeedEvent) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

package correlation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const (
	// minOverlap is the minimum number of overlapping return samples for a
	// pairwise correlation to be meaningful.
	minOverlap = 10

	// defaultMaxSamples bounds each symbol's price history.
	defaultMaxSamples = 500

	// defaultPeriodsPerYear annualizes per-sample volatility assuming daily
	// samples.
	defaultPeriodsPerYear = 365

	// assumedVolatility stands in for symbols with no return data in
	// allocation weighting, so nothing is ever weighted to infinity.
	assumedVolatility = 0.5

	// neutralDiversification is returned when no pair has sufficient data.
	neutralDiversification = 0.5
)

// Engine maintains rolling price history per symbol and computes pairwise
// Pearson correlation, volatility and diversification on demand. The
// correlation matrix is cached and invalidated whenever any symbol's price
// history changes.
type Engine struct {
	mu             sync.Mutex
	maxSamples     int
	periodsPerYear float64
	series         map[string]*series

	cachedMatrix  [][]float64
	cachedSymbols []string
}

type series struct {
	prices  []float64
	returns []float64
	lastAt  time.Time
}

// Option tweaks engine defaults.
type Option func(*Engine)

// WithMaxSamples bounds the per-symbol history length.
func WithMaxSamples(n int) Option {
	return func(e *Engine) {
		if n > 1 {
			e.maxSamples = n
		}
	}
}

// WithPeriodsPerYear sets the annualization factor for volatility.
func WithPeriodsPerYear(p float64) Option {
	return func(e *Engine) {
		if p > 0 {
			e.periodsPerYear = p
		}
	}
}

// NewEngine creates an empty correlation engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxSamples:     defaultMaxSamples,
		periodsPerYear: defaultPeriodsPerYear,
		series:         make(map[string]*series),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordSample appends a price to the symbol's series, derives the simple
// return incrementally and invalidates the cached matrix.
func (e *Engine) RecordSample(symbol string, price float64, ts time.Time) {
	if price <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.series[symbol]
	if !ok {
		s = &series{}
		e.series[symbol] = s
	}

	if n := len(s.prices); n > 0 {
		prev := s.prices[n-1]
		s.returns = append(s.returns, price/prev-1)
	}
	s.prices = append(s.prices, price)
	s.lastAt = ts

	if len(s.prices) > e.maxSamples {
		s.prices = s.prices[len(s.prices)-e.maxSamples:]
	}
	if len(s.returns) > e.maxSamples-1 {
		s.returns = s.returns[len(s.returns)-(e.maxSamples-1):]
	}

	e.cachedMatrix = nil
	e.cachedSymbols = nil
}

// Samples returns the number of recorded prices for a symbol.
func (e *Engine) Samples(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.series[symbol]; ok {
		return len(s.prices)
	}
	return 0
}

// Correlation computes the Pearson correlation of two symbols' return
// series, aligned to their most recent overlapping samples. Returns
// ErrInsufficientData under minOverlap samples; callers degrade to neutral.
func (e *Engine) Correlation(a, b string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.correlationLocked(a, b)
}

func (e *Engine) correlationLocked(a, b string) (float64, error) {
	if a == b {
		return 1, nil
	}
	sa, okA := e.series[a]
	sb, okB := e.series[b]
	if !okA || !okB {
		return 0, fmt.Errorf("correlation %s/%s: %w", a, b, domain.ErrInsufficientData)
	}

	n := len(sa.returns)
	if len(sb.returns) < n {
		n = len(sb.returns)
	}
	if n < minOverlap {
		return 0, fmt.Errorf("correlation %s/%s: %d overlapping returns, need %d: %w",
			a, b, n, minOverlap, domain.ErrInsufficientData)
	}

	ra := sa.returns[len(sa.returns)-n:]
	rb := sb.returns[len(sb.returns)-n:]
	return domain.Pearson(ra, rb), nil
}

// Volatility is the sample standard deviation of the symbol's returns,
// annualized by sqrt(periodsPerYear). Undefined until two return samples
// exist.
func (e *Engine) Volatility(symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volatilityLocked(symbol)
}

func (e *Engine) volatilityLocked(symbol string) (float64, error) {
	s, ok := e.series[symbol]
	if !ok || len(s.returns) < 2 {
		return 0, fmt.Errorf("volatility %s: %w", symbol, domain.ErrInsufficientData)
	}
	return domain.SampleStdDev(s.returns) * math.Sqrt(e.periodsPerYear), nil
}

// Matrix returns the symmetric correlation matrix over the given symbols,
// diagonal forced to 1.0 and insufficient pairs reported as 0. The matrix
// is rebuilt lazily and cached until any symbol records a new sample.
func (e *Engine) Matrix(symbols []string) [][]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cachedMatrix != nil && sameSymbols(e.cachedSymbols, symbols) {
		return e.cachedMatrix
	}

	n := len(symbols)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c, err := e.correlationLocked(symbols[i], symbols[j])
			if err != nil {
				c = 0
			}
			m[i][j] = c
			m[j][i] = c
		}
	}

	e.cachedMatrix = m
	e.cachedSymbols = append([]string(nil), symbols...)
	return m
}

// DiversificationScore is 1 − mean(|pairwise correlation|): 1 means fully
// uncorrelated, 0 fully correlated. Neutral 0.5 when no pair has enough
// data; 0 for fewer than 2 symbols.
func (e *Engine) DiversificationScore(symbols []string) float64 {
	if len(symbols) < 2 {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var sum float64
	var pairs int
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			c, err := e.correlationLocked(symbols[i], symbols[j])
			if err != nil {
				continue
			}
			if c < 0 {
				c = -c
			}
			sum += c
			pairs++
		}
	}
	if pairs == 0 {
		return neutralDiversification
	}
	return 1 - sum/float64(pairs)
}

// SuggestAllocation splits capital across symbols by inverse volatility:
// weight ∝ 1/volatility. Symbols without volatility data get an assumed
// volatility so they are never weighted to infinity.
func (e *Engine) SuggestAllocation(symbols []string, capital float64) map[string]float64 {
	alloc := make(map[string]float64, len(symbols))
	if len(symbols) == 0 || capital <= 0 {
		return alloc
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inverse := make([]float64, len(symbols))
	var total float64
	for i, sym := range symbols {
		vol, err := e.volatilityLocked(sym)
		if err != nil || vol <= 0 {
			vol = assumedVolatility
		}
		inverse[i] = 1 / vol
		total += inverse[i]
	}

	for i, sym := range symbols {
		alloc[sym] = capital * inverse[i] / total
	}
	return alloc
}

func sameSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}


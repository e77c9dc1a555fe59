package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const (
	defaultRESTBase = "https://api.binance.com"

	// exchangeInfo carries weight 20 of the 6000/min budget; a handful of
	// requests per second is already generous.
	restRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Instruments implements ports.InstrumentProvider against the exchangeInfo
// endpoint, with rate limiting, retries and an in-memory cache. Filters
// rarely change; one lookup per symbol per process is the norm.
type Instruments struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]domain.Instrument
}

// NewInstruments creates the provider. An empty base uses the production
// REST endpoint.
func NewInstruments(base string) *Instruments {
	if base == "" {
		base = defaultRESTBase
	}
	return &Instruments{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(restRatePerSec, 5),
		cache:   make(map[string]domain.Instrument),
	}
}

// exchangeInfoResponse is the subset of the exchangeInfo payload we need.
// Filter values arrive as strings.
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Filters    []struct {
			FilterType  string `json:"filterType"`
			TickSize    string `json:"tickSize"`
			StepSize    string `json:"stepSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// Instrument resolves a symbol's trading filters, hitting the cache first.
func (c *Instruments) Instrument(ctx context.Context, symbol string) (domain.Instrument, error) {
	c.mu.Lock()
	if inst, ok := c.cache[symbol]; ok {
		c.mu.Unlock()
		return inst, nil
	}
	c.mu.Unlock()

	var resp exchangeInfoResponse
	url := fmt.Sprintf("%s/api/v3/exchangeInfo?symbol=%s", c.base, symbol)
	if err := c.get(ctx, url, &resp); err != nil {
		return domain.Instrument{}, fmt.Errorf("binance.Instrument: %s: %w", symbol, err)
	}
	if len(resp.Symbols) == 0 {
		return domain.Instrument{}, fmt.Errorf("binance.Instrument: %s: unknown symbol", symbol)
	}

	s := resp.Symbols[0]
	inst := domain.Instrument{
		Symbol:     s.Symbol,
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			inst.TickSize, _ = strconv.ParseFloat(f.TickSize, 64)
		case "LOT_SIZE":
			inst.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
		case "NOTIONAL", "MIN_NOTIONAL":
			inst.MinNotional, _ = strconv.ParseFloat(f.MinNotional, 64)
		}
	}
	if inst.TickSize <= 0 || inst.StepSize <= 0 {
		return domain.Instrument{}, fmt.Errorf("binance.Instrument: %s: missing price/lot filters", symbol)
	}

	c.mu.Lock()
	c.cache[symbol] = inst
	c.mu.Unlock()

	slog.Info("binance: instrument loaded",
		"symbol", inst.Symbol,
		"tick_size", inst.TickSize,
		"step_size", inst.StepSize,
		"min_notional", inst.MinNotional,
	)
	return inst, nil
}

// get performs a rate-limited GET with exponential backoff on transient
// failures.
func (c *Instruments) get(ctx context.Context, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("binance: transient API error", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits with exponential backoff, respecting the context.
func (c *Instruments) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

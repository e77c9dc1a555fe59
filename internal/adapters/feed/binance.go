package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

const (
	defaultStreamURL = "wss://stream.binance.com:9443/ws"

	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 20 * time.Second

	maxReconnectAttempts = 10
	baseBackoff          = time.Second
	maxBackoff           = 60 * time.Second
)

// Binance streams trade prices over the exchange's combined websocket. One
// connection carries every subscribed symbol; stream management messages
// are multiplexed on the same socket.
type Binance struct {
	url    string
	events chan domain.FeedEvent

	mu      sync.Mutex
	conn    *websocket.Conn
	symbols map[string]bool
	nextID  int
	closed  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBinance builds the client. An empty url uses the production stream
// endpoint.
func NewBinance(url string) *Binance {
	if url == "" {
		url = defaultStreamURL
	}
	return &Binance{
		url:     url,
		events:  make(chan domain.FeedEvent, 1024),
		symbols: make(map[string]bool),
	}
}

// Subscribe connects the socket on first use and registers the symbol's
// trade stream.
func (b *Binance) Subscribe(ctx context.Context, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("feed.Subscribe: binance feed closed")
	}
	if b.symbols[symbol] {
		return nil
	}

	if b.conn == nil {
		if err := b.dialLocked(); err != nil {
			return fmt.Errorf("feed.Subscribe: %w", err)
		}
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		b.wg.Add(1)
		go b.readLoop(runCtx)
	}

	if err := b.sendStreamRequestLocked("SUBSCRIBE", symbol); err != nil {
		return fmt.Errorf("feed.Subscribe: %s: %w", symbol, err)
	}
	b.symbols[symbol] = true
	slog.Info("feed: subscribed", "symbol", symbol, "url", b.url)
	return nil
}

// Unsubscribe drops the symbol's stream. The socket stays up for the
// remaining symbols.
func (b *Binance) Unsubscribe(symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.symbols[symbol] {
		return nil
	}
	delete(b.symbols, symbol)
	if b.conn == nil {
		return nil
	}
	if err := b.sendStreamRequestLocked("UNSUBSCRIBE", symbol); err != nil {
		return fmt.Errorf("feed.Unsubscribe: %s: %w", symbol, err)
	}
	return nil
}

func (b *Binance) Events() <-chan domain.FeedEvent { return b.events }

// Close tears down the socket and closes the events channel once the read
// loop has drained.
func (b *Binance) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	if b.conn != nil {
		b.conn.Close()
	}
	b.mu.Unlock()

	b.wg.Wait()
	close(b.events)
	return nil
}

func (b *Binance) dialLocked() error {
	conn, _, err := websocket.DefaultDialer.Dial(b.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.url, err)
	}
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	b.conn = conn
	return nil
}

// sendStreamRequestLocked issues a SUBSCRIBE/UNSUBSCRIBE management frame.
func (b *Binance) sendStreamRequestLocked(method, symbol string) error {
	b.nextID++
	req := map[string]any{
		"method": method,
		"params": []string{strings.ToLower(symbol) + "@trade"},
		"id":     b.nextID,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return b.conn.WriteMessage(websocket.TextMessage, payload)
}

// tradeMessage is the subset of Binance's trade stream payload we consume.
// Prices arrive as strings.
type tradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// readLoop pumps messages into the events channel, reconnecting with capped
// exponential backoff. When the attempts are exhausted it reports a
// terminal ConnectionEvent and exits; the portfolio pauses the affected
// pairs.
func (b *Binance) readLoop(ctx context.Context) {
	defer b.wg.Done()

	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()
	go b.pingLoop(ctx, pinger)

	attempts := 0
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || b.isClosed() {
				return
			}
			slog.Warn("feed: read failed", "err", err, "attempt", attempts+1)
			b.emit(domain.ConnectionEvent{Detail: err.Error(), Time: time.Now().UTC()})
			if !b.reconnect(ctx, &attempts) {
				return
			}
			continue
		}
		attempts = 0
		b.handleMessage(message)
	}
}

// reconnect redials with exponential backoff and replays the
// subscriptions. Returns false when the attempts are exhausted or ctx ends.
func (b *Binance) reconnect(ctx context.Context, attempts *int) bool {
	for {
		*attempts++
		if *attempts > maxReconnectAttempts {
			slog.Error("feed: reconnect attempts exhausted", "attempts", maxReconnectAttempts)
			b.emit(domain.ConnectionEvent{
				Exhausted: true,
				Detail:    fmt.Sprintf("gave up after %d reconnect attempts", maxReconnectAttempts),
				Symbols:   b.subscribedSymbols(),
				Time:      time.Now().UTC(),
			})
			return false
		}

		backoff := baseBackoff << (*attempts - 1)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		slog.Info("feed: reconnecting", "attempt", *attempts, "backoff", backoff)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return false
		}
		if b.conn != nil {
			b.conn.Close()
		}
		err := b.dialLocked()
		if err == nil {
			for sym := range b.symbols {
				if serr := b.sendStreamRequestLocked("SUBSCRIBE", sym); serr != nil {
					err = serr
					break
				}
			}
		}
		b.mu.Unlock()

		if err != nil {
			slog.Warn("feed: reconnect failed", "attempt", *attempts, "err", err)
			continue
		}

		b.emit(domain.ConnectionEvent{Up: true, Detail: "reconnected", Symbols: b.subscribedSymbols(), Time: time.Now().UTC()})
		return true
	}
}

func (b *Binance) pingLoop(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			conn := b.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					slog.Warn("feed: ping failed", "err", err)
				}
			}
			b.mu.Unlock()
		}
	}
}

func (b *Binance) handleMessage(message []byte) {
	var msg tradeMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.EventType != "trade" {
		// Management acks and non-trade events are ignored.
		return
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		slog.Warn("feed: malformed trade price", "symbol", msg.Symbol, "price", msg.Price)
		return
	}
	b.emit(domain.PriceTick{
		Symbol: msg.Symbol,
		Price:  price,
		Time:   time.UnixMilli(msg.TradeTime).UTC(),
	})
}

func (b *Binance) emit(ev domain.FeedEvent) {
	select {
	case b.events <- ev:
	default:
		slog.Warn("feed: events channel full, dropping", "event", fmt.Sprintf("%T", ev))
	}
}

func (b *Binance) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Binance) subscribedSymbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	symbols := make([]string, 0, len(b.symbols))
	for sym := range b.symbols {
		symbols = append(symbols, sym)
	}
	return symbols
}

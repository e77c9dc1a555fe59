package grid

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Config describes one pair's ladder.
type Config struct {
	Symbol        string
	Lower         float64
	Upper         float64
	Count         int
	Type          domain.GridType
	AmountPerGrid float64 // base quantity per order
	BaseBalance   float64 // starting simulated inventory
	QuoteBalance  float64 // starting simulated cash
}

// Ledger maintains the price ladder for one trading pair and decides, for
// every incoming price sample, whether any resting order should fill.
//
// Ladder ownership: level i owns its buy order at prices[i] and, after that
// buy fills, the counter sell at prices[i+1]. The topmost rung is only ever
// a sell target. A sell fill realizes (sell price − entry price) × quantity
// and re-arms the buy, so each level cycles for the pair's lifetime.
//
// The ledger is not safe for concurrent use: the portfolio's event loop
// delivers price events serially, so all Balance and GridLevel mutation is
// already single-writer.
type Ledger struct {
	cfg    Config
	inst   domain.Instrument
	prices []float64
	levels []domain.GridLevel
	orders map[string]*domain.SimulatedOrder
	base   domain.Balance
	quote  domain.Balance

	status        domain.PairStatus
	pauseReason   string
	currentPrice  float64
	positionSize  float64
	avgEntryPrice float64
	realizedPnl   float64
	tradesCount   int
	seeded        bool
}

// NewLedger validates the grid config and builds the (initially empty)
// ladder. Orders are seeded on the first price tick.
func NewLedger(cfg Config, inst domain.Instrument) (*Ledger, error) {
	prices, err := domain.BuildLevels(cfg.Lower, cfg.Upper, cfg.Count, cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("grid.NewLedger: %s: %w", cfg.Symbol, err)
	}
	if cfg.AmountPerGrid <= 0 {
		return nil, fmt.Errorf("grid.NewLedger: %s: %w: amount per grid %g must be positive",
			cfg.Symbol, domain.ErrInvalidGridConfig, cfg.AmountPerGrid)
	}

	levels := make([]domain.GridLevel, len(prices))
	for i, p := range prices {
		levels[i] = domain.GridLevel{Level: i, Price: p, Status: domain.LevelEmpty}
	}

	return &Ledger{
		cfg:    cfg,
		inst:   inst,
		prices: prices,
		levels: levels,
		orders: make(map[string]*domain.SimulatedOrder),
		base:   domain.Balance{Asset: inst.BaseAsset, Free: cfg.BaseBalance},
		quote:  domain.Balance{Asset: inst.QuoteAsset, Free: cfg.QuoteBalance},
		status: domain.PairStopped,
	}, nil
}

// Seeded reports whether initial orders have been placed.
func (l *Ledger) Seeded() bool { return l.seeded }

// SeedOrders places the initial ladder around the current price: buys on
// rungs below it, sells on rungs at or above it. Called once, on the first
// price sample.
func (l *Ledger) SeedOrders(current float64) {
	if l.seeded {
		return
	}
	l.seeded = true
	l.currentPrice = current
	l.status = domain.PairRunning

	buys, sells := 0, 0
	for i := 0; i < l.topRung(); i++ {
		if l.prices[i] < current {
			if _, err := l.placeBuy(i); err != nil {
				slog.Warn("grid: seed buy failed", "symbol", l.cfg.Symbol, "level", i, "err", err)
				continue
			}
			buys++
		} else {
			// Sell one rung up; entry is this rung's price so the round
			// trip realizes one grid spacing.
			if _, err := l.placeSell(i); err != nil {
				slog.Warn("grid: seed sell failed", "symbol", l.cfg.Symbol, "level", i, "err", err)
				continue
			}
			sells++
		}
	}

	slog.Info("grid: ladder seeded",
		"symbol", l.cfg.Symbol,
		"levels", len(l.levels),
		"buys", buys,
		"sells", sells,
		"price", current,
	)
}

// PlaceOrder rounds price and quantity to the instrument's increments,
// rejects orders under the minimum notional, reserves funds and registers a
// NEW simulated order on the given level. A failed reservation is logged
// and the order is still created so the level lifecycle stays consistent.
func (l *Ledger) PlaceOrder(side domain.Side, price, qty float64, level int) (*domain.SimulatedOrder, error) {
	if level < 0 || level >= len(l.levels) {
		return nil, fmt.Errorf("grid.PlaceOrder: %s: level %d out of range", l.cfg.Symbol, level)
	}

	price = l.inst.RoundPrice(price)
	qty = l.inst.RoundQuantity(qty)
	if err := l.inst.CheckNotional(price, qty); err != nil {
		return nil, fmt.Errorf("grid.PlaceOrder: %s: %w", l.cfg.Symbol, err)
	}

	order := &domain.SimulatedOrder{
		ID:        uuid.New().String(),
		Symbol:    l.cfg.Symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Status:    domain.OrderStatusNew,
		GridLevel: level,
		Reserved:  true,
		CreatedAt: time.Now().UTC(),
	}

	var err error
	if side == domain.SideBuy {
		err = l.quote.Reserve(price * qty)
	} else {
		err = l.base.Reserve(qty)
	}
	if err != nil {
		order.Reserved = false
		slog.Warn("grid: funds reservation short, order created unreserved",
			"symbol", l.cfg.Symbol, "side", side, "level", level, "err", err)
	}

	l.orders[order.ID] = order
	return order, nil
}

// OnPriceTick checks every resting order against the new price and fills
// the eligible ones at their own limit price. Buys fill in ascending level
// order and sells in descending level order, innermost-to-outermost from
// the trigger. Returns the trades executed on this tick.
func (l *Ledger) OnPriceTick(price float64, ts time.Time) []domain.Trade {
	if !l.seeded {
		l.SeedOrders(price)
	}
	l.currentPrice = price

	// Snapshot eligible orders first: counter-orders placed during this
	// tick must wait for the next one.
	var buys, sells []*domain.SimulatedOrder
	for _, o := range l.orders {
		if !o.Open() {
			continue
		}
		switch {
		case o.Side == domain.SideBuy && price <= o.Price:
			buys = append(buys, o)
		case o.Side == domain.SideSell && price >= o.Price:
			sells = append(sells, o)
		}
	}
	sort.Slice(buys, func(i, j int) bool { return buys[i].GridLevel < buys[j].GridLevel })
	sort.Slice(sells, func(i, j int) bool { return sells[i].GridLevel > sells[j].GridLevel })

	var trades []domain.Trade
	for _, o := range buys {
		trades = append(trades, l.fill(o, ts))
	}
	for _, o := range sells {
		trades = append(trades, l.fill(o, ts))
	}

	return trades
}

// MarkPrice updates the marked price without matching orders. Used while
// the pair is paused so unrealized P&L stays current.
func (l *Ledger) MarkPrice(price float64) { l.currentPrice = price }

// FillOrder fills one specific resting order (used when a live feed reports
// an exchange-side execution). The fill settles at the order's limit price.
func (l *Ledger) FillOrder(orderID string, ts time.Time) (domain.Trade, error) {
	o, ok := l.orders[orderID]
	if !ok || !o.Open() {
		return domain.Trade{}, fmt.Errorf("grid.FillOrder: %s: no open order %q", l.cfg.Symbol, orderID)
	}
	return l.fill(o, ts), nil
}

// fill settles one order atomically: level status forward, locked funds
// converted at the order's limit price (never the tick price), position and
// realized P&L updated, counter order placed.
func (l *Ledger) fill(o *domain.SimulatedOrder, ts time.Time) domain.Trade {
	o.Status = domain.OrderStatusFilled
	o.FilledQuantity = o.Quantity
	filledAt := ts
	o.FilledAt = &filledAt
	delete(l.orders, o.ID)

	level := &l.levels[o.GridLevel]
	level.FilledAt = &filledAt

	trade := domain.Trade{
		ID:         uuid.New().String(),
		OrderID:    o.ID,
		Symbol:     l.cfg.Symbol,
		Side:       o.Side,
		Price:      o.Price,
		Quantity:   o.Quantity,
		GridLevel:  o.GridLevel,
		ExecutedAt: ts,
	}

	if o.Side == domain.SideBuy {
		l.quote.Consume(o.Notional(), o.Reserved)
		l.base.Deposit(o.Quantity)

		newSize := l.positionSize + o.Quantity
		l.avgEntryPrice = (l.avgEntryPrice*l.positionSize + o.Price*o.Quantity) / newSize
		l.positionSize = newSize

		level.BuyOrderID = ""
		level.Status = domain.LevelBought

		// Counter sell one rung up re-arms the cycle immediately.
		if o.GridLevel < l.topRung() {
			if _, err := l.placeSell(o.GridLevel); err != nil {
				slog.Warn("grid: counter sell failed", "symbol", l.cfg.Symbol, "level", o.GridLevel, "err", err)
			}
		}
	} else {
		l.base.Consume(o.Quantity, o.Reserved)
		l.quote.Deposit(o.Notional())

		trade.RealizedPnl = (o.Price - o.EntryPrice) * o.Quantity
		l.realizedPnl += trade.RealizedPnl
		l.positionSize -= o.Quantity
		if l.positionSize <= 0 {
			l.positionSize = 0
			l.avgEntryPrice = 0
		}

		level.SellOrderID = ""
		level.Status = domain.LevelSold

		// Round trip complete: re-arm the buy side on the same rung.
		if _, err := l.placeBuy(o.GridLevel); err != nil {
			slog.Warn("grid: re-arm buy failed", "symbol", l.cfg.Symbol, "level", o.GridLevel, "err", err)
		}
	}

	l.tradesCount++

	slog.Info("grid: order filled",
		"symbol", l.cfg.Symbol,
		"side", o.Side,
		"level", o.GridLevel,
		"price", o.Price,
		"qty", o.Quantity,
		"pnl", trade.RealizedPnl,
	)

	return trade
}

// CancelOrder releases the order's locked funds and removes it. Canceling a
// non-existent or already-terminal order is a no-op.
func (l *Ledger) CancelOrder(orderID string) {
	o, ok := l.orders[orderID]
	if !ok || !o.Open() {
		return
	}
	o.Status = domain.OrderStatusCanceled
	delete(l.orders, orderID)

	if o.Reserved {
		if o.Side == domain.SideBuy {
			l.quote.Release(o.Notional())
		} else {
			l.base.Release(o.Quantity)
		}
	}

	// Cancellation de-arms the rung; a later reseed or counter fill
	// re-arms it.
	level := &l.levels[o.GridLevel]
	if o.Side == domain.SideBuy && level.BuyOrderID == o.ID {
		level.BuyOrderID = ""
		level.Status = domain.LevelEmpty
	}
	if o.Side == domain.SideSell && level.SellOrderID == o.ID {
		level.SellOrderID = ""
		level.Status = domain.LevelEmpty
	}
}

// CancelAll cancels every resting order.
func (l *Ledger) CancelAll() {
	ids := make([]string, 0, len(l.orders))
	for id := range l.orders {
		ids = append(ids, id)
	}
	for _, id := range ids {
		l.CancelOrder(id)
	}
}

// Pause marks the pair paused with an operator-visible reason. Resting
// orders stay in place; they simply receive no price events.
func (l *Ledger) Pause(reason string) {
	l.status = domain.PairPaused
	l.pauseReason = reason
}

// Resume clears a pause.
func (l *Ledger) Resume() {
	if l.status == domain.PairPaused {
		l.status = domain.PairRunning
		l.pauseReason = ""
	}
}

// Stop cancels all resting orders and marks the pair stopped.
func (l *Ledger) Stop() {
	l.CancelAll()
	l.status = domain.PairStopped
}

// Paused reports whether the pair is paused.
func (l *Ledger) Paused() bool { return l.status == domain.PairPaused }

// Symbol returns the pair's symbol.
func (l *Ledger) Symbol() string { return l.cfg.Symbol }

// OpenOrders returns the number of resting orders.
func (l *Ledger) OpenOrders() int { return len(l.orders) }

// Balances returns copies of the pair's base and quote balances.
func (l *Ledger) Balances() (base, quote domain.Balance) {
	return l.base, l.quote
}

// Equity values the pair in quote terms: cash plus inventory at the
// current price.
func (l *Ledger) Equity() float64 {
	return l.quote.Total() + l.base.Total()*l.currentPrice
}

// State returns a copy of the pair's aggregate state, with unrealized P&L
// and position value marked at the current price.
func (l *Ledger) State() domain.PairState {
	levels := make([]domain.GridLevel, len(l.levels))
	copy(levels, l.levels)

	unrealized := 0.0
	if l.positionSize > 0 {
		unrealized = (l.currentPrice - l.avgEntryPrice) * l.positionSize
	}

	return domain.PairState{
		Symbol:        l.cfg.Symbol,
		Status:        l.status,
		PauseReason:   l.pauseReason,
		CurrentPrice:  l.currentPrice,
		Levels:        levels,
		PositionSize:  l.positionSize,
		PositionValue: l.positionSize * l.currentPrice,
		AvgEntryPrice: l.avgEntryPrice,
		RealizedPnl:   l.realizedPnl,
		UnrealizedPnl: unrealized,
		TradesCount:   l.tradesCount,
		OpenOrders:    len(l.orders),
	}
}

// topRung is the index of the highest rung, which only ever receives sells.
func (l *Ledger) topRung() int { return len(l.prices) - 1 }

// placeBuy arms level i with a buy at its own rung price.
func (l *Ledger) placeBuy(i int) (*domain.SimulatedOrder, error) {
	level := &l.levels[i]
	if level.BuyOrderID != "" {
		return nil, fmt.Errorf("grid.placeBuy: %s: level %d already has a buy", l.cfg.Symbol, i)
	}

	o, err := l.PlaceOrder(domain.SideBuy, l.prices[i], l.cfg.AmountPerGrid, i)
	if err != nil {
		return nil, err
	}
	o.EntryPrice = o.Price
	level.BuyOrderID = o.ID
	level.Status = domain.LevelBuyPending
	return o, nil
}

// placeSell arms level i with a sell one rung up; entry is rung i's price.
func (l *Ledger) placeSell(i int) (*domain.SimulatedOrder, error) {
	level := &l.levels[i]
	if level.SellOrderID != "" {
		return nil, fmt.Errorf("grid.placeSell: %s: level %d already has a sell", l.cfg.Symbol, i)
	}
	if i >= l.topRung() {
		return nil, fmt.Errorf("grid.placeSell: %s: level %d has no rung above", l.cfg.Symbol, i)
	}

	o, err := l.PlaceOrder(domain.SideSell, l.prices[i+1], l.cfg.AmountPerGrid, i)
	if err != nil {
		return nil, err
	}
	o.EntryPrice = l.prices[i]
	level.SellOrderID = o.ID
	level.Status = domain.LevelSellPending
	return o, nil
}

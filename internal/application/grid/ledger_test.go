package grid_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/gridbot/internal/application/grid"
	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstrument() domain.Instrument {
	return domain.Instrument{
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		TickSize:    0.01,
		StepSize:    0.000001,
		MinNotional: 10,
	}
}

func testConfig() grid.Config {
	return grid.Config{
		Symbol:        "BTCUSDT",
		Lower:         40000,
		Upper:         45000,
		Count:         5,
		Type:          domain.GridArithmetic,
		AmountPerGrid: 0.01,
		BaseBalance:   0.05,
		QuoteBalance:  3000,
	}
}

func newLedger(t *testing.T) *grid.Ledger {
	t.Helper()
	l, err := grid.NewLedger(testConfig(), testInstrument())
	require.NoError(t, err)
	return l
}

func balanceInvariant(t *testing.T, l *grid.Ledger) {
	t.Helper()
	base, quote := l.Balances()
	assert.InDelta(t, base.Free+base.Locked, base.Total(), 1e-9)
	assert.InDelta(t, quote.Free+quote.Locked, quote.Total(), 1e-9)
	assert.GreaterOrEqual(t, base.Free, -1e-9)
	assert.GreaterOrEqual(t, base.Locked, -1e-9)
	assert.GreaterOrEqual(t, quote.Free, -1e-9)
	assert.GreaterOrEqual(t, quote.Locked, -1e-9)
}

func TestLedger_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.AmountPerGrid = 0
	_, err := grid.NewLedger(cfg, testInstrument())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidGridConfig)
}

func TestLedger_SeedsAroundCurrentPrice(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	// First tick at 42500: buys below (40000, 41000, 42000), sells at or
	// above (43000→44000, 44000→45000)
	trades := l.OnPriceTick(42500, ts)
	assert.Empty(t, trades)
	assert.True(t, l.Seeded())

	state := l.State()
	assert.Equal(t, domain.PairRunning, state.Status)
	assert.Equal(t, 5, state.OpenOrders)
	assert.Equal(t, domain.LevelBuyPending, state.Levels[0].Status)
	assert.Equal(t, domain.LevelBuyPending, state.Levels[1].Status)
	assert.Equal(t, domain.LevelBuyPending, state.Levels[2].Status)
	assert.Equal(t, domain.LevelSellPending, state.Levels[3].Status)
	assert.Equal(t, domain.LevelSellPending, state.Levels[4].Status)
	assert.Equal(t, domain.LevelEmpty, state.Levels[5].Status)

	balanceInvariant(t, l)
}

func TestLedger_BuyFillsAtLimitPriceNotTickPrice(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	l.OnPriceTick(42000.5, ts) // seeds: buys at 40000, 41000, 42000

	// Tick drops through the 41000 rung; the 42000 and 41000 buys both
	// trigger and each fills at its own limit price
	trades := l.OnPriceTick(40500, ts.Add(time.Second))
	require.Len(t, trades, 2)

	// Ascending level order: 41000 first, then 42000
	assert.InDelta(t, 41000, trades[0].Price, 1e-9)
	assert.InDelta(t, 42000, trades[1].Price, 1e-9)
	for _, tr := range trades {
		assert.Equal(t, domain.SideBuy, tr.Side)
		assert.NotEqual(t, 40500.0, tr.Price)
	}

	balanceInvariant(t, l)
}

func TestLedger_CounterOrdersWaitForNextTick(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	l.OnPriceTick(41500, ts) // buys at 40000, 41000

	// Fill the 41000 buy. Its counter sell at 42000 must not fill on the
	// same tick, even though a later tick at 42000 would trigger it.
	trades := l.OnPriceTick(41000, ts.Add(time.Second))
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideBuy, trades[0].Side)

	state := l.State()
	assert.Equal(t, domain.LevelSellPending, state.Levels[1].Status)

	// Next tick up at 42000 fills the counter sell at its limit price
	trades = l.OnPriceTick(42000, ts.Add(2*time.Second))
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideSell, trades[0].Side)
	assert.InDelta(t, 42000, trades[0].Price, 1e-9)

	// Round trip realizes one grid spacing
	assert.InDelta(t, (42000-41000)*0.01, trades[0].RealizedPnl, 1e-9)

	// The rung re-armed its buy
	state = l.State()
	assert.Equal(t, domain.LevelBuyPending, state.Levels[1].Status)

	balanceInvariant(t, l)
}

func TestLedger_SellsFillDescending(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	l.OnPriceTick(40500, ts) // sells seeded at 42000..45000 (levels 1..4)

	trades := l.OnPriceTick(45000, ts.Add(time.Second))
	require.Len(t, trades, 4)

	// Descending level order: outermost rung first
	prev := trades[0].GridLevel
	for _, tr := range trades[1:] {
		assert.Less(t, tr.GridLevel, prev)
		prev = tr.GridLevel
		assert.Equal(t, domain.SideSell, tr.Side)
	}

	balanceInvariant(t, l)
}

func TestLedger_RealizedPnlAccumulates(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	l.OnPriceTick(41500, ts)
	l.OnPriceTick(41000, ts.Add(time.Second))   // buy at 41000
	l.OnPriceTick(42000, ts.Add(2*time.Second)) // sell at 42000

	state := l.State()
	assert.InDelta(t, 10, state.RealizedPnl, 1e-9) // (42000-41000)*0.01
	assert.Equal(t, 2, state.TradesCount)
}

func TestLedger_UnrealizedMarksToCurrentPrice(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	l.OnPriceTick(41500, ts)
	l.OnPriceTick(41000, ts.Add(time.Second)) // buy 0.01 at 41000

	l.MarkPrice(41800)
	state := l.State()
	assert.InDelta(t, (41800-41000)*0.01, state.UnrealizedPnl, 1e-9)
}

func TestLedger_MinNotionalRejected(t *testing.T) {
	cfg := testConfig()
	cfg.AmountPerGrid = 0.0001 // 40000*0.0001 = 4 < minNotional 10
	l, err := grid.NewLedger(cfg, testInstrument())
	require.NoError(t, err)

	_, err = l.PlaceOrder(domain.SideBuy, 40000, cfg.AmountPerGrid, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBelowMinNotional)
}

func TestLedger_InsufficientQuoteCreatesUnreservedOrder(t *testing.T) {
	cfg := testConfig()
	cfg.QuoteBalance = 500 // one buy costs ~400-420, three don't fit
	l, err := grid.NewLedger(cfg, testInstrument())
	require.NoError(t, err)

	l.OnPriceTick(42500, time.Now().UTC())

	// All five orders exist regardless; the short ones are unreserved
	assert.Equal(t, 5, l.OpenOrders())
	balanceInvariant(t, l)
}

func TestLedger_CancelReleasesFunds(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	l.OnPriceTick(42500, ts)
	_, quoteBefore := l.Balances()
	assert.Greater(t, quoteBefore.Locked, 0.0)

	l.CancelAll()

	base, quote := l.Balances()
	assert.InDelta(t, 0, quote.Locked, 1e-9)
	assert.InDelta(t, 0, base.Locked, 1e-9)
	assert.InDelta(t, 3000, quote.Total(), 1e-9)
	assert.Equal(t, 0, l.OpenOrders())

	for _, lv := range l.State().Levels {
		assert.Equal(t, domain.LevelEmpty, lv.Status)
	}
}

func TestLedger_CancelIsIdempotent(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	l.OnPriceTick(42500, ts)
	state := l.State()
	orderID := state.Levels[0].BuyOrderID
	require.NotEmpty(t, orderID)

	l.CancelOrder(orderID)
	_, quoteAfterFirst := l.Balances()

	// Second cancel must not release funds again
	l.CancelOrder(orderID)
	_, quoteAfterSecond := l.Balances()
	assert.InDelta(t, quoteAfterFirst.Free, quoteAfterSecond.Free, 1e-9)
	assert.InDelta(t, quoteAfterFirst.Locked, quoteAfterSecond.Locked, 1e-9)

	// Unknown IDs are a no-op too
	l.CancelOrder("no-such-order")
	balanceInvariant(t, l)
}

func TestLedger_FillOrderBySpecificID(t *testing.T) {
	l := newLedger(t)
	ts := time.Now().UTC()

	l.OnPriceTick(42500, ts)
	orderID := l.State().Levels[2].BuyOrderID
	require.NotEmpty(t, orderID)

	trade, err := l.FillOrder(orderID, ts.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.SideBuy, trade.Side)
	assert.InDelta(t, 42000, trade.Price, 1e-9)

	_, err = l.FillOrder(orderID, ts.Add(2*time.Second))
	require.Error(t, err)
}

func TestLedger_StopCancelsEverything(t *testing.T) {
	l := newLedger(t)
	l.OnPriceTick(42500, time.Now().UTC())

	l.Stop()
	assert.Equal(t, 0, l.OpenOrders())
	assert.Equal(t, domain.PairStopped, l.State().Status)
	balanceInvariant(t, l)
}

func TestLedger_PauseAndResume(t *testing.T) {
	l := newLedger(t)
	l.OnPriceTick(42500, time.Now().UTC())

	l.Pause("daily loss limit")
	assert.True(t, l.Paused())
	assert.Equal(t, "daily loss limit", l.State().PauseReason)

	l.Resume()
	assert.False(t, l.Paused())
	assert.Empty(t, l.State().PauseReason)
}

func TestLedger_EquityValuesInventory(t *testing.T) {
	l := newLedger(t)
	l.OnPriceTick(42000.5, time.Now().UTC())

	// 3000 quote + 0.05 base * 42000.5
	assert.InDelta(t, 3000+0.05*42000.5, l.Equity(), 1e-6)
}

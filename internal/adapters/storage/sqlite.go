package storage

// sqlite.go: durable sink for the trading loop.
//
// Layout:
//   - `trades`: one row per executed fill, append-only. The audit trail.
//   - `grid_levels`: one row per (symbol, level), UPSERT. Mirrors the live
//     ladder so a restart can rebuild it.
//   - `pair_states`: one row per symbol, UPSERT. Latest P&L and status.
//   - `portfolio_snapshots`: periodic portfolio summary, append-only.
//   - `risk_events`: circuit breaker trips and feed losses, append-only.
//   - `price_points`: tick history backing correlation warm-up. Pruned on
//     startup; only the recent window matters.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/gridbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,
    order_id    TEXT     NOT NULL,
    symbol      TEXT     NOT NULL,
    side        TEXT     NOT NULL,
    price       REAL     NOT NULL,
    quantity    REAL     NOT NULL,
    grid_level  INTEGER  NOT NULL,
    realized    REAL     NOT NULL DEFAULT 0,
    executed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS grid_levels (
    symbol     TEXT     NOT NULL,
    level      INTEGER  NOT NULL,
    price      REAL     NOT NULL,
    status     TEXT     NOT NULL,
    buy_order  TEXT,
    sell_order TEXT,
    filled_at  DATETIME,
    PRIMARY KEY (symbol, level)
);

CREATE TABLE IF NOT EXISTS pair_states (
    symbol          TEXT PRIMARY KEY,
    status          TEXT    NOT NULL,
    pause_reason    TEXT,
    current_price   REAL    NOT NULL DEFAULT 0,
    position_size   REAL    NOT NULL DEFAULT 0,
    avg_entry       REAL    NOT NULL DEFAULT 0,
    realized_pnl    REAL    NOT NULL DEFAULT 0,
    unrealized_pnl  REAL    NOT NULL DEFAULT 0,
    trades_count    INTEGER NOT NULL DEFAULT 0,
    open_orders     INTEGER NOT NULL DEFAULT 0,
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    status       TEXT     NOT NULL,
    pause_reason TEXT,
    total        REAL     NOT NULL DEFAULT 0,
    available    REAL     NOT NULL DEFAULT 0,
    allocated    REAL     NOT NULL DEFAULT 0,
    daily_pnl    REAL     NOT NULL DEFAULT 0,
    drawdown_pct REAL     NOT NULL DEFAULT 0,
    correlations TEXT,
    taken_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_events (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    type      TEXT     NOT NULL,
    symbol    TEXT,
    reason    TEXT     NOT NULL,
    level     TEXT     NOT NULL,
    metrics   TEXT,
    at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS price_points (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT     NOT NULL,
    price  REAL     NOT NULL,
    at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_at  ON portfolio_snapshots(taken_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_at     ON risk_events(at DESC);
CREATE INDEX IF NOT EXISTS idx_prices_symbol ON price_points(symbol, at DESC);
`

const (
	retentionTrades = 90 * 24 * time.Hour
	retentionPrices = 7 * 24 * time.Hour
	retentionEvents = 30 * 24 * time.Hour
)

// SQLiteStore implements ports.Store on SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path, applies the
// schema and prunes expired rows.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveTrade appends one executed fill.
func (s *SQLiteStore) SaveTrade(ctx context.Context, t domain.Trade) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, order_id, symbol, side, price, quantity, grid_level, realized, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OrderID, t.Symbol, string(t.Side), t.Price, t.Quantity, t.GridLevel, t.RealizedPnl, t.ExecutedAt.UTC()); err != nil {
		return fmt.Errorf("storage.SaveTrade: %s: %w", t.Symbol, err)
	}
	return nil
}

// SaveGridState upserts the full ladder for a symbol in one transaction.
func (s *SQLiteStore) SaveGridState(ctx context.Context, symbol string, levels []domain.GridLevel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveGridState: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO grid_levels (symbol, level, price, status, buy_order, sell_order, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, level) DO UPDATE SET
			price      = excluded.price,
			status     = excluded.status,
			buy_order  = excluded.buy_order,
			sell_order = excluded.sell_order,
			filled_at  = excluded.filled_at
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveGridState: prepare: %w", err)
	}
	defer stmt.Close()

	for _, lv := range levels {
		var filledAt *time.Time
		if lv.FilledAt != nil {
			t := lv.FilledAt.UTC()
			filledAt = &t
		}
		if _, err := stmt.ExecContext(ctx,
			symbol, lv.Level, lv.Price, string(lv.Status), lv.BuyOrderID, lv.SellOrderID, filledAt,
		); err != nil {
			return fmt.Errorf("storage.SaveGridState: upsert %s level %d: %w", symbol, lv.Level, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveGridState: commit: %w", err)
	}
	return nil
}

// GetGridState loads a symbol's ladder ordered by level.
func (s *SQLiteStore) GetGridState(ctx context.Context, symbol string) ([]domain.GridLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, price, status, buy_order, sell_order, filled_at
		FROM grid_levels WHERE symbol = ? ORDER BY level
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("storage.GetGridState: query %s: %w", symbol, err)
	}
	defer rows.Close()

	var levels []domain.GridLevel
	for rows.Next() {
		var lv domain.GridLevel
		var status string
		var buyOrder, sellOrder sql.NullString
		var filledAt sql.NullTime
		if err := rows.Scan(&lv.Level, &lv.Price, &status, &buyOrder, &sellOrder, &filledAt); err != nil {
			return nil, fmt.Errorf("storage.GetGridState: scan row: %w", err)
		}
		lv.Status = domain.LevelStatus(status)
		lv.BuyOrderID = buyOrder.String
		lv.SellOrderID = sellOrder.String
		if filledAt.Valid {
			t := filledAt.Time.UTC()
			lv.FilledAt = &t
		}
		levels = append(levels, lv)
	}
	return levels, rows.Err()
}

// SavePairState upserts the latest per-pair summary.
func (s *SQLiteStore) SavePairState(ctx context.Context, p domain.PairState) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO pair_states
			(symbol, status, pause_reason, current_price, position_size,
			 avg_entry, realized_pnl, unrealized_pnl, trades_count, open_orders, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			status         = excluded.status,
			pause_reason   = excluded.pause_reason,
			current_price  = excluded.current_price,
			position_size  = excluded.position_size,
			avg_entry      = excluded.avg_entry,
			realized_pnl   = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl,
			trades_count   = excluded.trades_count,
			open_orders    = excluded.open_orders,
			updated_at     = excluded.updated_at
	`, p.Symbol, string(p.Status), p.PauseReason, p.CurrentPrice, p.PositionSize,
		p.AvgEntryPrice, p.RealizedPnl, p.UnrealizedPnl, p.TradesCount, p.OpenOrders,
		time.Now().UTC()); err != nil {
		return fmt.Errorf("storage.SavePairState: %s: %w", p.Symbol, err)
	}
	return nil
}

// SavePortfolioSnapshot appends a portfolio summary. The correlation matrix
// is stored as JSON; it feeds dashboards, never the core.
func (s *SQLiteStore) SavePortfolioSnapshot(ctx context.Context, snap domain.PortfolioSnapshot) error {
	corr, err := json.Marshal(snap.Correlations)
	if err != nil {
		return fmt.Errorf("storage.SavePortfolioSnapshot: marshal correlations: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio_snapshots
			(status, pause_reason, total, available, allocated, daily_pnl, drawdown_pct, correlations, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(snap.Status), snap.PauseReason, snap.TotalCapital, snap.AvailableCapital,
		snap.AllocatedCapital, snap.Risk.DailyPnl, snap.Risk.DrawdownPct, string(corr),
		snap.TakenAt.UTC()); err != nil {
		return fmt.Errorf("storage.SavePortfolioSnapshot: %w", err)
	}
	return nil
}

// LogRiskEvent appends one breaker trip or feed event.
func (s *SQLiteStore) LogRiskEvent(ctx context.Context, e domain.RiskEvent) error {
	metrics, err := json.Marshal(e.Metrics)
	if err != nil {
		return fmt.Errorf("storage.LogRiskEvent: marshal metrics: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_events (type, symbol, reason, level, metrics, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Type, e.Symbol, e.Reason, string(e.Level), string(metrics), e.At.UTC()); err != nil {
		return fmt.Errorf("storage.LogRiskEvent: %w", err)
	}
	return nil
}

// SavePricePoint appends one tick.
func (s *SQLiteStore) SavePricePoint(ctx context.Context, p domain.PricePoint) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO price_points (symbol, price, at) VALUES (?, ?, ?)
	`, p.Symbol, p.Price, p.At.UTC()); err != nil {
		return fmt.Errorf("storage.SavePricePoint: %s: %w", p.Symbol, err)
	}
	return nil
}

// GetPriceHistory returns the most recent ticks for symbol in
// chronological order.
func (s *SQLiteStore) GetPriceHistory(ctx context.Context, symbol string, limit int) ([]domain.PricePoint, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, price, at FROM (
			SELECT symbol, price, at FROM price_points
			WHERE symbol = ? ORDER BY at DESC LIMIT ?
		) ORDER BY at ASC
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetPriceHistory: query %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Symbol, &p.Price, &p.At); err != nil {
			return nil, fmt.Errorf("storage.GetPriceHistory: scan row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// pruneOld trims expired rows. Failures only log; a fat history never
// blocks startup.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	for _, p := range []struct {
		query string
		ttl   time.Duration
	}{
		{`DELETE FROM trades WHERE executed_at < ?`, retentionTrades},
		{`DELETE FROM price_points WHERE at < ?`, retentionPrices},
		{`DELETE FROM risk_events WHERE at < ?`, retentionEvents},
		{`DELETE FROM portfolio_snapshots WHERE taken_at < ?`, retentionEvents},
	} {
		if _, err := s.db.ExecContext(ctx, p.query, now.Add(-p.ttl)); err != nil {
			slog.Warn("storage: prune failed", "query", p.query, "err", err)
		}
	}
}

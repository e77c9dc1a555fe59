package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Store is the durable side-effect sink for the trading core. Failures are
// logged by callers and never abort the trading loop.
type Store interface {
	SaveTrade(ctx context.Context, t domain.Trade) error

	SaveGridState(ctx context.Context, symbol string, levels []domain.GridLevel) error
	GetGridState(ctx context.Context, symbol string) ([]domain.GridLevel, error)

	SavePairState(ctx context.Context, p domain.PairState) error
	SavePortfolioSnapshot(ctx context.Context, s domain.PortfolioSnapshot) error

	LogRiskEvent(ctx context.Context, e domain.RiskEvent) error

	SavePricePoint(ctx context.Context, p domain.PricePoint) error
	GetPriceHistory(ctx context.Context, symbol string, limit int) ([]domain.PricePoint, error)

	Close() error
}

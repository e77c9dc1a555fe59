package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// InstrumentProvider supplies tick size, step size and minimum notional per
// trading pair. Consulted once when a pair is configured; a lookup failure
// is fatal to that pair only.
type InstrumentProvider interface {
	Instrument(ctx context.Context, symbol string) (domain.Instrument, error)
}

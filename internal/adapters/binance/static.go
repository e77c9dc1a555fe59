package binance

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Static serves instrument filters from configuration. Used with the
// synthetic feed, where no exchange is reachable.
type Static struct {
	instruments map[string]domain.Instrument
}

func NewStatic(instruments []domain.Instrument) *Static {
	by := make(map[string]domain.Instrument, len(instruments))
	for _, inst := range instruments {
		by[inst.Symbol] = inst
	}
	return &Static{instruments: by}
}

func (s *Static) Instrument(_ context.Context, symbol string) (domain.Instrument, error) {
	inst, ok := s.instruments[symbol]
	if !ok {
		return domain.Instrument{}, fmt.Errorf("binance.Instrument: %s: not configured", symbol)
	}
	return inst, nil
}

package notify

import (
	"context"
	"errors"

	"github.com/alejandrodnm/gridbot/internal/domain"
	"github.com/alejandrodnm/gridbot/internal/ports"
)

// Multi fans one alert out to several sinks. Every sink gets the alert even
// when an earlier one fails; errors are joined.
type Multi struct {
	sinks []ports.Alerter
}

func NewMulti(sinks ...ports.Alerter) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Alert(ctx context.Context, level domain.AlertLevel, title, message string, metadata map[string]string) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Alert(ctx, level, title, message, metadata); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

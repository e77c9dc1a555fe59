package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Alerter delivers operator notifications. Delivery is best-effort and
// asynchronous to the trading loop; errors are logged, never propagated.
type Alerter interface {
	Alert(ctx context.Context, level domain.AlertLevel, title, message string, metadata map[string]string) error
}

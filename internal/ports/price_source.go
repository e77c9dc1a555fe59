package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// PriceSource abstracts a streaming price feed, live or synthetic. Events
// are delivered on a single channel as tagged variants; consumers process
// each event to completion before taking the next.
type PriceSource interface {
	// Subscribe starts delivering ticks for symbol. The initial
	// connect/subscribe step is the only call allowed to block on I/O.
	Subscribe(ctx context.Context, symbol string) error

	// Unsubscribe stops delivering ticks for symbol.
	Unsubscribe(symbol string) error

	// Events is the feed's output channel. It is closed when the source
	// shuts down.
	Events() <-chan domain.FeedEvent

	// Close tears the feed down and closes the events channel.
	Close() error
}

package eventstream

import (
	"context"
	"log/slog"
)

// Publisher publishes events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Emit publishes event and logs a failure instead of returning it. Event
// delivery never fails the operation that produced the event.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, event *Event) {
	if p == nil || event == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish event",
			"event_type", event.EventType,
			"subject", event.Subject,
			"error", err,
		)
	}
}

package scorequeue

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Black-And-White-Club/judgeboard/app/events"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
)

// Notifier announces committed scores.
type Notifier interface {
	NotifyScoreSaved(ctx context.Context, payload events.ScoreSavedPayloadV1) error
}

var (
	_ Notifier = (*Service)(nil)
	_ Notifier = (*BusNotifier)(nil)
)

// BusNotifier publishes directly on the event bus. It is used when the
// durable queue is disabled; a publish failure is logged and dropped.
type BusNotifier struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewBusNotifier creates a new BusNotifier.
func NewBusNotifier(publisher message.Publisher, logger *slog.Logger) *BusNotifier {
	return &BusNotifier{publisher: publisher, logger: logger}
}

// NotifyScoreSaved publishes the payload.
func (n *BusNotifier) NotifyScoreSaved(ctx context.Context, payload events.ScoreSavedPayloadV1) error {
	if n.publisher == nil {
		return nil
	}
	if err := publishScoreSaved(ctx, n.publisher, payload); err != nil {
		n.logger.WarnContext(ctx, "Dropped score saved event",
			observability.CorrelationAttr(ctx),
			slog.String("entry_id", payload.EntryID),
			observability.ErrorAttr(err),
		)
		return err
	}
	return nil
}

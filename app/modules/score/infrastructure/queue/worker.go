package scorequeue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/riverqueue/river"

	"github.com/Black-And-White-Club/judgeboard/app/events"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
)

// ScoreSavedWorker publishes ScoreSavedV1 for each queued job. A failed
// publish returns an error so River retries the job.
type ScoreSavedWorker struct {
	river.WorkerDefaults[ScoreSavedJob]
	logger    *slog.Logger
	publisher message.Publisher
}

// NewScoreSavedWorker creates a new ScoreSavedWorker.
func NewScoreSavedWorker(logger *slog.Logger, publisher message.Publisher) *ScoreSavedWorker {
	return &ScoreSavedWorker{logger: logger, publisher: publisher}
}

// Work publishes the job's payload.
func (w *ScoreSavedWorker) Work(ctx context.Context, job *river.Job[ScoreSavedJob]) error {
	if job.Args.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, job.Args.CorrelationID)
	}
	if err := publishScoreSaved(ctx, w.publisher, job.Args.Payload); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish score saved event",
			slog.Int64("job_id", job.ID),
			slog.Int("attempt", job.Attempt),
			observability.ErrorAttr(err),
		)
		return err
	}
	w.logger.DebugContext(ctx, "Published score saved event",
		slog.Int64("job_id", job.ID),
		slog.String("entry_id", job.Args.Payload.EntryID),
	)
	return nil
}

func publishScoreSaved(ctx context.Context, publisher message.Publisher, payload events.ScoreSavedPayloadV1) error {
	msg, err := events.NewMessage(ctx, payload)
	if err != nil {
		return err
	}
	if err := publisher.Publish(events.ScoreSavedV1, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", events.ScoreSavedV1, err)
	}
	return nil
}

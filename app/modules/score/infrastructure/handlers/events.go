package scorehandlers

import (
	"errors"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Black-And-White-Club/judgeboard/app/events"
)

// ScoreEventHandlers tallies committed scores per status.
type ScoreEventHandlers struct {
	logger *slog.Logger
	saved  *prometheus.CounterVec
}

// NewScoreEventHandlers registers the saved-score counter on reg.
func NewScoreEventHandlers(logger *slog.Logger, reg prometheus.Registerer) (*ScoreEventHandlers, error) {
	saved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judgeboard",
		Subsystem: "score",
		Name:      "saved_total",
		Help:      "Committed score saves by derived status.",
	}, []string{"status"})
	if reg != nil {
		if err := reg.Register(saved); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			saved = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return &ScoreEventHandlers{logger: logger, saved: saved}, nil
}

// HandleScoreSaved counts a ScoreSavedV1 event. Malformed payloads are
// logged and acknowledged so they are not redelivered forever.
func (h *ScoreEventHandlers) HandleScoreSaved(msg *message.Message) error {
	payload, err := events.Decode[events.ScoreSavedPayloadV1](msg)
	if err != nil {
		h.logger.Error("Dropping malformed score saved event",
			slog.String("message_id", msg.UUID),
			slog.Any("error", err),
		)
		return nil
	}

	h.saved.WithLabelValues(payload.Status).Inc()
	h.logger.Debug("Score saved",
		slog.String("correlation_id", middleware.MessageCorrelationID(msg)),
		slog.String("entry_id", payload.EntryID),
		slog.String("judge_id", payload.JudgeID),
		slog.String("status", payload.Status),
		slog.Int("total", payload.Total),
	)
	return nil
}

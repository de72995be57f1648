package scorerouter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Black-And-White-Club/judgeboard/app/events"
	scorehandlers "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/handlers"
)

// ScoreRouter consumes score events from the bus.
type ScoreRouter struct {
	logger         *slog.Logger
	Router         *message.Router
	subscriber     message.Subscriber
	metricsBuilder *metrics.PrometheusMetricsBuilder
}

// NewScoreRouter creates a ScoreRouter. Router metrics are skipped when
// registry is nil.
func NewScoreRouter(
	logger *slog.Logger,
	router *message.Router,
	subscriber message.Subscriber,
	registry *prometheus.Registry,
) *ScoreRouter {
	var metricsBuilder *metrics.PrometheusMetricsBuilder
	if registry != nil {
		builder := metrics.NewPrometheusMetricsBuilder(registry, "judgeboard", "score_router")
		metricsBuilder = &builder
	}
	return &ScoreRouter{
		logger:         logger,
		Router:         router,
		subscriber:     subscriber,
		metricsBuilder: metricsBuilder,
	}
}

// Configure adds middleware and registers the score event handlers.
func (r *ScoreRouter) Configure(ctx context.Context, handlers scorehandlers.EventHandlers) error {
	if r.metricsBuilder != nil {
		r.logger.Info("Adding Prometheus router metrics middleware")
		r.metricsBuilder.AddPrometheusRouterMetrics(r.Router)
	}

	r.Router.AddMiddleware(
		middleware.CorrelationID,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
		}.Middleware,
	)

	if err := r.RegisterHandlers(ctx, handlers); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}
	return nil
}

// RegisterHandlers registers event handlers using V1 versioned event constants.
func (r *ScoreRouter) RegisterHandlers(ctx context.Context, handlers scorehandlers.EventHandlers) error {
	eventsToHandlers := map[string]message.NoPublishHandlerFunc{
		events.ScoreSavedV1: handlers.HandleScoreSaved,
	}

	// Score handlers only consume, so they register without a publisher.
	for topic, handlerFunc := range eventsToHandlers {
		handlerName := fmt.Sprintf("score.%s", topic)
		r.Router.AddNoPublisherHandler(
			handlerName,
			topic,
			r.subscriber,
			func(msg *message.Message) error {
				if err := handlerFunc(msg); err != nil {
					r.logger.ErrorContext(ctx, "Error processing message",
						slog.String("message_id", msg.UUID),
						slog.Any("error", err),
					)
					return err
				}
				return nil
			},
		)
	}
	return nil
}

// Close stops the router.
func (r *ScoreRouter) Close() error {
	return r.Router.Close()
}

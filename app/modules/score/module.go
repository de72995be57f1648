package score

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/judgeboard/app/eventbus"
	scoreservice "github.com/Black-And-White-Club/judgeboard/app/modules/score/application"
	scorehandlers "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/handlers"
	scorequeue "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/queue"
	scoredb "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/repositories"
	scorerouter "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/router"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/config"
)

// Module represents the score module.
type Module struct {
	ScoreService  scoreservice.Service
	Repository    scoredb.Repository
	ScoreRouter   *scorerouter.ScoreRouter
	queue         *scorequeue.Service
	cancelFunc    context.CancelFunc
	observability *observability.Observability
}

// NewScoreModule wires the score repository, service, HTTP routes, the
// score-saved notifier and the bus consumer. apiRouter must already
// authenticate callers.
func NewScoreModule(
	ctx context.Context,
	cfg *config.Config,
	obs *observability.Observability,
	eventBus eventbus.EventBus,
	db *bun.DB,
	router *message.Router,
	apiRouter chi.Router,
	entries scoreservice.EntryReader,
) (*Module, error) {
	logger := obs.Logger
	tracer := obs.Tracer

	logger.InfoContext(ctx, "score.NewScoreModule initializing")

	if apiRouter == nil {
		return nil, fmt.Errorf("score module requires an HTTP router")
	}

	repo := scoredb.NewRepository(db)
	metrics := observability.NewOperationMetrics(obs.Registry, "score")

	// Notifications go through River when enabled so they survive a broker outage.
	var (
		notifier scoreservice.Notifier
		queue    *scorequeue.Service
	)
	if cfg.Queue.Enabled {
		q, err := scorequeue.NewService(ctx, logger, cfg.Postgres.DSN, observability.NewOperationMetrics(obs.Registry, "score_queue"), eventBus)
		if err != nil {
			return nil, fmt.Errorf("failed to create score queue: %w", err)
		}
		queue = q
		notifier = q
	} else {
		notifier = scorequeue.NewBusNotifier(eventBus, logger)
	}

	service := scoreservice.NewScoreService(repo, entries, notifier, logger, metrics, tracer, db, cfg.Scoring.MaxScore)

	handlers := scorehandlers.NewScoreHandlers(service, logger, tracer)
	apiRouter.Put("/events/{eventID}/entries/{entryID}/scores", handlers.HandleSaveScores)
	apiRouter.Get("/events/{eventID}/judges/{judgeID}/entries", handlers.HandleListEntries)

	eventHandlers, err := scorehandlers.NewScoreEventHandlers(logger, obs.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create score event handlers: %w", err)
	}
	scoreRouter := scorerouter.NewScoreRouter(logger, router, eventBus, obs.Registry)
	if err := scoreRouter.Configure(ctx, eventHandlers); err != nil {
		return nil, fmt.Errorf("failed to configure score router: %w", err)
	}

	return &Module{
		ScoreService:  service,
		Repository:    repo,
		ScoreRouter:   scoreRouter,
		queue:         queue,
		observability: obs,
	}, nil
}

// Run starts the score module and its job queue.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	logger := m.observability.Logger
	logger.InfoContext(ctx, "Starting score module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	if m.queue != nil {
		if err := m.queue.Start(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to start score queue", observability.ErrorAttr(err))
		}
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Score module goroutine stopped")
}

// Close shuts down the score module.
func (m *Module) Close() error {
	logger := m.observability.Logger
	logger.Info("Stopping score module")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	if m.queue != nil {
		if err := m.queue.Stop(context.Background()); err != nil {
			logger.Error("Failed to stop score queue", observability.ErrorAttr(err))
		}
	}

	logger.Info("Score module stopped")
	return nil
}

package entry

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/judgeboard/app/eventbus"
	"github.com/Black-And-White-Club/judgeboard/app/identity"
	entryservice "github.com/Black-And-White-Club/judgeboard/app/modules/entry/application"
	entryhandlers "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/handlers"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/pkg/jwt"
)

// Module represents the entry module.
type Module struct {
	EntryService  entryservice.Service
	Repository    entrydb.Repository
	cancelFunc    context.CancelFunc
	observability *observability.Observability
}

// NewEntryModule wires the entry repository, service and HTTP routes.
// apiRouter must already authenticate callers.
func NewEntryModule(
	ctx context.Context,
	obs *observability.Observability,
	eventBus eventbus.EventBus,
	db *bun.DB,
	apiRouter chi.Router,
) (*Module, error) {
	logger := obs.Logger
	tracer := obs.Tracer

	logger.InfoContext(ctx, "entry.NewEntryModule initializing")

	// 1. Initialize Repository
	repo := entrydb.NewRepository(db)

	// 2. Initialize Metrics
	metrics := observability.NewOperationMetrics(obs.Registry, "entry")

	// 3. Initialize Service
	service := entryservice.NewEntryService(repo, eventBus, logger, metrics, tracer, db)

	// 4. Initialize Handlers
	handlers := entryhandlers.NewEntryHandlers(service, logger, tracer)

	// 5. Register HTTP routes
	if apiRouter == nil {
		return nil, fmt.Errorf("entry module requires an HTTP router")
	}
	apiRouter.Get("/entries/{entryID}", handlers.HandleGetEntry)
	apiRouter.With(identity.RequireRole(jwt.RoleCoordinator)).
		Put("/entries/{entryID}/position", handlers.HandleReposition)

	return &Module{
		EntryService:  service,
		Repository:    repo,
		observability: obs,
	}, nil
}

// Run starts the entry module.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	logger := m.observability.Logger
	logger.InfoContext(ctx, "Starting entry module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Entry module goroutine stopped")
}

// Close shuts down the entry module.
func (m *Module) Close() error {
	logger := m.observability.Logger
	logger.Info("Stopping entry module")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	logger.Info("Entry module stopped")
	return nil
}

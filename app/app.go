// Package app wires the judging server: store, event bus, modules and the
// HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/judgeboard/app/eventbus"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/config"
	"github.com/Black-And-White-Club/judgeboard/internal/db/bundb"
	"github.com/Black-And-White-Club/judgeboard/internal/modules"
	"github.com/Black-And-White-Club/judgeboard/pkg/jwt"
)

// App holds the running server's components.
type App struct {
	Config          *config.Config
	Observability   *observability.Observability
	DB              *bun.DB
	EventBus        *eventbus.Bus
	WatermillRouter *message.Router
	Modules         *modules.ModuleRegistry
	HTTPServer      *http.Server

	wg sync.WaitGroup
}

// NewApp connects to the store and bus and initializes every module.
func NewApp(ctx context.Context, cfg *config.Config, obs *observability.Observability) (*App, error) {
	logger := obs.Logger

	db, err := bundb.Open(ctx, cfg.Postgres.DSN, logger)
	if err != nil {
		return nil, err
	}

	bus, err := eventbus.NewEventBus(ctx, cfg.NATS.URL, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, watermill.NewSlogLogger(logger))
	if err != nil {
		bus.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create Watermill router: %w", err)
	}

	var tokens jwt.Service
	if cfg.JWT.Secret != "" {
		tokens = jwt.NewService(cfg.JWT.Secret, cfg.JWT.DefaultTTL)
	} else {
		logger.WarnContext(ctx, "No JWT secret configured, trusting identity headers")
	}

	httpRouter, apiRouter := NewHTTPRouter(cfg, obs, tokens)

	registry, err := modules.NewModuleRegistry(ctx, cfg, obs, bus, db, router, apiRouter)
	if err != nil {
		router.Close()
		bus.Close()
		db.Close()
		return nil, err
	}

	return &App{
		Config:          cfg,
		Observability:   obs,
		DB:              db,
		EventBus:        bus,
		WatermillRouter: router,
		Modules:         registry,
		HTTPServer: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpRouter,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run starts modules, the Watermill router and the HTTP server, and blocks
// until ctx is cancelled or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	logger := a.Observability.Logger

	for _, m := range a.Modules.All() {
		a.wg.Add(1)
		go m.Run(ctx, &a.wg)
	}

	routerErr := make(chan error, 1)
	go func() {
		routerErr <- a.WatermillRouter.Run(ctx)
	}()
	select {
	case <-a.WatermillRouter.Running():
	case err := <-routerErr:
		return fmt.Errorf("watermill router stopped: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "HTTP server listening", slog.String("addr", a.HTTPServer.Addr))
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case err := <-routerErr:
		return fmt.Errorf("watermill router stopped: %w", err)
	}
}

// Close shuts components down in reverse dependency order.
func (a *App) Close(ctx context.Context) {
	logger := a.Observability.Logger

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		logger.ErrorContext(ctx, "HTTP server shutdown failed", slog.Any("error", err))
	}
	for _, m := range a.Modules.All() {
		if err := m.Close(); err != nil {
			logger.ErrorContext(ctx, "Module close failed", slog.Any("error", err))
		}
	}
	a.wg.Wait()

	if err := a.WatermillRouter.Close(); err != nil {
		logger.ErrorContext(ctx, "Watermill router close failed", slog.Any("error", err))
	}
	if err := a.EventBus.Close(); err != nil {
		logger.ErrorContext(ctx, "Event bus close failed", slog.Any("error", err))
	}
	if err := a.DB.Close(); err != nil {
		logger.ErrorContext(ctx, "Database close failed", slog.Any("error", err))
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		logger.ErrorContext(ctx, "Metrics server shutdown failed", slog.Any("error", err))
	}
	logger.InfoContext(ctx, "Application shut down")
}

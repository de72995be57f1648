package modules

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/judgeboard/app/eventbus"
	"github.com/Black-And-White-Club/judgeboard/app/modules/entry"
	"github.com/Black-And-White-Club/judgeboard/app/modules/score"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/config"
)

// ModuleRegistry stores and manages application modules.
type ModuleRegistry struct {
	EntryModule *entry.Module
	ScoreModule *score.Module
}

var (
	_ Module = (*entry.Module)(nil)
	_ Module = (*score.Module)(nil)
)

// NewModuleRegistry initializes every module. Scoring reads entries through
// the entry module's repository.
func NewModuleRegistry(
	ctx context.Context,
	cfg *config.Config,
	obs *observability.Observability,
	eventBus eventbus.EventBus,
	db *bun.DB,
	router *message.Router,
	apiRouter chi.Router,
) (*ModuleRegistry, error) {
	entryModule, err := entry.NewEntryModule(ctx, obs, eventBus, db, apiRouter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize entry module: %w", err)
	}

	scoreModule, err := score.NewScoreModule(ctx, cfg, obs, eventBus, db, router, apiRouter, entryModule.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize score module: %w", err)
	}

	return &ModuleRegistry{
		EntryModule: entryModule,
		ScoreModule: scoreModule,
	}, nil
}

// All returns the modules in start order.
func (r *ModuleRegistry) All() []Module {
	return []Module{r.EntryModule, r.ScoreModule}
}

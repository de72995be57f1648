package scorerouter

import (
	"context"

	scorehandlers "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/handlers"
)

// Router interface for score event routing.
type Router interface {
	Configure(ctx context.Context, handlers scorehandlers.EventHandlers) error
	Close() error
}

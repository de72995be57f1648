package entryservice

import (
	"context"

	"github.com/google/uuid"

	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
)

// Service defines the entry operations exposed to handlers.
type Service interface {
	// Reposition moves an entry to a target position, shifting others as needed.
	Reposition(ctx context.Context, entryID uuid.UUID, targetPosition int) (*RepositionResult, error)

	// GetEntry returns a single entry.
	GetEntry(ctx context.Context, entryID uuid.UUID) (*entrydb.Entry, error)

	// ListEntries returns an event's entries in position order.
	ListEntries(ctx context.Context, eventID uuid.UUID) ([]entrydb.Entry, error)
}

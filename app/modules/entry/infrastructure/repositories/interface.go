package entrydb

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository defines the contract for entry persistence.
type Repository interface {
	// GetEntry retrieves an entry by id.
	GetEntry(ctx context.Context, db bun.IDB, entryID uuid.UUID) (*Entry, error)

	// ListEntriesByEvent returns an event's entries ordered by position, unplaced last.
	ListEntriesByEvent(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]Entry, error)

	// UpdatePosition assigns one entry's position. A uniqueness violation is
	// reported as ErrPositionTaken.
	UpdatePosition(ctx context.Context, db bun.IDB, entryID uuid.UUID, position int) error

	// AcquireEventLock takes a transaction-scoped advisory lock for the event.
	// Must be called within a transaction.
	AcquireEventLock(ctx context.Context, db bun.IDB, eventID uuid.UUID) error

	// CreateEvent inserts an event.
	CreateEvent(ctx context.Context, db bun.IDB, event *Event) error

	// CreateEntries inserts entries.
	CreateEntries(ctx context.Context, db bun.IDB, entries []Entry) error
}

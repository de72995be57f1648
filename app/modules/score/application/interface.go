package scoreservice

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/judgeboard/app/events"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
)

// Service defines the contract for scoring operations.
type Service interface {
	// SaveScores upserts a judge's values for an entry and returns the
	// re-derived status.
	SaveScores(ctx context.Context, req SaveScoresRequest) (*SaveScoresResult, error)

	// ListEntriesWithStatus returns every entry of an event with the judge's
	// values and derived status.
	ListEntriesWithStatus(ctx context.Context, eventID uuid.UUID, judgeID string) (*Listing, error)
}

// EntryReader is the slice of the entry repository scoring needs.
type EntryReader interface {
	GetEntry(ctx context.Context, db bun.IDB, entryID uuid.UUID) (*entrydb.Entry, error)
	ListEntriesByEvent(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]entrydb.Entry, error)
}

// Notifier announces committed scores.
type Notifier interface {
	NotifyScoreSaved(ctx context.Context, payload events.ScoreSavedPayloadV1) error
}

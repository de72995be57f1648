package scoredb

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository defines the contract for score persistence.
type Repository interface {
	// ListCategories returns an event's categories in display order.
	ListCategories(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]Category, error)

	// GetScore returns a judge's score for an entry with its items.
	GetScore(ctx context.Context, db bun.IDB, judgeID string, entryID uuid.UUID) (*Score, error)

	// ListScoresForJudge returns every score a judge holds in an event, with items.
	ListScoresForJudge(ctx context.Context, db bun.IDB, eventID uuid.UUID, judgeID string) ([]Score, error)

	// GetScoreItems reads a score's items directly, bypassing any loaded relation.
	GetScoreItems(ctx context.Context, db bun.IDB, scoreID uuid.UUID) ([]ScoreItem, error)

	// UpsertScore creates the (judge, entry) score or touches the existing one
	// and returns its id.
	UpsertScore(ctx context.Context, db bun.IDB, score *Score) (uuid.UUID, error)

	// UpsertScoreItems writes item values keyed by (score, category).
	UpsertScoreItems(ctx context.Context, db bun.IDB, items []ScoreItem) error

	// CreateCategories inserts categories.
	CreateCategories(ctx context.Context, db bun.IDB, categories []Category) error
}

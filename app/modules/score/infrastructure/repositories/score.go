package scoredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new score repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

// resolveDB returns the provided db handle, falling back to the repository's
// default connection if db is nil.
func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *Impl) ListCategories(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]Category, error) {
	db = r.resolveDB(db)
	var categories []Category
	err := db.NewSelect().
		Model(&categories).
		Where("event_id = ?", eventID).
		Order("display_order ASC", "name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("score.ListCategories: %w", err)
	}
	return categories, nil
}

func (r *Impl) GetScore(ctx context.Context, db bun.IDB, judgeID string, entryID uuid.UUID) (*Score, error) {
	db = r.resolveDB(db)
	score := new(Score)
	err := db.NewSelect().
		Model(score).
		Relation("Items").
		Where("s.judge_id = ?", judgeID).
		Where("s.entry_id = ?", entryID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("score.GetScore: %w", err)
	}
	return score, nil
}

func (r *Impl) ListScoresForJudge(ctx context.Context, db bun.IDB, eventID uuid.UUID, judgeID string) ([]Score, error) {
	db = r.resolveDB(db)
	var scores []Score
	err := db.NewSelect().
		Model(&scores).
		Relation("Items").
		Where("s.event_id = ?", eventID).
		Where("s.judge_id = ?", judgeID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("score.ListScoresForJudge: %w", err)
	}
	return scores, nil
}

func (r *Impl) GetScoreItems(ctx context.Context, db bun.IDB, scoreID uuid.UUID) ([]ScoreItem, error) {
	db = r.resolveDB(db)
	var items []ScoreItem
	err := db.NewSelect().
		Model(&items).
		Where("score_id = ?", scoreID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("score.GetScoreItems: %w", err)
	}
	return items, nil
}

func (r *Impl) UpsertScore(ctx context.Context, db bun.IDB, score *Score) (uuid.UUID, error) {
	db = r.resolveDB(db)
	if score.ID == uuid.Nil {
		score.ID = uuid.New()
	}
	score.UpdatedAt = time.Now().UTC()

	var id uuid.UUID
	err := db.NewInsert().
		Model(score).
		On("CONFLICT (judge_id, entry_id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id").
		Scan(ctx, &id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("score.UpsertScore: %w", err)
	}
	score.ID = id
	return id, nil
}

func (r *Impl) UpsertScoreItems(ctx context.Context, db bun.IDB, items []ScoreItem) error {
	if len(items) == 0 {
		return nil
	}
	db = r.resolveDB(db)
	now := time.Now().UTC()
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].UpdatedAt = now
	}

	_, err := db.NewInsert().
		Model(&items).
		On("CONFLICT (score_id, category_id) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("score.UpsertScoreItems: %w", err)
	}
	return nil
}

func (r *Impl) CreateCategories(ctx context.Context, db bun.IDB, categories []Category) error {
	if len(categories) == 0 {
		return nil
	}
	db = r.resolveDB(db)
	for i := range categories {
		if categories[i].ID == uuid.Nil {
			categories[i].ID = uuid.New()
		}
	}
	if _, err := db.NewInsert().Model(&categories).Exec(ctx); err != nil {
		return fmt.Errorf("score.CreateCategories: %w", err)
	}
	return nil
}

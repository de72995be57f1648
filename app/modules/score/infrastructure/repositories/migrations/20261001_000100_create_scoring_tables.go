package scoremigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating categories, scores and score_items tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS categories (
					id UUID PRIMARY KEY,
					event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					display_order INTEGER NOT NULL DEFAULT 0,
					required BOOLEAN NOT NULL DEFAULT TRUE,
					has_none_option BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE (event_id, name)
				);
			`); err != nil {
				return fmt.Errorf("failed to create categories table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS scores (
					id UUID PRIMARY KEY,
					event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
					entry_id UUID NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
					judge_id TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (judge_id, entry_id)
				);
				CREATE INDEX IF NOT EXISTS idx_scores_event_judge ON scores(event_id, judge_id);
			`); err != nil {
				return fmt.Errorf("failed to create scores table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS score_items (
					id UUID PRIMARY KEY,
					score_id UUID NOT NULL REFERENCES scores(id) ON DELETE CASCADE,
					category_id UUID NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
					value INTEGER CHECK (value IS NULL OR value >= 0),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (score_id, category_id)
				);
			`); err != nil {
				return fmt.Errorf("failed to create score_items table: %w", err)
			}

			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping scoring tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, table := range []string{"score_items", "scores", "categories"} {
				if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+";"); err != nil {
					return fmt.Errorf("failed to drop %s: %w", table, err)
				}
			}
			return nil
		})
	})
}

package entrymigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating events and entries tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS events (
					id UUID PRIMARY KEY,
					name TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`); err != nil {
				return fmt.Errorf("failed to create events table: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS entries (
					id UUID PRIMARY KEY,
					event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					organization TEXT,
					approved BOOLEAN NOT NULL DEFAULT FALSE,
					position INTEGER,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_entries_event_id ON entries(event_id);
			`); err != nil {
				return fmt.Errorf("failed to create entries table: %w", err)
			}

			// 0 is a swap placeholder and 999 marks unplaced entries; both may repeat.
			if _, err := tx.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_entries_event_position
				ON entries(event_id, position)
				WHERE position IS NOT NULL AND position <> 0 AND position <> 999;
			`); err != nil {
				return fmt.Errorf("failed to create position index: %w", err)
			}

			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping events and entries tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS entries;`); err != nil {
				return fmt.Errorf("failed to drop entries table: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS events;`); err != nil {
				return fmt.Errorf("failed to drop events table: %w", err)
			}
			return nil
		})
	})
}

package entrydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	// ErrNotFound is returned when an entry is not found.
	ErrNotFound = errors.New("entry not found")
	// ErrPositionTaken is returned when the store rejects a duplicate position.
	ErrPositionTaken = errors.New("position already taken")
)

const uniqueViolation = "23505"

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new entry repository.
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

func (r *Impl) GetEntry(ctx context.Context, db bun.IDB, entryID uuid.UUID) (*Entry, error) {
	db = r.resolveDB(db)
	entry := new(Entry)
	err := db.NewSelect().
		Model(entry).
		Where("id = ?", entryID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("entry.GetEntry: %w", err)
	}
	return entry, nil
}

func (r *Impl) ListEntriesByEvent(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]Entry, error) {
	db = r.resolveDB(db)
	var entries []Entry
	err := db.NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		OrderExpr("position ASC NULLS LAST").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("entry.ListEntriesByEvent: %w", err)
	}
	return entries, nil
}

func (r *Impl) UpdatePosition(ctx context.Context, db bun.IDB, entryID uuid.UUID, position int) error {
	db = r.resolveDB(db)
	result, err := db.NewUpdate().
		Model((*Entry)(nil)).
		Set("position = ?", position).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", entryID).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entry.UpdatePosition %s -> %d: %w", entryID, position, ErrPositionTaken)
		}
		return fmt.Errorf("entry.UpdatePosition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Impl) AcquireEventLock(ctx context.Context, db bun.IDB, eventID uuid.UUID) error {
	db = r.resolveDB(db)
	// hashtext() gives a stable int8 key from the event id
	_, err := db.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", eventID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("entry.AcquireEventLock: %w", err)
	}
	return nil
}

func (r *Impl) CreateEvent(ctx context.Context, db bun.IDB, event *Event) error {
	db = r.resolveDB(db)
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if _, err := db.NewInsert().Model(event).Exec(ctx); err != nil {
		return fmt.Errorf("entry.CreateEvent: %w", err)
	}
	return nil
}

func (r *Impl) CreateEntries(ctx context.Context, db bun.IDB, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	db = r.resolveDB(db)
	for i := range entries {
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
	}
	if _, err := db.NewInsert().Model(&entries).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entry.CreateEntries: %w", ErrPositionTaken)
		}
		return fmt.Errorf("entry.CreateEntries: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}

package entrydb

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	entrydomain "github.com/Black-And-White-Club/judgeboard/app/modules/entry/domain"
)

// Event owns a set of entries and their ordinal sequence.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:ev"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Entry is a judged item within an event.
type Entry struct {
	bun.BaseModel `bun:"table:entries,alias:e"`

	ID           uuid.UUID `bun:"id,pk,type:uuid"`
	EventID      uuid.UUID `bun:"event_id,type:uuid,notnull"`
	Name         string    `bun:"name,notnull"`
	Organization *string   `bun:"organization"`
	Approved     bool      `bun:"approved,notnull"`
	Position     *int      `bun:"position"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// OrganizationName returns the organization or "" when unset.
func (e *Entry) OrganizationName() string {
	if e.Organization == nil {
		return ""
	}
	return *e.Organization
}

// Slot projects the entry onto the reorder domain.
func (e *Entry) Slot() entrydomain.Slot {
	return entrydomain.Slot{EntryID: e.ID.String(), Position: e.Position}
}

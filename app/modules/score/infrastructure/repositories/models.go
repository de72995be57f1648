package scoredb

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
)

// Category is a scoring dimension configured for an event.
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	EventID       uuid.UUID `bun:"event_id,type:uuid,notnull"`
	Name          string    `bun:"name,notnull"`
	DisplayOrder  int       `bun:"display_order,notnull"`
	Required      bool      `bun:"required,notnull"`
	HasNoneOption bool      `bun:"has_none_option,notnull"`
}

// Domain projects the row onto the scoring domain.
func (c *Category) Domain() scoredomain.Category {
	return scoredomain.Category{
		ID:            c.ID.String(),
		EventID:       c.EventID.String(),
		Name:          c.Name,
		DisplayOrder:  c.DisplayOrder,
		Required:      c.Required,
		HasNoneOption: c.HasNoneOption,
	}
}

// Score is one judge's scoring of one entry.
type Score struct {
	bun.BaseModel `bun:"table:scores,alias:s"`

	ID        uuid.UUID   `bun:"id,pk,type:uuid"`
	EventID   uuid.UUID   `bun:"event_id,type:uuid,notnull"`
	EntryID   uuid.UUID   `bun:"entry_id,type:uuid,notnull"`
	JudgeID   string      `bun:"judge_id,notnull"`
	Items     []ScoreItem `bun:"rel:has-many,join:id=score_id"`
	CreatedAt time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time   `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// ScoreItem holds one category's value within a score. A NULL value is unanswered.
type ScoreItem struct {
	bun.BaseModel `bun:"table:score_items,alias:si"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	ScoreID    uuid.UUID `bun:"score_id,type:uuid,notnull"`
	CategoryID uuid.UUID `bun:"category_id,type:uuid,notnull"`
	Value      *int      `bun:"value"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

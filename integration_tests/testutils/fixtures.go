package testutils

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	scoredb "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/repositories"
)

// SeedEvent inserts an event with one approved entry per position. A nil
// position leaves the entry unplaced.
func (env *TestEnvironment) SeedEvent(t *testing.T, positions ...*int) (entrydb.Event, []entrydb.Entry) {
	t.Helper()

	event := entrydb.Event{ID: uuid.New(), Name: gofakeit.BuzzWord() + " Showcase"}
	repo := entrydb.NewRepository(env.DB)
	if err := repo.CreateEvent(env.Ctx, nil, &event); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	entries := make([]entrydb.Entry, len(positions))
	for i, p := range positions {
		org := gofakeit.Company()
		entries[i] = entrydb.Entry{
			ID:           uuid.New(),
			EventID:      event.ID,
			Name:         gofakeit.Name(),
			Organization: &org,
			Approved:     true,
			Position:     p,
		}
	}
	if len(entries) > 0 {
		if err := repo.CreateEntries(env.Ctx, nil, entries); err != nil {
			t.Fatalf("failed to create entries: %v", err)
		}
	}
	return event, entries
}

// SeedCategories adds categories to an event in display order.
func (env *TestEnvironment) SeedCategories(t *testing.T, eventID uuid.UUID, specs ...CategorySpec) []scoredb.Category {
	t.Helper()

	rows := make([]scoredb.Category, len(specs))
	for i, spec := range specs {
		rows[i] = scoredb.Category{
			ID:            uuid.New(),
			EventID:       eventID,
			Name:          spec.Name,
			DisplayOrder:  i + 1,
			Required:      spec.Required,
			HasNoneOption: spec.HasNoneOption,
		}
	}
	if err := scoredb.NewRepository(env.DB).CreateCategories(env.Ctx, nil, rows); err != nil {
		t.Fatalf("failed to create categories: %v", err)
	}
	return rows
}

// CategorySpec describes a category to seed.
type CategorySpec struct {
	Name          string
	Required      bool
	HasNoneOption bool
}

// Positions returns pointers to the given ints.
func Positions(ps ...int) []*int {
	out := make([]*int, len(ps))
	for i := range ps {
		p := ps[i]
		out[i] = &p
	}
	return out
}

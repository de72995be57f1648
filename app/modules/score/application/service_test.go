package scoreservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace/noop"

	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	scoredb "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/repositories"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
)

type fixture struct {
	eventID  uuid.UUID
	repo     *FakeScoreRepo
	entries  *FakeEntries
	notifier *FakeNotifier
	svc      *ScoreService
}

func newFixture(t *testing.T, entries ...entrydb.Entry) *fixture {
	t.Helper()
	eventID := uuid.New()
	for i := range entries {
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
		entries[i].EventID = eventID
	}

	repo := NewFakeScoreRepo()
	require.NoError(t, repo.CreateCategories(context.Background(), nil, []scoredb.Category{
		{EventID: eventID, Name: "Costume", DisplayOrder: 1, Required: true},
		{EventID: eventID, Name: "Stage", DisplayOrder: 2, Required: true},
		{EventID: eventID, Name: "Bonus", DisplayOrder: 3, HasNoneOption: true},
	}))

	f := &fixture{
		eventID:  eventID,
		repo:     repo,
		entries:  &FakeEntries{entries: entries},
		notifier: &FakeNotifier{},
	}
	f.svc = NewScoreService(
		repo,
		f.entries,
		f.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewNoopOperationMetrics(),
		noop.NewTracerProvider().Tracer("test"),
		nil,
		10,
	)
	return f
}

func org(name string) *string { return &name }

func newEntry(organization *string) entrydb.Entry {
	return entrydb.Entry{ID: uuid.New(), Name: gofakeit.BeerName(), Organization: organization, Approved: true}
}

func TestSaveScores(t *testing.T) {
	tests := []struct {
		name   string
		values scoredomain.Values
		want   scoredomain.Status
		total  int
	}{
		{
			name:   "all required positive",
			values: scoredomain.Values{"Costume": scoredomain.Of(4), "Stage": scoredomain.Of(6)},
			want:   scoredomain.StatusComplete,
			total:  10,
		},
		{
			name:   "all required zero is a no-show",
			values: scoredomain.Values{"Costume": scoredomain.None(), "Stage": scoredomain.None()},
			want:   scoredomain.StatusNoShow,
		},
		{
			name:   "zero next to a positive is complete",
			values: scoredomain.Values{"Costume": scoredomain.None(), "Stage": scoredomain.Of(5)},
			want:   scoredomain.StatusComplete,
			total:  5,
		},
		{
			name:   "one required missing",
			values: scoredomain.Values{"Costume": scoredomain.Of(3), "Bonus": scoredomain.Of(2)},
			want:   scoredomain.StatusIncomplete,
			total:  5,
		},
		{
			name:   "explicit nulls only",
			values: scoredomain.Values{"Costume": scoredomain.Unanswered()},
			want:   scoredomain.StatusNotStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := newEntry(org(gofakeit.Company()))
			f := newFixture(t, entry)

			res, err := f.svc.SaveScores(context.Background(), SaveScoresRequest{
				EventID: f.eventID,
				EntryID: entry.ID,
				JudgeID: "judge-1",
				Values:  tt.values,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.total, res.Total)
			require.Len(t, f.notifier.Payloads(), 1)
			assert.Equal(t, string(tt.want), f.notifier.Payloads()[0].Status)
		})
	}
}

func TestSaveScoresPartialUpdateKeepsOtherCategories(t *testing.T) {
	entry := newEntry(org("Riverside"))
	f := newFixture(t, entry)
	ctx := context.Background()

	_, err := f.svc.SaveScores(ctx, SaveScoresRequest{EventID: f.eventID, EntryID: entry.ID, JudgeID: "j", Values: scoredomain.Values{"Costume": scoredomain.Of(7)}})
	require.NoError(t, err)

	res, err := f.svc.SaveScores(ctx, SaveScoresRequest{EventID: f.eventID, EntryID: entry.ID, JudgeID: "j", Values: scoredomain.Values{"Stage": scoredomain.Of(2)}})
	require.NoError(t, err)

	assert.Equal(t, scoredomain.StatusComplete, res.Status)
	assert.Equal(t, 9, res.Total)
}

func TestSaveScoresIsIdempotent(t *testing.T) {
	entry := newEntry(org("Riverside"))
	f := newFixture(t, entry)
	req := SaveScoresRequest{EventID: f.eventID, EntryID: entry.ID, JudgeID: "j", Values: scoredomain.Values{"Costume": scoredomain.Of(3)}}

	first, err := f.svc.SaveScores(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.SaveScores(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ScoreID, second.ScoreID)
	assert.Equal(t, first.Values, second.Values)
}

func TestSaveScoresValidation(t *testing.T) {
	entry := newEntry(org("Riverside"))

	tests := []struct {
		name   string
		judge  string
		values scoredomain.Values
	}{
		{name: "above maximum", judge: "j", values: scoredomain.Values{"Costume": scoredomain.Of(11)}},
		{name: "negative", judge: "j", values: scoredomain.Values{"Costume": scoredomain.Of(-2)}},
		{name: "unknown category", judge: "j", values: scoredomain.Values{"Choreography": scoredomain.Of(2)}},
		{name: "missing judge", judge: "", values: scoredomain.Values{"Costume": scoredomain.Of(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, entry)
			_, err := f.svc.SaveScores(context.Background(), SaveScoresRequest{
				EventID: f.eventID,
				EntryID: entry.ID,
				JudgeID: tt.judge,
				Values:  tt.values,
			})
			var verr *scoredomain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotContains(t, f.repo.Trace(), "UpsertScore")
			assert.Empty(t, f.notifier.Payloads())
		})
	}
}

func TestSaveScoresUnknownEntry(t *testing.T) {
	entry := newEntry(org("Riverside"))
	f := newFixture(t, entry)

	_, err := f.svc.SaveScores(context.Background(), SaveScoresRequest{EventID: f.eventID, EntryID: uuid.New(), JudgeID: "j"})
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = f.svc.SaveScores(context.Background(), SaveScoresRequest{EventID: uuid.New(), EntryID: entry.ID, JudgeID: "j"})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestSaveScoresStoreFailure(t *testing.T) {
	entry := newEntry(org("Riverside"))
	f := newFixture(t, entry)
	boom := errors.New("connection reset")
	f.repo.UpsertScoreItemsFunc = func(ctx context.Context, _ bun.IDB, _ []scoredb.ScoreItem) error { return boom }

	_, err := f.svc.SaveScores(context.Background(), SaveScoresRequest{EventID: f.eventID, EntryID: entry.ID, JudgeID: "j", Values: scoredomain.Values{"Costume": scoredomain.Of(1)}})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.notifier.Payloads())
}

func TestSaveScoresNotifierFailureDoesNotFailSave(t *testing.T) {
	entry := newEntry(org("Riverside"))
	f := newFixture(t, entry)
	f.notifier.Err = errors.New("bus down")

	res, err := f.svc.SaveScores(context.Background(), SaveScoresRequest{EventID: f.eventID, EntryID: entry.ID, JudgeID: "j", Values: scoredomain.Values{"Costume": scoredomain.Of(1)}})
	require.NoError(t, err)
	assert.Equal(t, scoredomain.StatusIncomplete, res.Status)
}

func TestListEntriesWithStatus(t *testing.T) {
	complete := newEntry(org("Riverside"))
	noShow := newEntry(org("Eastbrook"))
	untouched := newEntry(org("Northside"))
	orphan := newEntry(org("null"))
	unapproved := newEntry(nil)
	unapproved.Approved = false

	f := newFixture(t, complete, noShow, untouched, orphan, unapproved)
	ctx := context.Background()

	save := func(id uuid.UUID, values scoredomain.Values) {
		_, err := f.svc.SaveScores(ctx, SaveScoresRequest{EventID: f.eventID, EntryID: id, JudgeID: "judge-a", Values: values})
		require.NoError(t, err)
	}
	save(complete.ID, scoredomain.Values{"Costume": scoredomain.Of(5), "Stage": scoredomain.Of(5)})
	save(noShow.ID, scoredomain.Values{"Costume": scoredomain.None(), "Stage": scoredomain.None()})
	save(orphan.ID, scoredomain.Values{"Costume": scoredomain.Of(5), "Stage": scoredomain.Of(5)})

	listing, err := f.svc.ListEntriesWithStatus(ctx, f.eventID, "judge-a")
	require.NoError(t, err)
	require.Len(t, listing.Entries, 5)
	require.Len(t, listing.Categories, 3)

	got := map[uuid.UUID]scoredomain.Status{}
	for _, row := range listing.Entries {
		got[row.Entry.ID] = row.Status
	}
	assert.Equal(t, scoredomain.StatusComplete, got[complete.ID])
	assert.Equal(t, scoredomain.StatusNoShow, got[noShow.ID])
	assert.Equal(t, scoredomain.StatusNotStarted, got[untouched.ID])
	assert.Equal(t, scoredomain.StatusNoOrganization, got[orphan.ID])
	assert.Equal(t, scoredomain.StatusNoOrganization, got[unapproved.ID])

	assert.Equal(t, 1, listing.Summary[scoredomain.StatusComplete])
	assert.Equal(t, 2, listing.Summary[scoredomain.StatusNoOrganization])

	other, err := f.svc.ListEntriesWithStatus(ctx, f.eventID, "judge-b")
	require.NoError(t, err)
	for _, row := range other.Entries {
		assert.False(t, row.Scored, "judge-b must not see judge-a's scores")
	}
}

func TestListEntriesRefetchesMissingItems(t *testing.T) {
	entry := newEntry(org("Riverside"))
	f := newFixture(t, entry)
	ctx := context.Background()

	_, err := f.svc.SaveScores(ctx, SaveScoresRequest{EventID: f.eventID, EntryID: entry.ID, JudgeID: "j", Values: scoredomain.Values{"Costume": scoredomain.Of(4)}})
	require.NoError(t, err)

	f.repo.DropRelationItems = true
	listing, err := f.svc.ListEntriesWithStatus(ctx, f.eventID, "j")
	require.NoError(t, err)

	require.Len(t, listing.Entries, 1)
	assert.Equal(t, scoredomain.StatusIncomplete, listing.Entries[0].Status)
	assert.Equal(t, 4, listing.Entries[0].Total)
	assert.Contains(t, f.repo.Trace(), "GetScoreItems")
}

func TestListingAgreesWithSaveResponse(t *testing.T) {
	entry := newEntry(org("Riverside"))
	f := newFixture(t, entry)
	ctx := context.Background()

	for _, values := range []scoredomain.Values{
		{"Costume": scoredomain.Of(2)},
		{"Stage": scoredomain.None()},
		{"Costume": scoredomain.None()},
		{"Bonus": scoredomain.Of(9)},
	} {
		saved, err := f.svc.SaveScores(ctx, SaveScoresRequest{EventID: f.eventID, EntryID: entry.ID, JudgeID: "j", Values: values})
		require.NoError(t, err)

		listing, err := f.svc.ListEntriesWithStatus(ctx, f.eventID, "j")
		require.NoError(t, err)
		assert.Equal(t, saved.Status, listing.Entries[0].Status)
	}
}

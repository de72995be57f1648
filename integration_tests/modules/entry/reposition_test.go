package entry_test

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	entryservice "github.com/Black-And-White-Club/judgeboard/app/modules/entry/application"
	entrydomain "github.com/Black-And-White-Club/judgeboard/app/modules/entry/domain"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/integration_tests/testutils"
)

var testEnv *testutils.TestEnvironment

func TestMain(m *testing.M) {
	os.Exit(testutils.RunMain(m, &testEnv))
}

func newService(t *testing.T) *entryservice.EntryService {
	t.Helper()
	testEnv.Reset(t)
	return entryservice.NewEntryService(
		entrydb.NewRepository(testEnv.DB),
		nil,
		testEnv.Logger,
		observability.NewNoopOperationMetrics(),
		testutils.Tracer,
		testEnv.DB,
	)
}

// positions returns the stored position per entry index.
func positions(t *testing.T, entries []entrydb.Entry) []*int {
	t.Helper()
	repo := entrydb.NewRepository(testEnv.DB)
	out := make([]*int, len(entries))
	for i, e := range entries {
		got, err := repo.GetEntry(testEnv.Ctx, nil, e.ID)
		require.NoError(t, err)
		out[i] = got.Position
	}
	return out
}

func ints(ps []*int) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		if p == nil {
			out[i] = -100
			continue
		}
		out[i] = *p
	}
	return out
}

func TestRepositionShiftsRun(t *testing.T) {
	svc := newService(t)
	_, entries := testEnv.SeedEvent(t, testutils.Positions(1, 2, 3, 4, 5)...)

	res, err := svc.Reposition(testEnv.Ctx, entries[3].ID, 2)
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.Equal(t, 2, *res.Entry.Position)
	assert.Len(t, res.Changes, 4, "temp park, two shifts and the final placement")

	assert.Equal(t, []int{1, 3, 4, 2, 5}, ints(positions(t, entries)))
}

func TestRepositionMovingDown(t *testing.T) {
	svc := newService(t)
	_, entries := testEnv.SeedEvent(t, testutils.Positions(1, 2, 3, 4, 5)...)

	_, err := svc.Reposition(testEnv.Ctx, entries[0].ID, 5)
	require.NoError(t, err)

	assert.Equal(t, []int{5, 1, 2, 3, 4}, ints(positions(t, entries)))
}

func TestRepositionSamePositionIsNoop(t *testing.T) {
	svc := newService(t)
	_, entries := testEnv.SeedEvent(t, testutils.Positions(1, 2, 3)...)

	res, err := svc.Reposition(testEnv.Ctx, entries[1].ID, 2)
	require.NoError(t, err)
	assert.True(t, res.NoOp())
	assert.Equal(t, []int{1, 2, 3}, ints(positions(t, entries)))
}

func TestRepositionToSentinelsLeavesOthers(t *testing.T) {
	svc := newService(t)
	_, entries := testEnv.SeedEvent(t, testutils.Positions(1, 2, 3, entrydomain.UnplacedPosition)...)

	_, err := svc.Reposition(testEnv.Ctx, entries[0].ID, entrydomain.UnplacedPosition)
	require.NoError(t, err)
	_, err = svc.Reposition(testEnv.Ctx, entries[1].ID, entrydomain.PlaceholderPosition)
	require.NoError(t, err)

	assert.Equal(t,
		[]int{entrydomain.UnplacedPosition, entrydomain.PlaceholderPosition, 3, entrydomain.UnplacedPosition},
		ints(positions(t, entries)),
	)
}

func TestRepositionInsertsUnplacedEntry(t *testing.T) {
	svc := newService(t)
	ps := append(testutils.Positions(1, 2), nil)
	_, entries := testEnv.SeedEvent(t, ps...)

	_, err := svc.Reposition(testEnv.Ctx, entries[2].ID, 1)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, 1}, ints(positions(t, entries)))
}

func TestRepositionRejectsInvalidTargets(t *testing.T) {
	svc := newService(t)
	_, entries := testEnv.SeedEvent(t, testutils.Positions(1, 2)...)

	for _, target := range []int{-1, entrydomain.UnplacedPosition + 1} {
		_, err := svc.Reposition(testEnv.Ctx, entries[0].ID, target)
		var verr *entrydomain.ValidationError
		assert.True(t, errors.As(err, &verr), "target %d: got %v", target, err)
	}
	assert.Equal(t, []int{1, 2}, ints(positions(t, entries)))
}

func TestRepositionUnknownEntry(t *testing.T) {
	svc := newService(t)

	_, err := svc.Reposition(testEnv.Ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, entrydb.ErrNotFound)
}

func TestRepositionRejectsDirectDuplicate(t *testing.T) {
	testEnv.Reset(t)
	_, entries := testEnv.SeedEvent(t, testutils.Positions(1, 2)...)

	err := entrydb.NewRepository(testEnv.DB).UpdatePosition(testEnv.Ctx, nil, entries[1].ID, 1)
	assert.ErrorIs(t, err, entrydb.ErrPositionTaken)
}

// Concurrent moves in one event serialize on the event lock and always
// leave a permutation.
func TestConcurrentRepositionsStayUnique(t *testing.T) {
	svc := newService(t)
	_, entries := testEnv.SeedEvent(t, testutils.Positions(1, 2, 3, 4, 5, 6)...)

	moves := []struct {
		entry  int
		target int
	}{
		{0, 6}, {5, 1}, {2, 4}, {3, 2}, {1, 5}, {4, 3},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(moves))
	for _, mv := range moves {
		wg.Add(1)
		go func(id uuid.UUID, target int) {
			defer wg.Done()
			if _, err := svc.Reposition(testEnv.Ctx, id, target); err != nil {
				errs <- err
			}
		}(entries[mv.entry].ID, mv.target)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("reposition failed: %v", err)
	}

	seen := map[int]bool{}
	for _, p := range ints(positions(t, entries)) {
		require.True(t, p >= 1 && p <= 6, "position %d out of range", p)
		require.False(t, seen[p], "duplicate position %d", p)
		seen[p] = true
	}
}

func TestListEntriesOrdersUnplacedLast(t *testing.T) {
	svc := newService(t)
	ps := []*int{nil, testutils.Positions(entrydomain.UnplacedPosition)[0], testutils.Positions(2)[0], testutils.Positions(1)[0]}
	event, entries := testEnv.SeedEvent(t, ps...)

	got, err := svc.ListEntries(testEnv.Ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, entries[3].ID, got[0].ID)
	assert.Equal(t, entries[2].ID, got[1].ID)
}

package savecoord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWaitForAllSavesWaitsForPendingSave(t *testing.T) {
	c := NewCoordinator(nil)
	done := make(chan struct{})
	c.Register("entry-1", done)
	require.True(t, c.HasPendingSaves())

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(done)
	}()

	start := time.Now()
	require.NoError(t, c.WaitForAllSaves(time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.False(t, c.HasPendingSaves())
}

func TestWaitForAllSavesWithNothingPending(t *testing.T) {
	c := NewCoordinator(nil)
	start := time.Now()
	require.NoError(t, c.WaitForAllSaves(time.Second))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitForAllSavesTimesOut(t *testing.T) {
	c := NewCoordinator(nil)
	c.Register("entry-1", make(chan struct{}))

	err := c.WaitForAllSaves(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.True(t, c.HasPendingSaves(), "a timeout does not drop the save")

	c.Clear()
	assert.False(t, c.HasPendingSaves())
	require.NoError(t, c.WaitForAllSaves(time.Millisecond))
}

func TestRegistrationsForOneEntityCoexist(t *testing.T) {
	c := NewCoordinator(nil)
	first := c.Begin("entry-1")
	second := c.Begin("entry-1")
	assert.True(t, c.IsPending("entry-1"))

	first()
	first()
	assert.True(t, c.IsPending("entry-1"))
	assert.True(t, c.HasPendingSaves())

	second()
	assert.False(t, c.IsPending("entry-1"))
	assert.False(t, c.HasPendingSaves())
}

func TestCompletionAfterClearIsIgnored(t *testing.T) {
	c := NewCoordinator(nil)
	stale := c.Begin("entry-1")
	c.Clear()

	fresh := c.Begin("entry-2")
	stale()
	assert.True(t, c.HasPendingSaves())
	fresh()
	assert.False(t, c.HasPendingSaves())
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	c := NewCoordinator(nil)
	var got []EventKind
	unsubscribe := c.Subscribe(func(ev Event) { got = append(got, ev.Kind) })

	c.Notify(Event{Kind: EventSaved, EntityID: "a"})
	unsubscribe()
	c.Notify(Event{Kind: EventQueued, EntityID: "a"})

	assert.Equal(t, []EventKind{EventSaved}, got)
}

func TestEventMessage(t *testing.T) {
	assert.Equal(t, "Saved locally, will sync", Event{Kind: EventQueued}.Message())
	assert.Equal(t, "Saved", Event{Kind: EventSaved}.Message())
}

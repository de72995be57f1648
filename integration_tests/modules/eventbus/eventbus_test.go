package eventbus_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Black-And-White-Club/judgeboard/app/eventbus"
	"github.com/Black-And-White-Club/judgeboard/app/events"
	"github.com/Black-And-White-Club/judgeboard/integration_tests/containers"
)

func TestJetStreamRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	natsContainer, url, err := containers.SetupNatsContainer(ctx)
	if err != nil {
		t.Skipf("NATS container unavailable: %v", err)
	}
	defer func() { _ = natsContainer.Terminate(context.Background()) }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus, err := eventbus.NewEventBus(ctx, url, logger)
	require.NoError(t, err)
	defer bus.Close()
	assert.Equal(t, "nats", bus.Backend())

	messages, err := bus.Subscribe(ctx, events.ScoreSavedV1)
	require.NoError(t, err)

	payload := events.ScoreSavedPayloadV1{
		EventID: "event-1",
		EntryID: "entry-1",
		JudgeID: "judge-1",
		Status:  "complete",
		Total:   12,
		SavedAt: time.Now().UTC().Truncate(time.Second),
	}
	msg, err := events.NewMessage(ctx, payload)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(events.ScoreSavedV1, msg))

	select {
	case got := <-messages:
		got.Ack()
		decoded, err := events.Decode[events.ScoreSavedPayloadV1](got)
		require.NoError(t, err)
		assert.Equal(t, payload, *decoded)
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

package scorehandlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Black-And-White-Club/judgeboard/app/events"
)

func TestHandleScoreSaved(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewScoreEventHandlers(slog.New(slog.NewTextHandler(io.Discard, nil)), reg)
	if err != nil {
		t.Fatal(err)
	}

	for _, status := range []string{"complete", "complete", "no_show"} {
		msg, err := events.NewMessage(context.Background(), events.ScoreSavedPayloadV1{EntryID: "e1", Status: status})
		if err != nil {
			t.Fatal(err)
		}
		if err := h.HandleScoreSaved(msg); err != nil {
			t.Fatalf("HandleScoreSaved() = %v", err)
		}
	}

	if got := testutil.ToFloat64(h.saved.WithLabelValues("complete")); got != 2 {
		t.Errorf("complete = %v, want 2", got)
	}
	if got := testutil.ToFloat64(h.saved.WithLabelValues("no_show")); got != 1 {
		t.Errorf("no_show = %v, want 1", got)
	}

	// A second registration reuses the existing collector.
	again, err := NewScoreEventHandlers(slog.New(slog.NewTextHandler(io.Discard, nil)), reg)
	if err != nil {
		t.Fatal(err)
	}
	if again.saved != h.saved {
		t.Error("expected the registered counter to be reused")
	}
}

func TestHandleScoreSavedAcksMalformedPayload(t *testing.T) {
	h, err := NewScoreEventHandlers(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.HandleScoreSaved(message.NewMessage(watermill.NewUUID(), []byte("{not json"))); err != nil {
		t.Fatalf("HandleScoreSaved() = %v", err)
	}
}

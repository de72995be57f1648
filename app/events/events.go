// Package events defines the domain event topics and payloads published on the
// event bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/Black-And-White-Club/judgeboard/app/observability"
)

const (
	// ScoreSavedV1 is published after a judge's score for an entry is committed.
	ScoreSavedV1 = "judgeboard.score.saved.v1"
	// EntryRepositionedV1 is published after a reposition commits.
	EntryRepositionedV1 = "judgeboard.entry.repositioned.v1"
)

// ScoreSavedPayloadV1 describes a committed score.
type ScoreSavedPayloadV1 struct {
	EventID string    `json:"event_id"`
	EntryID string    `json:"entry_id"`
	JudgeID string    `json:"judge_id"`
	Status  string    `json:"status"`
	Total   int       `json:"total"`
	SavedAt time.Time `json:"saved_at"`
}

// PositionChange is one entry's move within a reposition.
type PositionChange struct {
	EntryID string `json:"entry_id"`
	From    *int   `json:"from,omitempty"`
	To      int    `json:"to"`
}

// EntryRepositionedPayloadV1 describes a committed reposition.
type EntryRepositionedPayloadV1 struct {
	EventID        string           `json:"event_id"`
	EntryID        string           `json:"entry_id"`
	TargetPosition int              `json:"target_position"`
	Changes        []PositionChange `json:"changes"`
	RepositionedAt time.Time        `json:"repositioned_at"`
}

// NewMessage marshals a payload into a watermill message, carrying the
// context's correlation id or a fresh one.
func NewMessage(ctx context.Context, payload any) (*message.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	correlationID := observability.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = watermill.NewUUID()
	}
	middleware.SetCorrelationID(correlationID, msg)
	msg.SetContext(ctx)
	return msg, nil
}

// Decode unmarshals a message payload.
func Decode[T any](msg *message.Message) (*T, error) {
	out := new(T)
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %T: %w", out, err)
	}
	return out, nil
}

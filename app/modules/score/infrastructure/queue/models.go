package scorequeue

import "github.com/Black-And-White-Club/judgeboard/app/events"

// ScoreSavedJob carries a committed score to the event bus.
type ScoreSavedJob struct {
	Payload events.ScoreSavedPayloadV1 `json:"payload"`
	// CorrelationID links the published event back to the save request.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Kind returns the job type identifier for River
func (ScoreSavedJob) Kind() string { return "score_saved" }

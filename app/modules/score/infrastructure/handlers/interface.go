package scorehandlers

import (
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Handlers defines the HTTP surface of the score module.
type Handlers interface {
	HandleSaveScores(w http.ResponseWriter, r *http.Request)
	HandleListEntries(w http.ResponseWriter, r *http.Request)
}

// EventHandlers consumes score events from the bus.
type EventHandlers interface {
	HandleScoreSaved(msg *message.Message) error
}

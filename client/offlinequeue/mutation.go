// Package offlinequeue keeps a judge's score writes durable on the client
// until the server has acknowledged them.
package offlinequeue

import (
	"time"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
)

// Mutation is one pending save for an entry. The queue holds at most one
// Mutation per entry; newer values merge into it.
type Mutation struct {
	EntryID        string             `json:"entryId"`
	EventID        string             `json:"eventId"`
	JudgeID        string             `json:"judgeId"`
	Values         scoredomain.Values `json:"values"`
	Timestamp      time.Time          `json:"timestamp"`
	RetryCount     int                `json:"retryCount"`
	NeedsAttention bool               `json:"needsAttention,omitempty"`
	LastError      string             `json:"lastError,omitempty"`

	// revision changes on every merge so that a sync attempt started before
	// a merge does not remove the newer values.
	revision uint64
}

// Clone returns a deep copy.
func (m Mutation) Clone() Mutation {
	m.Values = m.Values.Clone()
	return m
}

// Valid reports whether the mutation carries enough to be replayed.
func (m Mutation) Valid() bool {
	return m.EntryID != "" && m.EventID != "" && m.Values != nil
}

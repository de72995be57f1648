// Package savecoord tracks in-flight score saves on the judge console and
// drives each save from the first keystroke to a confirmed, rejected or
// locally queued outcome.
package savecoord

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
)

// ErrWaitTimeout is returned by WaitForAllSaves when saves are still
// outstanding at the deadline. The saves keep running.
var ErrWaitTimeout = errors.New("timed out waiting for pending saves")

// EventKind classifies save notifications.
type EventKind int

const (
	// EventSaved means the server confirmed the values.
	EventSaved EventKind = iota
	// EventQueued means the values are stored locally and will sync later.
	EventQueued
	// EventRejected means the server refused the values. They are dropped.
	EventRejected
	// EventFailed means the values could neither be sent nor queued and are
	// kept pending in memory.
	EventFailed
	// EventSynced means a previously queued write reached the server.
	EventSynced
)

func (k EventKind) String() string {
	switch k {
	case EventSaved:
		return "saved"
	case EventQueued:
		return "queued"
	case EventRejected:
		return "rejected"
	case EventFailed:
		return "failed"
	case EventSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Event reports the outcome of a save for one entity.
type Event struct {
	Kind     EventKind
	EntityID string
	Status   scoredomain.Status
	Total    int
	Values   scoredomain.Values
	Err      error
}

// Message is the user-facing text for the event.
func (e Event) Message() string {
	switch e.Kind {
	case EventSaved:
		return "Saved"
	case EventQueued:
		return "Saved locally, will sync"
	case EventRejected:
		if e.Err != nil {
			return "Not saved: " + e.Err.Error()
		}
		return "Not saved"
	case EventFailed:
		return "Not saved yet, still retrying"
	case EventSynced:
		return "Synced"
	default:
		return ""
	}
}

// Coordinator keeps the set of outstanding saves so that navigation and
// shutdown can wait for them. It also fans save events out to subscribers.
type Coordinator struct {
	logger *slog.Logger

	mu        sync.Mutex
	pending   map[string]map[uint64]struct{}
	count     int
	nextToken uint64
	idle      chan struct{}
	cleared   chan struct{}
	listeners map[int]func(Event)
	nextSub   int
}

// NewCoordinator creates an empty Coordinator. A nil logger discards.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		logger:    logger,
		pending:   make(map[string]map[uint64]struct{}),
		cleared:   make(chan struct{}),
		listeners: make(map[int]func(Event)),
	}
}

// Begin records an outstanding save for entityID and returns the func that
// completes it. Calling the func more than once is harmless.
func (c *Coordinator) Begin(entityID string) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextToken++
	token := c.nextToken
	tokens, ok := c.pending[entityID]
	if !ok {
		tokens = make(map[uint64]struct{})
		c.pending[entityID] = tokens
	}
	tokens[token] = struct{}{}
	if c.count == 0 {
		c.idle = make(chan struct{})
	}
	c.count++

	var once sync.Once
	return func() {
		once.Do(func() { c.complete(entityID, token) })
	}
}

// Register records an outstanding save that completes when done is closed.
// Several registrations for one entity may coexist.
func (c *Coordinator) Register(entityID string, done <-chan struct{}) {
	complete := c.Begin(entityID)
	c.mu.Lock()
	cleared := c.cleared
	c.mu.Unlock()
	go func() {
		select {
		case <-done:
			complete()
		case <-cleared:
		}
	}()
}

func (c *Coordinator) complete(entityID string, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens, ok := c.pending[entityID]
	if !ok {
		return
	}
	if _, ok := tokens[token]; !ok {
		return
	}
	delete(tokens, token)
	if len(tokens) == 0 {
		delete(c.pending, entityID)
	}
	c.count--
	if c.count == 0 && c.idle != nil {
		close(c.idle)
		c.idle = nil
	}
}

// HasPendingSaves reports whether any save is outstanding.
func (c *Coordinator) HasPendingSaves() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count > 0
}

// IsPending reports whether entityID has an outstanding save.
func (c *Coordinator) IsPending(entityID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[entityID]) > 0
}

// WaitForAllSaves blocks until nothing is outstanding or the timeout
// passes, in which case it returns ErrWaitTimeout.
func (c *Coordinator) WaitForAllSaves(timeout time.Duration) error {
	c.mu.Lock()
	if c.count == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	outstanding := c.count
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return nil
	case <-timer.C:
		c.logger.Warn("Timed out waiting for pending saves",
			slog.Int("outstanding", outstanding),
			slog.Duration("timeout", timeout),
		)
		return ErrWaitTimeout
	}
}

// Clear forgets every outstanding save without waiting for it.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[string]map[uint64]struct{})
	c.count = 0
	if c.idle != nil {
		close(c.idle)
		c.idle = nil
	}
	close(c.cleared)
	c.cleared = make(chan struct{})
}

// Subscribe registers fn for save events and returns its removal func.
func (c *Coordinator) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Notify delivers ev to every subscriber, outside the lock.
func (c *Coordinator) Notify(ev Event) {
	c.mu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

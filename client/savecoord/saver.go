package savecoord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	"github.com/Black-And-White-Club/judgeboard/client/api"
	"github.com/Black-And-White-Club/judgeboard/client/offlinequeue"
)

// State is where an entity's latest save stands.
type State int

const (
	StateIdle State = iota
	StateSaving
	StateRetrying
	StateQueued
	StateConfirmed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSaving:
		return "saving"
	case StateRetrying:
		return "retrying"
	case StateQueued:
		return "queued"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ErrSaverClosed is returned for changes made after Close.
var ErrSaverClosed = errors.New("saver is closed")

// Remote sends a judge's values for one entry.
type Remote interface {
	SaveScores(ctx context.Context, eventID, entryID string, values scoredomain.Values) (*api.SaveResult, error)
}

// Queue holds writes the server could not take.
type Queue interface {
	Has(entryID string) bool
	Enqueue(ctx context.Context, m offlinequeue.Mutation) error
}

// SaverConfig identifies the judge and tunes pacing. Zero durations take
// the defaults.
type SaverConfig struct {
	EventID       string
	JudgeID       string
	MaxScore      int
	Debounce      time.Duration
	RetryDelay    time.Duration
	// ExtraAttempts follow a failed first attempt. Negative disables them.
	ExtraAttempts int
}

func (c SaverConfig) withDefaults() SaverConfig {
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.ExtraAttempts < 0 {
		c.ExtraAttempts = 0
	} else if c.ExtraAttempts == 0 {
		c.ExtraAttempts = 2
	}
	return c
}

type entity struct {
	state   State
	pending scoredomain.Values
	timer   *time.Timer
	// inFlight serializes saves for one entity; rerun asks for another save
	// once the current one settles.
	inFlight bool
	rerun    bool
	last     Event
}

// Saver turns edits into saves: edits to one entry coalesce behind a
// debounce, commits go out at once, failures retry a fixed number of times
// and then fall back to the offline queue.
type Saver struct {
	cfg       SaverConfig
	remote    Remote
	queue     Queue
	coord     *Coordinator
	retryable func(error) bool
	logger    *slog.Logger

	mu       sync.Mutex
	entities map[string]*entity
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSaver builds a Saver. Saves are classified with api.IsRetryable.
func NewSaver(cfg SaverConfig, remote Remote, queue Queue, coord *Coordinator, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Saver{
		cfg:       cfg.withDefaults(),
		remote:    remote,
		queue:     queue,
		coord:     coord,
		retryable: api.IsRetryable,
		logger:    logger,
		entities:  make(map[string]*entity),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Change records edited values and schedules a save after the debounce.
// Repeated changes to the same entry restart the debounce.
func (s *Saver) Change(entryID string, values scoredomain.Values) error {
	if err := s.validate(values); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSaverClosed
	}
	e := s.entityLocked(entryID)
	e.pending = e.pending.Merge(values)
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(s.cfg.Debounce, func() { s.start(entryID) })
	return nil
}

// Commit records values and saves at once, together with any debounced
// values for the entry.
func (s *Saver) Commit(entryID string, values scoredomain.Values) error {
	if err := s.validate(values); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSaverClosed
	}
	e := s.entityLocked(entryID)
	e.pending = e.pending.Merge(values)
	s.mu.Unlock()

	s.start(entryID)
	return nil
}

// SetNone records an explicit zero for category and saves at once.
func (s *Saver) SetNone(entryID, category string) error {
	return s.Commit(entryID, scoredomain.Values{category: scoredomain.None()})
}

// Flush starts every debounced save now.
func (s *Saver) Flush() {
	s.mu.Lock()
	var ids []string
	for id, e := range s.entities {
		if e.timer != nil || (len(e.pending) > 0 && !e.inFlight) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		s.start(id)
	}
}

// State returns the entry's save state.
func (s *Saver) State(entryID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[entryID]; ok {
		return e.state
	}
	return StateIdle
}

// Last returns the entry's most recent save outcome.
func (s *Saver) Last(entryID string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entryID]
	if !ok || e.state == StateIdle {
		return Event{}, false
	}
	return e.last, true
}

// HasUnsaved reports whether any entry holds values not yet sent.
func (s *Saver) HasUnsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if len(e.pending) > 0 || e.inFlight {
			return true
		}
	}
	return false
}

// Close stops pending timers and in-flight retries. Values still in flight
// are handed to the queue. Call Flush and WaitForAllSaves first to give
// them a chance to reach the server.
func (s *Saver) Close() error {
	s.mu.Lock()
	s.closed = true
	for _, e := range s.entities {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Saver) validate(values scoredomain.Values) error {
	if s.cfg.MaxScore <= 0 {
		return nil
	}
	return values.Validate(s.cfg.MaxScore)
}

func (s *Saver) entityLocked(entryID string) *entity {
	e, ok := s.entities[entryID]
	if !ok {
		e = &entity{}
		s.entities[entryID] = e
	}
	return e
}

// start launches a save of the entry's pending values unless one is
// already running, in which case it runs again when that one settles.
func (s *Saver) start(entryID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	e := s.entityLocked(entryID)
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.inFlight {
		e.rerun = true
		s.mu.Unlock()
		return
	}
	if len(e.pending) == 0 {
		s.mu.Unlock()
		return
	}
	values := e.pending
	e.pending = nil
	e.inFlight = true
	e.state = StateSaving
	done := s.coord.Begin(entryID)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer done()
		ev := s.save(entryID, values)
		s.settle(entryID, ev)
	}()
}

// save runs one save to completion and returns its outcome.
func (s *Saver) save(entryID string, values scoredomain.Values) Event {
	if s.queue != nil && s.queue.Has(entryID) {
		// Earlier values are still queued; merging keeps them in order.
		return s.handOff(entryID, values, nil)
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.ExtraAttempts; attempt++ {
		if attempt > 0 {
			s.setState(entryID, StateRetrying)
			if err := sleepContext(s.ctx, s.cfg.RetryDelay); err != nil {
				break
			}
		}

		res, err := s.remote.SaveScores(s.ctx, s.cfg.EventID, entryID, values)
		if err == nil {
			return Event{Kind: EventSaved, EntityID: entryID, Status: res.Status, Total: res.Total, Values: res.Values}
		}
		lastErr = err
		if s.ctx.Err() != nil {
			break
		}
		if !s.retryable(err) {
			s.logger.Warn("Score save rejected",
				slog.String("entry_id", entryID),
				slog.Any("error", err),
			)
			return Event{Kind: EventRejected, EntityID: entryID, Values: values, Err: err}
		}
		s.logger.Debug("Score save failed",
			slog.String("entry_id", entryID),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}
	return s.handOff(entryID, values, lastErr)
}

func (s *Saver) handOff(entryID string, values scoredomain.Values, cause error) Event {
	if s.queue == nil {
		return Event{Kind: EventFailed, EntityID: entryID, Values: values, Err: cause}
	}
	m := offlinequeue.Mutation{
		EntryID: entryID,
		EventID: s.cfg.EventID,
		JudgeID: s.cfg.JudgeID,
		Values:  values,
	}
	// Local durability must not depend on the saver still running.
	if err := s.queue.Enqueue(context.WithoutCancel(s.ctx), m); err != nil {
		s.logger.Error("Failed to queue score write",
			slog.String("entry_id", entryID),
			slog.Any("error", err),
		)
		return Event{Kind: EventFailed, EntityID: entryID, Values: values, Err: fmt.Errorf("queue: %w", err)}
	}
	s.logger.Info("Score write queued for sync",
		slog.String("entry_id", entryID),
		slog.Any("cause", cause),
	)
	return Event{Kind: EventQueued, EntityID: entryID, Values: values, Err: cause}
}

func (s *Saver) settle(entryID string, ev Event) {
	s.mu.Lock()
	e := s.entityLocked(entryID)
	e.inFlight = false
	e.last = ev
	switch ev.Kind {
	case EventSaved:
		e.state = StateConfirmed
	case EventQueued:
		e.state = StateQueued
	case EventRejected:
		e.state = StateRejected
	case EventFailed:
		// Keep the values; newer edits win over them.
		e.pending = ev.Values.Merge(e.pending)
		e.state = StateIdle
	}
	rerun := e.rerun && !s.closed
	e.rerun = false
	s.mu.Unlock()

	s.coord.Notify(ev)
	if rerun {
		s.start(entryID)
	}
}

func (s *Saver) setState(entryID string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entityLocked(entryID).state = st
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

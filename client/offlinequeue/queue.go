package offlinequeue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrNotQueued is returned by operator actions on an entry that has no
	// queued mutation.
	ErrNotQueued = errors.New("no queued mutation for entry")
	// ErrInvalidMutation is returned by Enqueue for a mutation missing its
	// identifiers or carrying out-of-range values.
	ErrInvalidMutation = errors.New("invalid mutation")
)

// ApplyFunc replays one mutation against the server.
type ApplyFunc func(ctx context.Context, m Mutation) error

// ProbeFunc checks that the server is reachable. It must not write.
type ProbeFunc func(ctx context.Context) error

// Config tunes retry and sync pacing. Zero fields take the defaults below.
type Config struct {
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	ItemPause      time.Duration
	SyncInterval   time.Duration
	OnlineDebounce time.Duration
	ProbeTimeout   time.Duration
	// MaxScore bounds each value on Enqueue. Zero skips the range check.
	MaxScore int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.ItemPause <= 0 {
		c.ItemPause = 100 * time.Millisecond
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.OnlineDebounce <= 0 {
		c.OnlineDebounce = time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	return c
}

// Backoff returns the wait after the n-th failed attempt of one item.
func (c Config) Backoff(n int) time.Duration {
	c = c.withDefaults()
	if n < 1 {
		n = 1
	}
	d := c.BaseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return d
}

// EventKind classifies queue notifications.
type EventKind int

const (
	// EventChanged fires after any change to the queued set.
	EventChanged EventKind = iota
	// EventSynced fires when a mutation reached the server and left the queue.
	EventSynced
	// EventAttention fires when a mutation stops being retried automatically.
	EventAttention
	// EventOnline and EventOffline report the probed connectivity state.
	EventOnline
	EventOffline
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventSynced:
		return "synced"
	case EventAttention:
		return "needs_attention"
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers outside the queue's lock.
type Event struct {
	Kind    EventKind
	EntryID string
	Err     error
	Pending int
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Skipped   bool
	Attempted int
	Synced    int
	Failed    int
}

type signal int

const (
	signalOnline signal = iota
	signalOffline
	signalVisible
	signalSync
)

// Queue is the durable, merge-on-insert set of pending score writes, keyed
// by entry.
type Queue struct {
	store     Store
	apply     ApplyFunc
	probe     ProbeFunc
	retryable func(error) bool
	logger    *slog.Logger
	cfg       Config
	limiter   *rate.Limiter
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	items     map[string]*Mutation
	revision  uint64
	online    bool
	listeners map[int]func(Event)
	nextSub   int

	syncing atomic.Bool
	signals chan signal
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes a Queue.
type Option func(*Queue)

// WithProbe sets the liveness probe run before trusting a connectivity signal.
func WithProbe(p ProbeFunc) Option { return func(q *Queue) { q.probe = p } }

// WithRetryable sets the classifier for apply errors. Errors it rejects flag
// the item for attention instead of counting a retry.
func WithRetryable(f func(error) bool) Option { return func(q *Queue) { q.retryable = f } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(q *Queue) { q.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }

// WithSleep overrides the backoff wait.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) { q.sleep = f }
}

// New builds a Queue over store. Call Load before use.
func New(store Store, apply ApplyFunc, cfg Config, opts ...Option) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		store:     store,
		apply:     apply,
		retryable: func(error) bool { return true },
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(cfg.ItemPause), 1),
		now:       time.Now,
		sleep:     sleepContext,
		items:     make(map[string]*Mutation),
		online:    true,
		listeners: make(map[int]func(Event)),
		signals:   make(chan signal, 8),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load replaces the in-memory set with the stored queue. Malformed stored
// data is logged and skipped.
func (q *Queue) Load(ctx context.Context) error {
	data, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("Queue.Load: %w", err)
	}
	items, dropped := Decode(data)
	if dropped > 0 {
		q.logger.WarnContext(ctx, "Dropped malformed queued mutations", slog.Int("dropped", dropped))
	}

	q.mu.Lock()
	q.items = make(map[string]*Mutation, len(items))
	for _, m := range items {
		q.revision++
		m.revision = q.revision
		q.items[m.EntryID] = &m
	}
	n := len(q.items)
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "Loaded offline queue", slog.Int("pending", n))
	return nil
}

// Enqueue adds m or merges it into the entry's existing mutation: newer
// values win per category, the timestamp moves forward and the retry state
// resets. The change is persisted before Enqueue returns; on a storage
// failure the in-memory set is rolled back.
func (q *Queue) Enqueue(ctx context.Context, m Mutation) error {
	if !m.Valid() {
		return fmt.Errorf("%w: entry, event and values are required", ErrInvalidMutation)
	}
	if q.cfg.MaxScore > 0 {
		if err := m.Values.Validate(q.cfg.MaxScore); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMutation, err)
		}
	}

	q.mu.Lock()
	prev, existed := q.items[m.EntryID]
	next := m.Clone()
	if existed {
		next = prev.Clone()
		next.Values = prev.Values.Merge(m.Values)
		if m.JudgeID != "" {
			next.JudgeID = m.JudgeID
		}
	}
	next.Timestamp = q.now()
	next.RetryCount = 0
	next.NeedsAttention = false
	next.LastError = ""
	q.revision++
	next.revision = q.revision
	q.items[m.EntryID] = &next

	if err := q.persistLocked(ctx); err != nil {
		if existed {
			q.items[m.EntryID] = prev
		} else {
			delete(q.items, m.EntryID)
		}
		q.mu.Unlock()
		return fmt.Errorf("Queue.Enqueue: %w", err)
	}
	pending := len(q.items)
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "Queued score write",
		slog.String("entry_id", m.EntryID),
		slog.Bool("merged", existed),
		slog.Int("pending", pending),
	)
	q.emit(Event{Kind: EventChanged, EntryID: m.EntryID, Pending: pending})
	return nil
}

// Has reports whether entryID has a queued mutation.
func (q *Queue) Has(entryID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.items[entryID]
	return ok
}

// Len returns the number of queued mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Get returns a copy of entryID's queued mutation.
func (q *Queue) Get(entryID string) (Mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.items[entryID]
	if !ok {
		return Mutation{}, false
	}
	return m.Clone(), true
}

// Snapshot returns copies of every queued mutation, oldest first.
func (q *Queue) Snapshot() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sortedLocked()
}

// NeedsAttention returns the mutations excluded from automatic retry.
func (q *Queue) NeedsAttention() []Mutation {
	var out []Mutation
	for _, m := range q.Snapshot() {
		if m.NeedsAttention {
			out = append(out, m)
		}
	}
	return out
}

// RetryEntry resets an entry's retry state so the next pass attempts it
// again, then requests a pass.
func (q *Queue) RetryEntry(ctx context.Context, entryID string) error {
	q.mu.Lock()
	m, ok := q.items[entryID]
	if !ok {
		q.mu.Unlock()
		return ErrNotQueued
	}
	prev := m.Clone()
	m.RetryCount = 0
	m.NeedsAttention = false
	m.LastError = ""
	if err := q.persistLocked(ctx); err != nil {
		*m = prev
		q.mu.Unlock()
		return fmt.Errorf("Queue.RetryEntry: %w", err)
	}
	pending := len(q.items)
	q.mu.Unlock()

	q.emit(Event{Kind: EventChanged, EntryID: entryID, Pending: pending})
	q.send(signalSync)
	return nil
}

// ClearEntry discards an entry's queued mutation without sending it.
func (q *Queue) ClearEntry(ctx context.Context, entryID string) error {
	q.mu.Lock()
	m, ok := q.items[entryID]
	if !ok {
		q.mu.Unlock()
		return ErrNotQueued
	}
	delete(q.items, entryID)
	if err := q.persistLocked(ctx); err != nil {
		q.items[entryID] = m
		q.mu.Unlock()
		return fmt.Errorf("Queue.ClearEntry: %w", err)
	}
	pending := len(q.items)
	q.mu.Unlock()

	q.logger.WarnContext(ctx, "Cleared queued score write", slog.String("entry_id", entryID))
	q.emit(Event{Kind: EventChanged, EntryID: entryID, Pending: pending})
	return nil
}

// Online reports the last probed connectivity state.
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// Subscribe registers fn for queue events and returns its removal func.
func (q *Queue) Subscribe(fn func(Event)) func() {
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.listeners[id] = fn
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

// Sync runs one pass over the queue, oldest first. Items flagged for
// attention are skipped. Only one pass runs at a time; a call made while a
// pass is running returns immediately with Skipped set.
func (q *Queue) Sync(ctx context.Context) (SyncResult, error) {
	if !q.syncing.CompareAndSwap(false, true) {
		return SyncResult{Skipped: true}, nil
	}
	defer q.syncing.Store(false)

	var res SyncResult
	for _, m := range q.Snapshot() {
		if m.NeedsAttention {
			continue
		}
		if res.Attempted > 0 {
			if err := q.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}
		res.Attempted++

		err := q.apply(ctx, m)
		if err == nil {
			q.settle(ctx, m)
			res.Synced++
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		res.Failed++
		wait, ok := q.recordFailure(ctx, m, err)
		if !ok {
			continue
		}
		if err := q.sleep(ctx, wait); err != nil {
			return res, err
		}
	}

	if res.Attempted > 0 {
		q.logger.InfoContext(ctx, "Offline queue sync pass finished",
			slog.Int("attempted", res.Attempted),
			slog.Int("synced", res.Synced),
			slog.Int("failed", res.Failed),
		)
	}
	return res, nil
}

// settle removes m after the server accepted it, unless it was merged with
// newer values in the meantime.
func (q *Queue) settle(ctx context.Context, m Mutation) {
	q.mu.Lock()
	cur, ok := q.items[m.EntryID]
	if !ok || cur.revision != m.revision {
		q.mu.Unlock()
		return
	}
	delete(q.items, m.EntryID)
	if err := q.persistLocked(ctx); err != nil {
		// Replaying an accepted write is harmless; the next persist catches up.
		q.logger.ErrorContext(ctx, "Failed to persist offline queue after sync",
			slog.String("entry_id", m.EntryID),
			slog.Any("error", err),
		)
	}
	pending := len(q.items)
	q.mu.Unlock()

	q.emit(Event{Kind: EventSynced, EntryID: m.EntryID, Pending: pending})
}

// recordFailure bumps the retry state of m and reports the backoff to wait
// before the next item, or false when m is no longer retried. An item merged
// with newer values during the attempt keeps its fresh retry state.
func (q *Queue) recordFailure(ctx context.Context, m Mutation, applyErr error) (time.Duration, bool) {
	q.mu.Lock()
	cur, ok := q.items[m.EntryID]
	if !ok {
		q.mu.Unlock()
		return 0, false
	}
	if cur.revision != m.revision {
		q.mu.Unlock()
		q.logger.DebugContext(ctx, "Dropped failure of superseded queued write",
			slog.String("entry_id", m.EntryID),
			slog.Any("error", applyErr),
		)
		return 0, false
	}
	cur.LastError = applyErr.Error()
	retryable := q.retryable(applyErr)
	if retryable {
		cur.RetryCount++
	}
	if !retryable || cur.RetryCount >= q.cfg.MaxRetries {
		cur.NeedsAttention = true
	}
	attention := cur.NeedsAttention
	retries := cur.RetryCount
	if err := q.persistLocked(ctx); err != nil {
		q.logger.ErrorContext(ctx, "Failed to persist offline queue after failure", slog.Any("error", err))
	}
	pending := len(q.items)
	q.mu.Unlock()

	q.logger.WarnContext(ctx, "Queued score write failed",
		slog.String("entry_id", m.EntryID),
		slog.Int("retry_count", retries),
		slog.Bool("needs_attention", attention),
		slog.Any("error", applyErr),
	)
	if attention {
		q.emit(Event{Kind: EventAttention, EntryID: m.EntryID, Err: applyErr, Pending: pending})
		return 0, false
	}
	q.emit(Event{Kind: EventChanged, EntryID: m.EntryID, Err: applyErr, Pending: pending})
	return q.cfg.Backoff(retries), true
}

// Start runs the connectivity and timer loop until ctx ends or Close is
// called. A non-empty queue is probed and synced immediately.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()
}

// NotifyOnline reports that connectivity may be back. Signals are
// debounced and confirmed by the probe before a pass starts.
func (q *Queue) NotifyOnline() { q.send(signalOnline) }

// NotifyOffline reports lost connectivity.
func (q *Queue) NotifyOffline() { q.send(signalOffline) }

// NotifyVisible reports that the console regained focus.
func (q *Queue) NotifyVisible() { q.send(signalVisible) }

// RequestSync asks the loop for a pass.
func (q *Queue) RequestSync() { q.send(signalSync) }

// Close stops the loop and waits for running passes. It does not close the
// store.
func (q *Queue) Close() error {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	return nil
}

func (q *Queue) run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.SyncInterval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	if q.Len() > 0 {
		q.confirmOnline(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-q.signals:
			switch sig {
			case signalOnline:
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.NewTimer(q.cfg.OnlineDebounce)
				debounceC = debounce.C
			case signalOffline:
				if debounce != nil {
					debounce.Stop()
					debounceC = nil
				}
				q.setOnline(ctx, false)
			case signalVisible, signalSync:
				if q.Online() && q.Len() > 0 {
					q.goSync(ctx)
				}
			}
		case <-debounceC:
			debounceC = nil
			q.confirmOnline(ctx)
		case <-ticker.C:
			switch {
			case q.Len() == 0:
			case q.Online():
				q.goSync(ctx)
			case debounceC == nil && q.probe != nil:
				// Offline with pending writes: probe again rather than wait
				// for a connectivity signal that may never repeat.
				q.confirmOnline(ctx)
			}
		}
	}
}

// confirmOnline probes the server and starts a pass when it answers. A
// failed probe reverts the online flag.
func (q *Queue) confirmOnline(ctx context.Context) {
	if q.probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, q.cfg.ProbeTimeout)
		err := q.probe(probeCtx)
		cancel()
		if err != nil {
			q.logger.WarnContext(ctx, "Connectivity probe failed", slog.Any("error", err))
			q.setOnline(ctx, false)
			return
		}
	}
	q.setOnline(ctx, true)
	if q.Len() > 0 {
		q.goSync(ctx)
	}
}

func (q *Queue) setOnline(ctx context.Context, online bool) {
	q.mu.Lock()
	changed := q.online != online
	q.online = online
	pending := len(q.items)
	q.mu.Unlock()
	if !changed {
		return
	}
	kind := EventOffline
	if online {
		kind = EventOnline
	}
	q.logger.InfoContext(ctx, "Connectivity changed", slog.Bool("online", online))
	q.emit(Event{Kind: kind, Pending: pending})
}

func (q *Queue) goSync(ctx context.Context) {
	if q.syncing.Load() {
		return
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if _, err := q.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			q.logger.WarnContext(ctx, "Offline queue sync pass aborted", slog.Any("error", err))
		}
	}()
}

func (q *Queue) send(s signal) {
	select {
	case q.signals <- s:
	default:
	}
}

func (q *Queue) persistLocked(ctx context.Context) error {
	data, err := Encode(q.sortedLocked())
	if err != nil {
		return err
	}
	return q.store.Save(ctx, data)
}

func (q *Queue) sortedLocked() []Mutation {
	out := make([]Mutation, 0, len(q.items))
	for _, m := range q.items {
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].EntryID < out[j].EntryID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (q *Queue) emit(ev Event) {
	q.mu.Lock()
	fns := make([]func(Event), 0, len(q.listeners))
	for _, fn := range q.listeners {
		fns = append(fns, fn)
	}
	q.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
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

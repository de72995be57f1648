package entryservice

import (
	"context"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	entrydomain "github.com/Black-And-White-Club/judgeboard/app/modules/entry/domain"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
)

// ------------------------
// Fake Entry Repo
// ------------------------

// FakeEntryRepo keeps entries in memory and enforces the same partial
// uniqueness as the database index unless a Func override is set.
type FakeEntryRepo struct {
	mu      sync.Mutex
	trace   []string
	entries map[uuid.UUID]*entrydb.Entry

	GetEntryFunc           func(ctx context.Context, db bun.IDB, entryID uuid.UUID) (*entrydb.Entry, error)
	ListEntriesByEventFunc func(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]entrydb.Entry, error)
	UpdatePositionFunc     func(ctx context.Context, db bun.IDB, entryID uuid.UUID, position int) error
	AcquireEventLockFunc   func(ctx context.Context, db bun.IDB, eventID uuid.UUID) error
}

func NewFakeEntryRepo(entries ...entrydb.Entry) *FakeEntryRepo {
	f := &FakeEntryRepo{
		trace:   []string{},
		entries: map[uuid.UUID]*entrydb.Entry{},
	}
	for i := range entries {
		e := entries[i]
		f.entries[e.ID] = &e
	}
	return f
}

func (f *FakeEntryRepo) record(step string) {
	f.trace = append(f.trace, step)
}

// --- Repository Interface Implementation ---

func (f *FakeEntryRepo) GetEntry(ctx context.Context, db bun.IDB, entryID uuid.UUID) (*entrydb.Entry, error) {
	f.mu.Lock()
	f.record("GetEntry")
	f.mu.Unlock()
	if f.GetEntryFunc != nil {
		return f.GetEntryFunc(ctx, db, entryID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[entryID]
	if !ok {
		return nil, entrydb.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *FakeEntryRepo) ListEntriesByEvent(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]entrydb.Entry, error) {
	f.mu.Lock()
	f.record("ListEntriesByEvent")
	f.mu.Unlock()
	if f.ListEntriesByEventFunc != nil {
		return f.ListEntriesByEventFunc(ctx, db, eventID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entrydb.Entry
	for _, e := range f.entries {
		if e.EventID == eventID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeEntryRepo) UpdatePosition(ctx context.Context, db bun.IDB, entryID uuid.UUID, position int) error {
	f.mu.Lock()
	f.record("UpdatePosition")
	f.mu.Unlock()
	if f.UpdatePositionFunc != nil {
		return f.UpdatePositionFunc(ctx, db, entryID, position)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[entryID]
	if !ok {
		return entrydb.ErrNotFound
	}
	if !entrydomain.IsExempt(position) {
		for id, other := range f.entries {
			if id != entryID && other.EventID == e.EventID && other.Position != nil && *other.Position == position {
				return entrydb.ErrPositionTaken
			}
		}
	}
	p := position
	e.Position = &p
	return nil
}

func (f *FakeEntryRepo) AcquireEventLock(ctx context.Context, db bun.IDB, eventID uuid.UUID) error {
	f.mu.Lock()
	f.record("AcquireEventLock")
	f.mu.Unlock()
	if f.AcquireEventLockFunc != nil {
		return f.AcquireEventLockFunc(ctx, db, eventID)
	}
	return nil
}

func (f *FakeEntryRepo) CreateEvent(ctx context.Context, db bun.IDB, event *entrydb.Event) error {
	f.record("CreateEvent")
	return nil
}

func (f *FakeEntryRepo) CreateEntries(ctx context.Context, db bun.IDB, entries []entrydb.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateEntries")
	for i := range entries {
		e := entries[i]
		f.entries[e.ID] = &e
	}
	return nil
}

// --- Accessors for assertions ---

func (f *FakeEntryRepo) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeEntryRepo) Position(entryID uuid.UUID) *int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[entryID]; ok {
		return e.Position
	}
	return nil
}

// Ensure the fake actually satisfies the interface
var _ entrydb.Repository = (*FakeEntryRepo)(nil)

// ------------------------
// Fake Publisher
// ------------------------

type FakePublisher struct {
	mu        sync.Mutex
	published map[string][]*message.Message

	PublishFunc func(topic string, messages ...*message.Message) error
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{published: map[string][]*message.Message{}}
}

func (p *FakePublisher) Publish(topic string, messages ...*message.Message) error {
	if p.PublishFunc != nil {
		return p.PublishFunc(topic, messages...)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[topic] = append(p.published[topic], messages...)
	return nil
}

func (p *FakePublisher) Close() error { return nil }

func (p *FakePublisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.published[topic]...)
}

var _ message.Publisher = (*FakePublisher)(nil)

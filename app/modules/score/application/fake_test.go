package scoreservice

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/judgeboard/app/events"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	scoredb "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/repositories"
)

// ------------------------
// Fake Score Repo
// ------------------------

// FakeScoreRepo keeps scores in memory. With DropRelationItems set, scores
// are listed without their items, as a lazily loaded association can be.
type FakeScoreRepo struct {
	mu         sync.Mutex
	trace      []string
	categories map[uuid.UUID][]scoredb.Category
	scores     map[string]*scoredb.Score
	items      map[uuid.UUID]map[uuid.UUID]scoredb.ScoreItem

	DropRelationItems bool

	UpsertScoreFunc      func(ctx context.Context, db bun.IDB, score *scoredb.Score) (uuid.UUID, error)
	UpsertScoreItemsFunc func(ctx context.Context, db bun.IDB, items []scoredb.ScoreItem) error
}

func NewFakeScoreRepo() *FakeScoreRepo {
	return &FakeScoreRepo{
		trace:      []string{},
		categories: map[uuid.UUID][]scoredb.Category{},
		scores:     map[string]*scoredb.Score{},
		items:      map[uuid.UUID]map[uuid.UUID]scoredb.ScoreItem{},
	}
}

func (f *FakeScoreRepo) record(step string) {
	f.trace = append(f.trace, step)
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeScoreRepo) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func scoreKey(judgeID string, entryID uuid.UUID) string {
	return judgeID + "/" + entryID.String()
}

func (f *FakeScoreRepo) itemsOf(scoreID uuid.UUID) []scoredb.ScoreItem {
	var out []scoredb.ScoreItem
	for _, it := range f.items[scoreID] {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID.String() < out[j].CategoryID.String() })
	return out
}

// --- Repository Interface Implementation ---

func (f *FakeScoreRepo) ListCategories(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]scoredb.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListCategories")
	return append([]scoredb.Category(nil), f.categories[eventID]...), nil
}

func (f *FakeScoreRepo) GetScore(ctx context.Context, db bun.IDB, judgeID string, entryID uuid.UUID) (*scoredb.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetScore")
	s, ok := f.scores[scoreKey(judgeID, entryID)]
	if !ok {
		return nil, scoredb.ErrNotFound
	}
	cp := *s
	cp.Items = f.itemsOf(s.ID)
	return &cp, nil
}

func (f *FakeScoreRepo) ListScoresForJudge(ctx context.Context, db bun.IDB, eventID uuid.UUID, judgeID string) ([]scoredb.Score, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListScoresForJudge")
	var out []scoredb.Score
	for _, s := range f.scores {
		if s.EventID != eventID || s.JudgeID != judgeID {
			continue
		}
		cp := *s
		if !f.DropRelationItems {
			cp.Items = f.itemsOf(s.ID)
		}
		out = append(out, cp)
	}
	return out, nil
}

func (f *FakeScoreRepo) GetScoreItems(ctx context.Context, db bun.IDB, scoreID uuid.UUID) ([]scoredb.ScoreItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetScoreItems")
	return f.itemsOf(scoreID), nil
}

func (f *FakeScoreRepo) UpsertScore(ctx context.Context, db bun.IDB, score *scoredb.Score) (uuid.UUID, error) {
	f.mu.Lock()
	f.record("UpsertScore")
	f.mu.Unlock()
	if f.UpsertScoreFunc != nil {
		return f.UpsertScoreFunc(ctx, db, score)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scoreKey(score.JudgeID, score.EntryID)
	if existing, ok := f.scores[key]; ok {
		return existing.ID, nil
	}
	cp := *score
	cp.ID = uuid.New()
	f.scores[key] = &cp
	return cp.ID, nil
}

func (f *FakeScoreRepo) UpsertScoreItems(ctx context.Context, db bun.IDB, items []scoredb.ScoreItem) error {
	f.mu.Lock()
	f.record("UpsertScoreItems")
	f.mu.Unlock()
	if f.UpsertScoreItemsFunc != nil {
		return f.UpsertScoreItemsFunc(ctx, db, items)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		if f.items[it.ScoreID] == nil {
			f.items[it.ScoreID] = map[uuid.UUID]scoredb.ScoreItem{}
		}
		f.items[it.ScoreID][it.CategoryID] = it
	}
	return nil
}

func (f *FakeScoreRepo) CreateCategories(ctx context.Context, db bun.IDB, categories []scoredb.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateCategories")
	for _, c := range categories {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		f.categories[c.EventID] = append(f.categories[c.EventID], c)
	}
	return nil
}

var _ scoredb.Repository = (*FakeScoreRepo)(nil)

// ------------------------
// Fake Entry Reader
// ------------------------

type FakeEntries struct {
	entries []entrydb.Entry
}

func (f *FakeEntries) GetEntry(ctx context.Context, db bun.IDB, entryID uuid.UUID) (*entrydb.Entry, error) {
	for i := range f.entries {
		if f.entries[i].ID == entryID {
			cp := f.entries[i]
			return &cp, nil
		}
	}
	return nil, entrydb.ErrNotFound
}

func (f *FakeEntries) ListEntriesByEvent(ctx context.Context, db bun.IDB, eventID uuid.UUID) ([]entrydb.Entry, error) {
	var out []entrydb.Entry
	for _, e := range f.entries {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ EntryReader = (*FakeEntries)(nil)

// ------------------------
// Fake Notifier
// ------------------------

type FakeNotifier struct {
	mu       sync.Mutex
	payloads []events.ScoreSavedPayloadV1
	Err      error
}

func (f *FakeNotifier) NotifyScoreSaved(ctx context.Context, payload events.ScoreSavedPayloadV1) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.Err
}

func (f *FakeNotifier) Payloads() []events.ScoreSavedPayloadV1 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.ScoreSavedPayloadV1(nil), f.payloads...)
}

var _ Notifier = (*FakeNotifier)(nil)

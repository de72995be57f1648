package savecoord

import (
	"context"
	"sync"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	"github.com/Black-And-White-Club/judgeboard/client/api"
)

// FakeRemote records save calls and answers through SaveScoresFunc, or
// echoes the values back as a complete save.
type FakeRemote struct {
	mu    sync.Mutex
	trace []string
	calls []scoredomain.Values

	SaveScoresFunc func(ctx context.Context, eventID, entryID string, values scoredomain.Values) (*api.SaveResult, error)
}

func (f *FakeRemote) SaveScores(ctx context.Context, eventID, entryID string, values scoredomain.Values) (*api.SaveResult, error) {
	f.mu.Lock()
	f.trace = append(f.trace, "SaveScores:"+entryID)
	f.calls = append(f.calls, values.Clone())
	fn := f.SaveScoresFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, eventID, entryID, values)
	}
	return &api.SaveResult{EntryID: entryID, Status: scoredomain.StatusComplete, Total: values.Total(), Values: values}, nil
}

func (f *FakeRemote) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.trace...)
}

func (f *FakeRemote) Calls() []scoredomain.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scoredomain.Values(nil), f.calls...)
}

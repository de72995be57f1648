package scorehandlers

import (
	"context"

	"github.com/google/uuid"

	scoreservice "github.com/Black-And-White-Club/judgeboard/app/modules/score/application"
	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
)

// FakeService is a programmable scoreservice.Service.
type FakeService struct {
	trace []string

	SaveScoresFunc            func(ctx context.Context, req scoreservice.SaveScoresRequest) (*scoreservice.SaveScoresResult, error)
	ListEntriesWithStatusFunc func(ctx context.Context, eventID uuid.UUID, judgeID string) (*scoreservice.Listing, error)
}

func (f *FakeService) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeService) SaveScores(ctx context.Context, req scoreservice.SaveScoresRequest) (*scoreservice.SaveScoresResult, error) {
	f.record("SaveScores")
	if f.SaveScoresFunc != nil {
		return f.SaveScoresFunc(ctx, req)
	}
	return &scoreservice.SaveScoresResult{EntryID: req.EntryID, Status: scoredomain.StatusIncomplete, Values: req.Values}, nil
}

func (f *FakeService) ListEntriesWithStatus(ctx context.Context, eventID uuid.UUID, judgeID string) (*scoreservice.Listing, error) {
	f.record("ListEntriesWithStatus")
	if f.ListEntriesWithStatusFunc != nil {
		return f.ListEntriesWithStatusFunc(ctx, eventID, judgeID)
	}
	return &scoreservice.Listing{EventID: eventID, JudgeID: judgeID, Summary: scoredomain.Summary{}}, nil
}

func (f *FakeService) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

var _ scoreservice.Service = (*FakeService)(nil)

package entryhandlers

import (
	"context"

	"github.com/google/uuid"

	entryservice "github.com/Black-And-White-Club/judgeboard/app/modules/entry/application"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
)

// FakeService is a programmable entryservice.Service.
type FakeService struct {
	trace []string

	RepositionFunc  func(ctx context.Context, entryID uuid.UUID, targetPosition int) (*entryservice.RepositionResult, error)
	GetEntryFunc    func(ctx context.Context, entryID uuid.UUID) (*entrydb.Entry, error)
	ListEntriesFunc func(ctx context.Context, eventID uuid.UUID) ([]entrydb.Entry, error)
}

func (f *FakeService) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeService) Reposition(ctx context.Context, entryID uuid.UUID, targetPosition int) (*entryservice.RepositionResult, error) {
	f.record("Reposition")
	if f.RepositionFunc != nil {
		return f.RepositionFunc(ctx, entryID, targetPosition)
	}
	return &entryservice.RepositionResult{}, nil
}

func (f *FakeService) GetEntry(ctx context.Context, entryID uuid.UUID) (*entrydb.Entry, error) {
	f.record("GetEntry")
	if f.GetEntryFunc != nil {
		return f.GetEntryFunc(ctx, entryID)
	}
	return nil, entrydb.ErrNotFound
}

func (f *FakeService) ListEntries(ctx context.Context, eventID uuid.UUID) ([]entrydb.Entry, error) {
	f.record("ListEntries")
	if f.ListEntriesFunc != nil {
		return f.ListEntriesFunc(ctx, eventID)
	}
	return nil, nil
}

func (f *FakeService) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

var _ entryservice.Service = (*FakeService)(nil)

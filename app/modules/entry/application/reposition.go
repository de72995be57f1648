package entryservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/judgeboard/app/events"
	entrydomain "github.com/Black-And-White-Club/judgeboard/app/modules/entry/domain"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/pkg/results"
)

// RepositionResult is the committed outcome of a reposition.
type RepositionResult struct {
	Entry   *entrydb.Entry
	Changes []entrydomain.Step
}

// NoOp reports whether nothing had to change.
func (r *RepositionResult) NoOp() bool { return len(r.Changes) == 0 }

// Reposition moves an entry to targetPosition inside one transaction that
// holds the event's advisory lock. Sentinel targets never touch other entries
// and a target equal to the current position changes nothing.
func (s *EntryService) Reposition(ctx context.Context, entryID uuid.UUID, targetPosition int) (*RepositionResult, error) {
	repositionTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[*RepositionResult, error], error) {
		return s.repositionLogic(ctx, db, entryID, targetPosition)
	}

	result, err := withTelemetry(s, ctx, "Reposition", entryID.String(), func(ctx context.Context) (results.OperationResult[*RepositionResult, error], error) {
		return runInTx(s, ctx, repositionTx)
	})
	if err != nil {
		return nil, err
	}
	if result.IsFailure() {
		return nil, *result.Failure
	}

	out := *result.Success
	if !out.NoOp() {
		s.publishRepositioned(ctx, out, targetPosition)
	}
	return out, nil
}

func (s *EntryService) repositionLogic(ctx context.Context, db bun.IDB, entryID uuid.UUID, target int) (results.OperationResult[*RepositionResult, error], error) {
	if err := entrydomain.ValidateTarget(target); err != nil {
		return results.FailureResult[*RepositionResult, error](err), nil
	}

	entry, err := s.repo.GetEntry(ctx, db, entryID)
	if err != nil {
		if errors.Is(err, entrydb.ErrNotFound) {
			return results.FailureResult[*RepositionResult, error](err), nil
		}
		return results.OperationResult[*RepositionResult, error]{}, fmt.Errorf("failed to load entry: %w", err)
	}

	if err := s.repo.AcquireEventLock(ctx, db, entry.EventID); err != nil {
		return results.OperationResult[*RepositionResult, error]{}, err
	}

	// Re-read under the lock; the sequence may have moved since the first read.
	entries, err := s.repo.ListEntriesByEvent(ctx, db, entry.EventID)
	if err != nil {
		return results.OperationResult[*RepositionResult, error]{}, fmt.Errorf("failed to load event entries: %w", err)
	}

	steps, err := entrydomain.PlanMove(slotsOf(entries), entryID.String(), target)
	if err != nil {
		var verr *entrydomain.ValidationError
		if errors.As(err, &verr) || errors.Is(err, entrydomain.ErrPositionConflict) || errors.Is(err, entrydomain.ErrInvariantViolation) {
			return results.FailureResult[*RepositionResult, error](err), nil
		}
		return results.OperationResult[*RepositionResult, error]{}, fmt.Errorf("failed to plan move: %w", err)
	}
	if len(steps) == 0 {
		return results.SuccessResult[*RepositionResult, error](&RepositionResult{Entry: entry}), nil
	}

	for _, step := range steps {
		id, err := uuid.Parse(step.EntryID)
		if err != nil {
			return results.OperationResult[*RepositionResult, error]{}, fmt.Errorf("invalid entry id in plan: %w", err)
		}
		if err := s.repo.UpdatePosition(ctx, db, id, step.To); err != nil {
			if errors.Is(err, entrydb.ErrPositionTaken) {
				// Returned as an error so the transaction rolls back.
				return results.OperationResult[*RepositionResult, error]{}, fmt.Errorf("%w: %w", entrydomain.ErrPositionConflict, err)
			}
			return results.OperationResult[*RepositionResult, error]{}, err
		}
	}

	after, err := s.repo.ListEntriesByEvent(ctx, db, entry.EventID)
	if err != nil {
		return results.OperationResult[*RepositionResult, error]{}, fmt.Errorf("failed to reload event entries: %w", err)
	}
	if err := entrydomain.CheckUnique(slotsOf(after)); err != nil {
		return results.OperationResult[*RepositionResult, error]{}, err
	}

	moved := entry
	for i := range after {
		if after[i].ID == entryID {
			moved = &after[i]
			break
		}
	}

	return results.SuccessResult[*RepositionResult, error](&RepositionResult{
		Entry:   moved,
		Changes: steps,
	}), nil
}

func (s *EntryService) publishRepositioned(ctx context.Context, res *RepositionResult, target int) {
	if s.publisher == nil {
		return
	}

	payload := events.EntryRepositionedPayloadV1{
		EventID:        res.Entry.EventID.String(),
		EntryID:        res.Entry.ID.String(),
		TargetPosition: target,
		RepositionedAt: s.now().UTC(),
	}
	for _, step := range res.Changes {
		if step.To == entrydomain.TempPosition {
			continue
		}
		payload.Changes = append(payload.Changes, events.PositionChange{
			EntryID: step.EntryID,
			From:    step.From,
			To:      step.To,
		})
	}

	msg, err := events.NewMessage(ctx, payload)
	if err == nil {
		err = s.publisher.Publish(events.EntryRepositionedV1, msg)
	}
	if err != nil {
		// The move is committed; subscribers catch up on the next listing poll.
		s.logger.WarnContext(ctx, "Failed to publish reposition event",
			observability.CorrelationAttr(ctx),
			slog.String("entry_id", res.Entry.ID.String()),
			slog.Int("target", target),
			observability.ErrorAttr(err),
		)
	}
}

// GetEntry returns a single entry.
func (s *EntryService) GetEntry(ctx context.Context, entryID uuid.UUID) (*entrydb.Entry, error) {
	result, err := withTelemetry(s, ctx, "GetEntry", entryID.String(), func(ctx context.Context) (results.OperationResult[*entrydb.Entry, error], error) {
		entry, err := s.repo.GetEntry(ctx, nil, entryID)
		if err != nil {
			if errors.Is(err, entrydb.ErrNotFound) {
				return results.FailureResult[*entrydb.Entry, error](err), nil
			}
			return results.OperationResult[*entrydb.Entry, error]{}, err
		}
		return results.SuccessResult[*entrydb.Entry, error](entry), nil
	})
	if err != nil {
		return nil, err
	}
	if result.IsFailure() {
		return nil, *result.Failure
	}
	return *result.Success, nil
}

// ListEntries returns an event's entries in position order.
func (s *EntryService) ListEntries(ctx context.Context, eventID uuid.UUID) ([]entrydb.Entry, error) {
	result, err := withTelemetry(s, ctx, "ListEntries", eventID.String(), func(ctx context.Context) (results.OperationResult[[]entrydb.Entry, error], error) {
		entries, err := s.repo.ListEntriesByEvent(ctx, nil, eventID)
		if err != nil {
			return results.OperationResult[[]entrydb.Entry, error]{}, err
		}
		return results.SuccessResult[[]entrydb.Entry, error](entries), nil
	})
	if err != nil {
		return nil, err
	}
	return *result.Success, nil
}

func slotsOf(entries []entrydb.Entry) []entrydomain.Slot {
	slots := make([]entrydomain.Slot, len(entries))
	for i := range entries {
		slots[i] = entries[i].Slot()
	}
	return slots
}

package scoreservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/judgeboard/app/events"
	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	scoredb "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/repositories"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
	"github.com/Black-And-White-Club/judgeboard/pkg/results"
)

// ErrEntryNotFound is returned when the entry does not exist in the event.
var ErrEntryNotFound = errors.New("entry not found in event")

// SaveScoresRequest is one judge's values for one entry, keyed by category
// name. Categories absent from Values keep their stored value.
type SaveScoresRequest struct {
	EventID uuid.UUID
	EntryID uuid.UUID
	JudgeID string
	Values  scoredomain.Values
}

// SaveScoresResult is the committed score with its re-derived status.
type SaveScoresResult struct {
	ScoreID uuid.UUID
	EntryID uuid.UUID
	Status  scoredomain.Status
	Total   int
	Values  scoredomain.Values
	SavedAt time.Time
}

// SaveScores validates and upserts the request's values. The write is
// idempotent: replaying the same request leaves the same stored values.
func (s *ScoreService) SaveScores(ctx context.Context, req SaveScoresRequest) (*SaveScoresResult, error) {
	saveTx := func(ctx context.Context, db bun.IDB) (results.OperationResult[*SaveScoresResult, error], error) {
		return s.saveScoresLogic(ctx, db, req)
	}

	result, err := withTelemetry(s, ctx, "SaveScores", req.EntryID.String(), func(ctx context.Context) (results.OperationResult[*SaveScoresResult, error], error) {
		return runInTx(s, ctx, saveTx)
	})
	if err != nil {
		return nil, err
	}
	if result.IsFailure() {
		return nil, *result.Failure
	}

	out := *result.Success
	s.notifySaved(ctx, req, out)
	return out, nil
}

func (s *ScoreService) saveScoresLogic(ctx context.Context, db bun.IDB, req SaveScoresRequest) (results.OperationResult[*SaveScoresResult, error], error) {
	if req.JudgeID == "" {
		return results.FailureResult[*SaveScoresResult, error](&scoredomain.ValidationError{Reason: "judge is required"}), nil
	}
	if err := req.Values.Validate(s.maxScore); err != nil {
		return results.FailureResult[*SaveScoresResult, error](err), nil
	}

	entry, err := s.entries.GetEntry(ctx, db, req.EntryID)
	if err != nil {
		if errors.Is(err, entrydb.ErrNotFound) {
			return results.FailureResult[*SaveScoresResult, error](ErrEntryNotFound), nil
		}
		return results.OperationResult[*SaveScoresResult, error]{}, fmt.Errorf("failed to load entry: %w", err)
	}
	if entry.EventID != req.EventID {
		return results.FailureResult[*SaveScoresResult, error](ErrEntryNotFound), nil
	}

	rows, err := s.repo.ListCategories(ctx, db, req.EventID)
	if err != nil {
		return results.OperationResult[*SaveScoresResult, error]{}, fmt.Errorf("failed to load categories: %w", err)
	}
	byName := make(map[string]scoredb.Category, len(rows))
	for _, c := range rows {
		byName[c.Name] = c
	}
	for _, name := range req.Values.Names() {
		if _, ok := byName[name]; !ok {
			return results.FailureResult[*SaveScoresResult, error](&scoredomain.ValidationError{Field: name, Reason: "unknown category"}), nil
		}
	}

	scoreID, err := s.repo.UpsertScore(ctx, db, &scoredb.Score{
		EventID: req.EventID,
		EntryID: req.EntryID,
		JudgeID: req.JudgeID,
	})
	if err != nil {
		return results.OperationResult[*SaveScoresResult, error]{}, err
	}

	items := make([]scoredb.ScoreItem, 0, len(req.Values))
	for _, name := range req.Values.Names() {
		items = append(items, scoredb.ScoreItem{
			ScoreID:    scoreID,
			CategoryID: byName[name].ID,
			Value:      req.Values[name].Ptr(),
		})
	}
	if err := s.repo.UpsertScoreItems(ctx, db, items); err != nil {
		return results.OperationResult[*SaveScoresResult, error]{}, err
	}

	stored, err := s.repo.GetScoreItems(ctx, db, scoreID)
	if err != nil {
		return results.OperationResult[*SaveScoresResult, error]{}, fmt.Errorf("failed to reload score items: %w", err)
	}
	values := valuesOf(rows, stored)
	categories := domainCategories(rows)

	return results.SuccessResult[*SaveScoresResult, error](&SaveScoresResult{
		ScoreID: scoreID,
		EntryID: req.EntryID,
		Status:  scoredomain.DeriveStatus(entry.OrganizationName(), categories, values),
		Total:   values.Total(),
		Values:  values,
		SavedAt: s.now().UTC(),
	}), nil
}

func (s *ScoreService) notifySaved(ctx context.Context, req SaveScoresRequest, res *SaveScoresResult) {
	if s.notifier == nil {
		return
	}
	payload := events.ScoreSavedPayloadV1{
		EventID: req.EventID.String(),
		EntryID: req.EntryID.String(),
		JudgeID: req.JudgeID,
		Status:  res.Status.String(),
		Total:   res.Total,
		SavedAt: res.SavedAt,
	}
	if err := s.notifier.NotifyScoreSaved(ctx, payload); err != nil {
		// The score is committed; the event is best effort.
		s.logger.WarnContext(ctx, "Failed to announce saved score",
			observability.CorrelationAttr(ctx),
			slog.String("entry_id", payload.EntryID),
			observability.ErrorAttr(err),
		)
	}
}

// valuesOf maps stored items back to category names. Items for categories
// that no longer exist are dropped.
func valuesOf(categories []scoredb.Category, items []scoredb.ScoreItem) scoredomain.Values {
	names := make(map[uuid.UUID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	values := make(scoredomain.Values, len(items))
	for _, item := range items {
		name, ok := names[item.CategoryID]
		if !ok {
			continue
		}
		values[name] = scoredomain.FromPtr(item.Value)
	}
	return values
}

func domainCategories(rows []scoredb.Category) []scoredomain.Category {
	out := make([]scoredomain.Category, len(rows))
	for i := range rows {
		out[i] = rows[i].Domain()
	}
	return out
}

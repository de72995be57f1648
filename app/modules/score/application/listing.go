package scoreservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	entrydb "github.com/Black-And-White-Club/judgeboard/app/modules/entry/infrastructure/repositories"
	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	scoredb "github.com/Black-And-White-Club/judgeboard/app/modules/score/infrastructure/repositories"
	"github.com/Black-And-White-Club/judgeboard/pkg/results"
)

// EntryStatus is one row of a judge's listing.
type EntryStatus struct {
	Entry  entrydb.Entry
	Values scoredomain.Values
	Total  int
	Status scoredomain.Status
	Scored bool
}

// Listing is a judge's view of an event.
type Listing struct {
	EventID    uuid.UUID
	JudgeID    string
	Categories []scoredomain.Category
	Entries    []EntryStatus
	Summary    scoredomain.Summary
}

// ListEntriesWithStatus derives every entry's status for one judge. Entries
// come back in position order and include unapproved ones; callers filter.
func (s *ScoreService) ListEntriesWithStatus(ctx context.Context, eventID uuid.UUID, judgeID string) (*Listing, error) {
	result, err := withTelemetry(s, ctx, "ListEntriesWithStatus", eventID.String(), func(ctx context.Context) (results.OperationResult[*Listing, error], error) {
		listing, err := s.buildListing(ctx, eventID, judgeID)
		if err != nil {
			return results.OperationResult[*Listing, error]{}, err
		}
		return results.SuccessResult[*Listing, error](listing), nil
	})
	if err != nil {
		return nil, err
	}
	return *result.Success, nil
}

func (s *ScoreService) buildListing(ctx context.Context, eventID uuid.UUID, judgeID string) (*Listing, error) {
	rows, err := s.repo.ListCategories(ctx, nil, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	entries, err := s.entries.ListEntriesByEvent(ctx, nil, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	scores, err := s.repo.ListScoresForJudge(ctx, nil, eventID, judgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}

	byEntry := make(map[uuid.UUID]*scoredb.Score, len(scores))
	for i := range scores {
		byEntry[scores[i].EntryID] = &scores[i]
	}

	categories := domainCategories(rows)
	listing := &Listing{
		EventID:    eventID,
		JudgeID:    judgeID,
		Categories: categories,
		Entries:    make([]EntryStatus, 0, len(entries)),
		Summary:    scoredomain.Summary{},
	}

	for _, entry := range entries {
		row := EntryStatus{Entry: entry, Values: scoredomain.Values{}}
		if score, ok := byEntry[entry.ID]; ok {
			row.Scored = true
			items, err := s.itemsFor(ctx, score)
			if err != nil {
				return nil, err
			}
			row.Values = valuesOf(rows, items)
		}
		row.Total = row.Values.Total()
		row.Status = scoredomain.DeriveStatus(entry.OrganizationName(), categories, row.Values)
		listing.Summary.Add(row.Status)
		listing.Entries = append(listing.Entries, row)
	}
	return listing, nil
}

// itemsFor returns a score's items, reading them directly when the loaded
// relation came back empty so a scored entry is never reported unstarted.
func (s *ScoreService) itemsFor(ctx context.Context, score *scoredb.Score) ([]scoredb.ScoreItem, error) {
	if len(score.Items) > 0 {
		return score.Items, nil
	}
	items, err := s.repo.GetScoreItems(ctx, nil, score.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-fetch score items: %w", err)
	}
	if len(items) > 0 {
		s.logger.DebugContext(ctx, "Recovered score items missing from relation",
			slog.String("score_id", score.ID.String()),
			slog.Int("items", len(items)),
		)
	}
	return items, nil
}

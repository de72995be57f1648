package entrydomain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sequence(positions ...int) []Slot {
	slots := make([]Slot, len(positions))
	for i, p := range positions {
		slots[i] = Slot{EntryID: fmt.Sprintf("e%d", i+1), Position: intPtr(p)}
	}
	return slots
}

func positionsByEntry(slots []Slot) map[string]int {
	out := make(map[string]int, len(slots))
	for _, s := range slots {
		if s.Position != nil {
			out[s.EntryID] = *s.Position
		}
	}
	return out
}

func TestPlanMove(t *testing.T) {
	tests := []struct {
		name    string
		slots   []Slot
		entryID string
		target  int
		want    map[string]int
		touched int
	}{
		{
			name:    "move up the list shifts the run between",
			slots:   sequence(1, 2, 3, 4, 5),
			entryID: "e4",
			target:  2,
			want:    map[string]int{"e1": 1, "e4": 2, "e2": 3, "e3": 4, "e5": 5},
			touched: 3,
		},
		{
			name:    "move down the list shifts the run between",
			slots:   sequence(1, 2, 3, 4, 5),
			entryID: "e2",
			target:  4,
			want:    map[string]int{"e1": 1, "e3": 2, "e4": 3, "e2": 4, "e5": 5},
			touched: 3,
		},
		{
			name:    "free target is a direct update",
			slots:   sequence(1, 2, 3),
			entryID: "e1",
			target:  7,
			want:    map[string]int{"e1": 7, "e2": 2, "e3": 3},
			touched: 1,
		},
		{
			name:    "gap stops the shift",
			slots:   sequence(1, 2, 4, 5),
			entryID: "e4",
			target:  1,
			want:    map[string]int{"e4": 1, "e1": 2, "e2": 3, "e3": 4},
			touched: 3,
		},
		{
			name:    "unplaced entry inserted into an occupied slot",
			slots:   sequence(1, 2, 3, UnplacedPosition),
			entryID: "e4",
			target:  2,
			want:    map[string]int{"e1": 1, "e4": 2, "e2": 3, "e3": 4},
			touched: 3,
		},
		{
			name:    "placeholder entry inserted into an occupied slot",
			slots:   sequence(1, 2, PlaceholderPosition),
			entryID: "e3",
			target:  1,
			want:    map[string]int{"e3": 1, "e1": 2, "e2": 3},
			touched: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := PlanMove(tt.slots, tt.entryID, tt.target)
			if err != nil {
				t.Fatalf("PlanMove() error = %v", err)
			}

			moved := map[string]bool{}
			for _, s := range steps {
				moved[s.EntryID] = true
			}
			if len(moved) != tt.touched {
				t.Errorf("touched %d entries, want %d: %+v", len(moved), tt.touched, steps)
			}

			got, err := Apply(tt.slots, steps)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, positionsByEntry(got)); diff != "" {
				t.Errorf("positions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanMoveSamePositionIsNoop(t *testing.T) {
	steps, err := PlanMove(sequence(1, 2, 3), "e2", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 0 {
		t.Fatalf("expected no steps, got %+v", steps)
	}
}

func TestPlanMoveFinalStepReportsOrigin(t *testing.T) {
	tests := []struct {
		name   string
		mover  string
		target int
		from   int
	}{
		{name: "up the list", mover: "e4", target: 2, from: 4},
		{name: "down the list", mover: "e1", target: 3, from: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := PlanMove(sequence(1, 2, 3, 4, 5), tt.mover, tt.target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			last := steps[len(steps)-1]
			want := Step{EntryID: tt.mover, From: intPtr(tt.from), To: tt.target}
			if diff := cmp.Diff(want, last); diff != "" {
				t.Errorf("final step mismatch (-want +got):\n%s", diff)
			}
			for _, s := range steps[1:] {
				if s.From != nil && *s.From == TempPosition {
					t.Errorf("step %+v reports the parking slot as its origin", s)
				}
			}
		})
	}
}

func TestPlanMoveSentinelTargets(t *testing.T) {
	slots := sequence(1, 2, UnplacedPosition, UnplacedPosition)

	for _, target := range []int{UnplacedPosition, PlaceholderPosition} {
		steps, err := PlanMove(slots, "e1", target)
		if err != nil {
			t.Fatalf("target %d: unexpected error: %v", target, err)
		}
		if len(steps) != 1 || steps[0].EntryID != "e1" || steps[0].To != target {
			t.Fatalf("target %d: expected a single direct step, got %+v", target, steps)
		}
		got, err := Apply(slots, steps)
		if err != nil {
			t.Fatalf("target %d: Apply() error = %v", target, err)
		}
		if p := positionsByEntry(got)["e2"]; p != 2 {
			t.Fatalf("target %d: e2 moved to %d", target, p)
		}
	}
}

func TestPlanMoveValidation(t *testing.T) {
	for _, target := range []int{-1, -50, UnplacedPosition + 1} {
		_, err := PlanMove(sequence(1, 2), "e1", target)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("target %d: expected ValidationError, got %v", target, err)
		}
	}
}

func TestPlanMoveUnknownEntry(t *testing.T) {
	_, err := PlanMove(sequence(1, 2), "missing", 1)
	if !errors.Is(err, ErrEntryNotInEvent) {
		t.Fatalf("expected ErrEntryNotInEvent, got %v", err)
	}
}

func TestPlanMoveRejectsCorruptSequence(t *testing.T) {
	_, err := PlanMove(sequence(1, 1, 2), "e3", 1)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestPlanMoveInsertNeedsRoomBelowUnplaced(t *testing.T) {
	slots := []Slot{
		{EntryID: "top", Position: intPtr(UnplacedPosition - 1)},
		{EntryID: "new", Position: nil},
	}
	_, err := PlanMove(slots, "new", UnplacedPosition-1)
	if !errors.Is(err, ErrPositionConflict) {
		t.Fatalf("expected ErrPositionConflict, got %v", err)
	}
}

// Every pair of source and target in a dense sequence must plan to a
// permutation with no duplicate at any intermediate step.
func TestPlanMoveExhaustive(t *testing.T) {
	const n = 6
	for from := 1; from <= n; from++ {
		for to := 1; to <= n; to++ {
			slots := sequence(1, 2, 3, 4, 5, 6)
			mover := fmt.Sprintf("e%d", from)

			steps, err := PlanMove(slots, mover, to)
			if err != nil {
				t.Fatalf("%d->%d: PlanMove() error = %v", from, to, err)
			}
			got, err := Apply(slots, steps)
			if err != nil {
				t.Fatalf("%d->%d: Apply() error = %v", from, to, err)
			}

			positions := positionsByEntry(got)
			if positions[mover] != to {
				t.Fatalf("%d->%d: mover ended at %d", from, to, positions[mover])
			}
			seen := map[int]bool{}
			for _, p := range positions {
				if p < 1 || p > n || seen[p] {
					t.Fatalf("%d->%d: not a permutation: %v", from, to, positions)
				}
				seen[p] = true
			}
		}
	}
}

func TestSortByPosition(t *testing.T) {
	slots := []Slot{
		{EntryID: "c", Position: nil},
		{EntryID: "b", Position: intPtr(UnplacedPosition)},
		{EntryID: "a", Position: intPtr(2)},
		{EntryID: "z", Position: intPtr(1)},
	}
	SortByPosition(slots)

	var order []string
	for _, s := range slots {
		order = append(order, s.EntryID)
	}
	if diff := cmp.Diff([]string{"z", "a", "b", "c"}, order); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

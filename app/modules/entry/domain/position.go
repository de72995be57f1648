package entrydomain

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// UnplacedPosition marks withdrawn or unplaced entries. Any number of
	// entries may hold it at once.
	UnplacedPosition = 999
	// PlaceholderPosition is held transiently during client-driven swaps and
	// is also exempt from uniqueness.
	PlaceholderPosition = 0
	// TempPosition parks the moving entry while others shift. It is outside
	// the valid range and is held by at most one entry per event because moves
	// are serialized per event.
	TempPosition = -1
)

var (
	// ErrEntryNotInEvent is returned when the moving entry is absent from the slot list.
	ErrEntryNotInEvent = errors.New("entry not found in event")
	// ErrPositionConflict is returned when a move cannot be applied without a collision.
	ErrPositionConflict = errors.New("position conflict")
	// ErrInvariantViolation is returned when a sequence holds duplicate non-exempt positions.
	ErrInvariantViolation = errors.New("duplicate position in event")
)

// ValidationError rejects a target before any mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid position: " + e.Reason }

// IsExempt reports whether a position is excluded from per-event uniqueness.
func IsExempt(p int) bool {
	return p == PlaceholderPosition || p == UnplacedPosition
}

// IsOrdinal reports whether a position is a real, unique slot.
func IsOrdinal(p *int) bool {
	return p != nil && *p > 0 && *p < UnplacedPosition
}

// ValidateTarget rejects negative and out-of-range targets.
func ValidateTarget(target int) error {
	if target < 0 {
		return &ValidationError{Reason: fmt.Sprintf("%d is negative", target)}
	}
	if target > UnplacedPosition {
		return &ValidationError{Reason: fmt.Sprintf("%d exceeds %d", target, UnplacedPosition)}
	}
	return nil
}

// Slot is an entry's current position within its event.
type Slot struct {
	EntryID  string
	Position *int
}

// Step assigns one entry a new position. Steps must be applied in order.
// From is the position the entry held before the move, so a mover parked at
// TempPosition reports its original slot on its final step.
type Step struct {
	EntryID string
	From    *int
	To      int
}

// PlanMove computes the ordered single-row updates that move entryID to
// target without two entries ever sharing an ordinal position. A nil plan
// means the entry already holds the target.
//
// Only the contiguous run of occupied slots between the target and the
// mover's old slot shifts; entries past a gap keep their positions.
func PlanMove(slots []Slot, entryID string, target int) ([]Step, error) {
	if err := ValidateTarget(target); err != nil {
		return nil, err
	}

	var mover *Slot
	occupied := make(map[int]string, len(slots))
	for i := range slots {
		s := &slots[i]
		if s.EntryID == entryID {
			mover = s
		}
		if !IsOrdinal(s.Position) {
			continue
		}
		if other, dup := occupied[*s.Position]; dup {
			return nil, fmt.Errorf("%w: %s and %s at %d", ErrInvariantViolation, other, s.EntryID, *s.Position)
		}
		occupied[*s.Position] = s.EntryID
	}
	if mover == nil {
		return nil, ErrEntryNotInEvent
	}

	from := mover.Position
	if from != nil && *from == target {
		return nil, nil
	}

	direct := []Step{{EntryID: entryID, From: from, To: target}}
	if IsExempt(target) {
		return direct, nil
	}
	if _, taken := occupied[target]; !taken {
		return direct, nil
	}

	if !IsOrdinal(from) {
		return planInsert(occupied, entryID, from, target)
	}

	cur := *from
	steps := []Step{{EntryID: entryID, From: from, To: TempPosition}}
	if target < cur {
		// Entries in [target, cur) move down the list by one, highest first.
		top := target
		for top+1 < cur {
			if _, ok := occupied[top+1]; !ok {
				break
			}
			top++
		}
		for p := top; p >= target; p-- {
			steps = append(steps, Step{EntryID: occupied[p], From: intPtr(p), To: p + 1})
		}
	} else {
		// Entries in (cur, target] move up the list by one, lowest first.
		bottom := target
		for bottom-1 > cur {
			if _, ok := occupied[bottom-1]; !ok {
				break
			}
			bottom--
		}
		for p := bottom; p <= target; p++ {
			steps = append(steps, Step{EntryID: occupied[p], From: intPtr(p), To: p - 1})
		}
	}
	// The final step reports where the mover started, not the parking slot.
	steps = append(steps, Step{EntryID: entryID, From: from, To: target})
	return steps, nil
}

// planInsert places an entry that holds no ordinal slot by opening the
// target: the run of occupied slots starting at target shifts by one,
// highest first.
func planInsert(occupied map[int]string, entryID string, from *int, target int) ([]Step, error) {
	top := target
	for {
		if _, ok := occupied[top+1]; !ok {
			break
		}
		top++
	}
	if top+1 >= UnplacedPosition {
		return nil, fmt.Errorf("%w: no free slot above %d", ErrPositionConflict, target)
	}

	steps := make([]Step, 0, top-target+2)
	for p := top; p >= target; p-- {
		steps = append(steps, Step{EntryID: occupied[p], From: intPtr(p), To: p + 1})
	}
	steps = append(steps, Step{EntryID: entryID, From: from, To: target})
	return steps, nil
}

// Apply returns the slots after the steps, verifying uniqueness after every
// step. It mirrors what the store enforces row by row.
func Apply(slots []Slot, steps []Step) ([]Slot, error) {
	out := make([]Slot, len(slots))
	index := make(map[string]int, len(slots))
	for i, s := range slots {
		out[i] = Slot{EntryID: s.EntryID, Position: copyPtr(s.Position)}
		index[s.EntryID] = i
	}

	for n, step := range steps {
		i, ok := index[step.EntryID]
		if !ok {
			return nil, fmt.Errorf("step %d: %w: %s", n, ErrEntryNotInEvent, step.EntryID)
		}
		out[i].Position = intPtr(step.To)
		if err := CheckUnique(out); err != nil {
			return nil, fmt.Errorf("step %d: %w", n, err)
		}
	}
	return out, nil
}

// CheckUnique returns ErrInvariantViolation when two entries share a
// non-exempt position. The temporary slot counts as non-exempt.
func CheckUnique(slots []Slot) error {
	seen := make(map[int]string, len(slots))
	for _, s := range slots {
		if s.Position == nil || IsExempt(*s.Position) {
			continue
		}
		if other, dup := seen[*s.Position]; dup {
			return fmt.Errorf("%w: %s and %s at %d", ErrInvariantViolation, other, s.EntryID, *s.Position)
		}
		seen[*s.Position] = s.EntryID
	}
	return nil
}

// SortByPosition orders slots by position with unplaced and nil entries last.
func SortByPosition(slots []Slot) {
	rank := func(p *int) int {
		if p == nil {
			return UnplacedPosition + 1
		}
		return *p
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return rank(slots[i].Position) < rank(slots[j].Position)
	})
}

func intPtr(n int) *int { return &n }

func copyPtr(p *int) *int {
	if p == nil {
		return nil
	}
	return intPtr(*p)
}

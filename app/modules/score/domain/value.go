package scoredomain

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrNonIntegerValue is returned when a wire value is not a JSON integer or null.
var ErrNonIntegerValue = errors.New("score value must be an integer or null")

// Value is one category's recorded value: unanswered (null), explicit none (0)
// or a positive integer up to the configured maximum.
type Value struct {
	n   int
	set bool
}

// Unanswered is the null value.
func Unanswered() Value { return Value{} }

// None is the explicit zero used for "none" and no-show markings.
func None() Value { return Value{n: 0, set: true} }

// Of wraps an integer value.
func Of(n int) Value { return Value{n: n, set: true} }

func (v Value) IsNull() bool { return !v.set }

// Int returns the value and whether it was set.
func (v Value) Int() (int, bool) { return v.n, v.set }

// OrZero returns the value, counting null as zero.
func (v Value) OrZero() int {
	if !v.set {
		return 0
	}
	return v.n
}

// Ptr converts to the nullable column representation.
func (v Value) Ptr() *int {
	if !v.set {
		return nil
	}
	n := v.n
	return &n
}

// FromPtr converts from the nullable column representation.
func FromPtr(p *int) Value {
	if p == nil {
		return Unanswered()
	}
	return Of(*p)
}

func (v Value) String() string {
	if !v.set {
		return "null"
	}
	return strconv.Itoa(v.n)
}

// Validate checks the value against [0, max].
func (v Value) Validate(max int) error {
	if !v.set {
		return nil
	}
	if v.n < 0 {
		return fmt.Errorf("value %d is negative", v.n)
	}
	if v.n > max {
		return fmt.Errorf("value %d exceeds maximum %d", v.n, max)
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(v.n)), nil
}

// UnmarshalJSON accepts null or a bare JSON integer. Fractions, exponents and
// quoted numbers are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Unanswered()
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNonIntegerValue, data)
	}
	*v = Of(n)
	return nil
}

// Values maps category name to recorded value. A missing key is unanswered.
type Values map[string]Value

// Get returns the value for a category, null when absent.
func (vs Values) Get(category string) Value {
	if vs == nil {
		return Unanswered()
	}
	return vs[category]
}

// Total sums all values, counting null as zero.
func (vs Values) Total() int {
	total := 0
	for _, v := range vs {
		total += v.OrZero()
	}
	return total
}

// Validate checks every value against [0, max] and reports the first
// offending category in name order.
func (vs Values) Validate(max int) error {
	for _, name := range vs.Names() {
		if err := vs[name].Validate(max); err != nil {
			return &ValidationError{Field: name, Reason: err.Error()}
		}
	}
	return nil
}

// Merge returns a copy of vs overlaid with newer; newer wins per category.
func (vs Values) Merge(newer Values) Values {
	out := make(Values, len(vs)+len(newer))
	for k, v := range vs {
		out[k] = v
	}
	for k, v := range newer {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (vs Values) Clone() Values {
	return Values(nil).Merge(vs)
}

// Names returns the category names in sorted order.
func (vs Values) Names() []string {
	names := make([]string, 0, len(vs))
	for k := range vs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ValidationError is a rejected score input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid score: " + e.Reason
	}
	return fmt.Sprintf("invalid score for %q: %s", e.Field, e.Reason)
}

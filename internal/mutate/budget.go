package mutate

import "time"

// Budget is the cooperative enumeration guard. It replaces the old
// signal-based per-script timeout: enumeration loops consult the budget
// and fall back to boundary sampling instead of being killed mid-run.
type Budget struct {
	deadline time.Time
	maxEnum  int64
	now      func() time.Time
}

// NewBudget returns a budget with a wall-clock deadline and an element
// cap for exhaustive enumeration. Zero values disable the respective
// guard.
func NewBudget(timeout time.Duration, maxEnum int64) *Budget {
	b := &Budget{maxEnum: maxEnum, now: time.Now}
	if timeout > 0 {
		b.deadline = time.Now().Add(timeout)
	}
	return b
}

// Expired reports whether the wall-clock deadline has passed.
func (b *Budget) Expired() bool {
	if b == nil || b.deadline.IsZero() {
		return false
	}
	return b.now().After(b.deadline)
}

// AllowsEnumeration reports whether an exhaustive enumeration of n
// elements fits the element cap.
func (b *Budget) AllowsEnumeration(n int64) bool {
	if b == nil || b.maxEnum <= 0 {
		return true
	}
	return n <= b.maxEnum
}

package testcase

import "sort"

// Pair is one candidate (rule, field pair) task.
type Pair struct {
	RuleID   string
	Field1ID int
	Field2ID int // 0 for single-field tasks
	Score    float64
}

// PairPriority orders candidate pairs before the generator visits
// them. Real message types produce tens of thousands of raw pairs;
// the strategy decides which ones the run spends its budget on. It is
// injected so the mutation core stays decoupled from any particular
// scoring heuristic.
type PairPriority interface {
	Prioritize(pairs []Pair) []Pair
}

// InputOrder keeps pairs in the order the rule pack lists them.
type InputOrder struct{}

func (InputOrder) Prioritize(pairs []Pair) []Pair { return pairs }

// ByScore sorts pairs by descending score (e.g. an importance score
// carried over from the domain catalog), keeping input order for ties.
type ByScore struct{}

func (ByScore) Prioritize(pairs []Pair) []Pair {
	out := append([]Pair(nil), pairs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

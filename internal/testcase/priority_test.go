package testcase

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"example.com/rrcforge/internal/common"
)

func commonEntry() common.ProblemEntry {
	return common.ProblemEntry{RuleID: "r", FieldIDs: []int{1, 2}, Reason: "test"}
}

func TestInputOrderKeepsOrder(t *testing.T) {
	pairs := []Pair{
		{RuleID: "a", Field1ID: 1, Field2ID: 2},
		{RuleID: "b", Field1ID: 3, Field2ID: 4},
	}
	if diff := cmp.Diff(pairs, InputOrder{}.Prioritize(pairs)); diff != "" {
		t.Errorf("InputOrder reordered pairs (-want +got):\n%s", diff)
	}
}

func TestByScoreSortsDescendingStably(t *testing.T) {
	pairs := []Pair{
		{RuleID: "low", Score: 0.1},
		{RuleID: "tie-1", Score: 0.5},
		{RuleID: "high", Score: 0.9},
		{RuleID: "tie-2", Score: 0.5},
	}
	got := ByScore{}.Prioritize(pairs)
	want := []string{"high", "tie-1", "tie-2", "low"}
	for i, p := range got {
		if p.RuleID != want[i] {
			t.Fatalf("position %d = %q, want %q", i, p.RuleID, want[i])
		}
	}
	// The input slice stays untouched.
	if pairs[0].RuleID != "low" {
		t.Error("Prioritize mutated its input")
	}
}

func TestRunContextCountersAndSkips(t *testing.T) {
	rc := NewRunContext(nil, nil, nil)
	rc.CountField()
	rc.CountPair()
	rc.CountPair()
	rc.CountGenerated(3)
	rc.Skip(SkipDuplicatePair, commonEntry())
	rc.Skip(SkipDuplicatePair, commonEntry())
	rc.Skip(SkipRejectedRule, commonEntry())

	s := rc.Summary()
	if s.FieldsProcessed != 1 || s.PairsProcessed != 2 || s.Generated != 3 {
		t.Errorf("counters = %+v", s)
	}
	if s.Skipped[string(SkipDuplicatePair)] != 2 || s.Skipped[string(SkipRejectedRule)] != 1 {
		t.Errorf("skip matrix = %v", s.Skipped)
	}

	// Summary hands out a copy; mutating it must not leak back.
	s.Skipped["injected"] = 7
	if _, ok := rc.Summary().Skipped["injected"]; ok {
		t.Error("Summary shares its skip map with the caller")
	}
}

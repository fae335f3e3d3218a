package testcase

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"example.com/rrcforge/internal/field"
	"example.com/rrcforge/internal/mutate"
)

func baseFields() []field.FlatField {
	return []field.FlatField{
		{FieldID: 3, FieldPath: "cfg.measObjectId", FieldName: "measObjectId", FieldType: "INTEGER", CurrentValue: float64(4)},
		{FieldID: 4, FieldPath: "cfg.reportConfigId", FieldName: "reportConfigId", FieldType: "INTEGER", CurrentValue: float64(4)},
		{FieldID: 6, FieldPath: "cfg.reportAmount", FieldName: "reportAmount", FieldType: "ENUMERATED", CurrentValue: "r4"},
	}
}

func TestDedupKeyUnordered(t *testing.T) {
	a := []mutate.Assignment{{FieldID: 4, Value: 5}, {FieldID: 3, Value: 5}}
	b := []mutate.Assignment{{FieldID: 3, Value: 9}, {FieldID: 4, Value: 9}}
	if DedupKey(a) != DedupKey(b) {
		t.Errorf("DedupKey order-sensitive: %q vs %q", DedupKey(a), DedupKey(b))
	}
	if got := DedupKey(a); got != "3-4" {
		t.Errorf("DedupKey = %q, want 3-4", got)
	}
	single := []mutate.Assignment{{FieldID: 6, Value: "r8"}, {FieldID: 6, Value: "r8"}}
	if got := DedupKey(single); got != "6" {
		t.Errorf("DedupKey dedupes repeated ids: got %q, want 6", got)
	}
}

func TestAssembleWritesMutatedList(t *testing.T) {
	dir := t.TempDir()
	asm := NewAssembler(dir, nil)

	assignments := []mutate.Assignment{
		{FieldID: 3, Value: float64(5), MutationType: "violate_cross_reference", Description: "diverge from counterpart"},
		{FieldID: 4, Value: float64(4), MutationType: "violate_cross_reference", Description: "hold counterpart"},
	}
	tc, err := asm.Assemble(baseFields(), assignments, "demo-001", "CrossReference")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if tc.DedupKey != "3-4" {
		t.Errorf("DedupKey = %q", tc.DedupKey)
	}
	if want := filepath.Join(dir, "3_mut0.json"); tc.Path != want {
		t.Errorf("Path = %q, want %q", tc.Path, want)
	}

	data, err := os.ReadFile(tc.Path)
	if err != nil {
		t.Fatal(err)
	}
	var out []field.FlatField
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("written case is not a flattened list: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("written case has %d fields, want the full list of 3", len(out))
	}
	if out[0].SuggestedValue != float64(5) || out[0].MutationInfo == nil {
		t.Error("mutated field must carry suggested value and mutation info")
	}
	if out[0].MutationInfo.OriginalValue != float64(4) || out[0].MutationInfo.MutationType != "violate_cross_reference" {
		t.Errorf("mutation info = %+v", out[0].MutationInfo)
	}
	if out[2].MutationInfo != nil {
		t.Error("untouched field must not carry mutation info")
	}
}

func TestAssembleDuplicatePairFirstRuleWins(t *testing.T) {
	asm := NewAssembler(t.TempDir(), nil)
	assignments := []mutate.Assignment{{FieldID: 3, Value: 1}, {FieldID: 4, Value: 2}}

	if _, err := asm.Assemble(baseFields(), assignments, "rule-a", "CrossReference"); err != nil {
		t.Fatalf("first Assemble: %v", err)
	}
	_, err := asm.Assemble(baseFields(), assignments, "rule-b", "RangeAlignment")
	if !errors.Is(err, ErrDuplicatePair) {
		t.Fatalf("second Assemble err = %v, want ErrDuplicatePair", err)
	}
	if asm.Covered() != 1 {
		t.Errorf("Covered() = %d, want 1", asm.Covered())
	}
}

func TestAssembleMultiVariant(t *testing.T) {
	asm := NewAssembler(t.TempDir(), func(ct string) bool { return ct == "boundary" })

	for i, v := range []any{float64(1), float64(3), float64(64)} {
		tc, err := asm.Assemble(baseFields(), []mutate.Assignment{{FieldID: 6, Value: v, MutationType: "enum_min"}}, "", "boundary")
		if err != nil {
			t.Fatalf("variant %d: %v", i, err)
		}
		if want := filepath.Join(asm.outDir, "6_mut"+string(rune('0'+i))+".json"); tc.Path != want {
			t.Errorf("variant %d path = %q, want %q", i, tc.Path, want)
		}
	}
	if asm.Covered() != 1 {
		t.Errorf("Covered() = %d, want 1 unique key across variants", asm.Covered())
	}
}

func TestAssembleRejectsUnknownField(t *testing.T) {
	asm := NewAssembler(t.TempDir(), nil)
	_, err := asm.Assemble(baseFields(), []mutate.Assignment{{FieldID: 99, Value: 0}}, "r", "CrossReference")
	if err == nil {
		t.Fatal("expected error for unknown field id")
	}
}

func TestAssembleRejectsEmptyAssignments(t *testing.T) {
	asm := NewAssembler(t.TempDir(), nil)
	if _, err := asm.Assemble(baseFields(), nil, "r", "CrossReference"); err == nil {
		t.Fatal("expected error for empty assignment list")
	}
}

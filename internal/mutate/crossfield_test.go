package mutate

import (
	"errors"
	"testing"

	"example.com/rrcforge/internal/dsl"
	"example.com/rrcforge/internal/field"
)

func parseRule(t *testing.T, expr string) dsl.Node {
	t.Helper()
	ast, err := dsl.Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	return ast
}

// verify re-evaluates the rule with the synthesized assignments applied
// over the current values and checks the outcome matches the mode.
func verify(t *testing.T, ast dsl.Node, f1, f2 *field.Field, out []Assignment, mode Mode) {
	t.Helper()
	b := dsl.Bindings{"field1": f1.CurrentValue}
	if f2 != nil {
		b["field2"] = f2.CurrentValue
	}
	for _, a := range out {
		switch a.FieldID {
		case f1.ID:
			b["field1"] = a.Value
		default:
			b["field2"] = a.Value
		}
	}
	got, err := dsl.EvalBool(ast, b)
	if err != nil {
		t.Fatalf("EvalBool after assignment: %v", err)
	}
	if want := mode == Satisfy; got != want {
		t.Fatalf("rule evaluates to %v after %v, want %v", got, out, want)
	}
}

func TestCrossFieldMatchViolate(t *testing.T) {
	ast := parseRule(t, "MATCH(field1, field2)")
	f1 := intField(3, 1, 64, 4)
	f2 := intField(4, 1, 64, 4)

	s := New()
	out, err := s.CrossField(ast, "CrossReference", f1, f2, Violate)
	if err != nil {
		t.Fatalf("CrossField: %v", err)
	}
	verify(t, ast, f1, f2, out, Violate)
	if out[0].MutationType != "violate_cross_reference" {
		t.Errorf("label = %q", out[0].MutationType)
	}
}

func TestCrossFieldMatchSatisfyAlreadyHolds(t *testing.T) {
	// The pair already matches; satisfy still needs a real value change.
	ast := parseRule(t, "MATCH(field1, field2)")
	f1 := intField(3, 1, 64, 4)
	f2 := intField(4, 1, 64, 4)

	s := New()
	out, err := s.CrossField(ast, "CrossReference", f1, f2, Satisfy)
	if err != nil {
		t.Fatalf("CrossField: %v", err)
	}
	verify(t, ast, f1, f2, out, Satisfy)
	changed := false
	for _, a := range out {
		if !field.Equal(a.Value, float64(4)) {
			changed = true
		}
	}
	if !changed {
		t.Errorf("assignments %v repeat the current values", out)
	}
	if out[0].MutationType != "satisfy_cross_reference" {
		t.Errorf("label = %q", out[0].MutationType)
	}
}

func TestCrossFieldImpliesViolate(t *testing.T) {
	// Violating IMPLIES forces the condition true and the result false,
	// which moves field1 off its current value.
	ast := parseRule(t, "IMPLIES(EQ(field1, 'reportCGI'), EQ(field2, 'r1'))")
	f1 := &field.Field{ID: 5, Name: "reportType", Type: field.Choice, CurrentValue: "periodical",
		Domain: field.OptionDomain(field.Choice, []string{"periodical", "eventTriggered", "reportCGI"})}
	f2 := &field.Field{ID: 6, Name: "reportAmount", Type: field.Enumerated, CurrentValue: "r4",
		Domain: field.OptionDomain(field.Enumerated, []string{"r1", "r2", "r4", "r8"})}

	s := New()
	out, err := s.CrossField(ast, "ValueDependency", f1, f2, Violate)
	if err != nil {
		t.Fatalf("CrossField: %v", err)
	}
	verify(t, ast, f1, f2, out, Violate)
	if out[0].MutationType != "violate_value_dependency" {
		t.Errorf("label = %q", out[0].MutationType)
	}
}

func TestCrossFieldRangeWithOffsetSatisfy(t *testing.T) {
	// GE(field2, field1-1) currently fails: 0 < 1-1 is false already...
	// so start from a failing pair and satisfy it.
	ast := parseRule(t, "GE(field2, field1-1)")
	f1 := intField(1, 1, 3, 3)
	f2 := intField(7, 0, 31, 0)

	s := New()
	out, err := s.CrossField(ast, "RangeAlignment", f1, f2, Satisfy)
	if err != nil {
		t.Fatalf("CrossField: %v", err)
	}
	verify(t, ast, f1, f2, out, Satisfy)
}

func TestCrossFieldAssignmentsStayInDomain(t *testing.T) {
	ast := parseRule(t, "LE(field2, field1+4)")
	f1 := intField(1, 1, 3, 1)
	f2 := intField(7, 0, 31, 30)

	s := New()
	out, err := s.CrossField(ast, "RangeAlignment", f1, f2, Violate)
	if err != nil {
		t.Fatalf("CrossField: %v", err)
	}
	verify(t, ast, f1, f2, out, Violate)
	for _, a := range out {
		f := f1
		if a.FieldID == f2.ID {
			f = f2
		}
		if !f.Domain.Contains(a.Value) {
			t.Errorf("assignment %v escapes the domain of field %d", a.Value, a.FieldID)
		}
	}
}

func TestCrossFieldSingleField(t *testing.T) {
	ast := parseRule(t, "IN(field1, {'r1', 'r2', 'r4', 'r8'})")
	f1 := &field.Field{ID: 6, Name: "reportAmount", Type: field.Enumerated, CurrentValue: "r4",
		Domain: field.OptionDomain(field.Enumerated, []string{"r1", "r2", "r4", "r8", "infinity"})}

	s := New()
	out, err := s.CrossField(ast, "ValueDependency", f1, nil, Violate)
	if err != nil {
		t.Fatalf("CrossField: %v", err)
	}
	if len(out) != 1 || out[0].FieldID != 6 {
		t.Fatalf("out = %v", out)
	}
	verify(t, ast, f1, nil, out, Violate)
	// Only "infinity" is in the domain yet outside the allowed set.
	if out[0].Value != "infinity" {
		t.Errorf("value = %v, want infinity", out[0].Value)
	}
}

func TestCrossFieldMissingSecondField(t *testing.T) {
	ast := parseRule(t, "MATCH(field1, field2)")
	s := New()
	if _, err := s.CrossField(ast, "CrossReference", intField(1, 1, 3, 1), nil, Violate); err == nil {
		t.Fatal("expected error when the rule references an unbound field2")
	}
}

func TestCrossFieldDomainExhausted(t *testing.T) {
	// A one-value domain can never violate a constraint it satisfies.
	ast := parseRule(t, "EQ(field1, 1)")
	f1 := intField(1, 1, 1, 1)

	s := New()
	_, err := s.CrossField(ast, "ValueDependency", f1, nil, Violate)
	var de *DomainExhaustedError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DomainExhaustedError", err)
	}
}

func TestMutationLabel(t *testing.T) {
	cases := []struct {
		mode Mode
		ct   string
		want string
	}{
		{Violate, "CrossReference", "violate_cross_reference"},
		{Satisfy, "RangeAlignment", "satisfy_range_alignment"},
		{Violate, "", "violate"},
		{Violate, "boundary", "violate_boundary"},
	}
	for _, tc := range cases {
		if got := mutationLabel(tc.mode, tc.ct); got != tc.want {
			t.Errorf("mutationLabel(%s, %q) = %q, want %q", tc.mode, tc.ct, got, tc.want)
		}
	}
}

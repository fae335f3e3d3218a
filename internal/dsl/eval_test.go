package dsl

import (
	"errors"
	"testing"
)

func mustParse(t *testing.T, expr string) Node {
	t.Helper()
	n, err := Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	return n
}

func TestEvalBool(t *testing.T) {
	cases := []struct {
		expr string
		b    Bindings
		want bool
	}{
		{"EQ(field1, field2)", Bindings{"field1": 3, "field2": int64(3)}, true},
		{"EQ(field1, field2)", Bindings{"field1": "a", "field2": "b"}, false},
		{"MATCH(field1, field2)", Bindings{"field1": "5", "field2": 5}, true},
		{"NE(field1, 4)", Bindings{"field1": 4}, false},
		{"LT(field1, 10)", Bindings{"field1": 9}, true},
		{"LE(field1, 10)", Bindings{"field1": 10}, true},
		{"GT(field1, 10)", Bindings{"field1": 10}, false},
		{"GE(field2, field1-1)", Bindings{"field1": 5, "field2": 4}, true},
		{"GE(field2, field1-1)", Bindings{"field1": 5, "field2": 3}, false},
		{"LE(field2, field1+2)", Bindings{"field1": 5, "field2": 7}, true},
		{"IN(field1, {'a', 'b', 'c'})", Bindings{"field1": "b"}, true},
		{"IN(field1, {1, 2, 3})", Bindings{"field1": 4}, false},
		{"WITHIN(field2, {0, 15})", Bindings{"field2": 15}, true},
		{"WITHIN(field2, {0, 15})", Bindings{"field2": 16}, false},
		{"AND(GE(field1, 0), LE(field1, 7))", Bindings{"field1": 7}, true},
		{"OR(EQ(field1, 1), EQ(field1, 2))", Bindings{"field1": 2}, true},
		{"NOT(EQ(field1, 1))", Bindings{"field1": 1}, false},
		{"IMPLIES(EQ(field1, 'typeD'), EQ(field2, 'enabled'))", Bindings{"field1": "typeA", "field2": "off"}, true},
		{"IMPLIES(EQ(field1, 'typeD'), EQ(field2, 'enabled'))", Bindings{"field1": "typeD", "field2": "off"}, false},
		{"IMPLIES(EQ(field1, 'typeD'), EQ(field2, 'enabled'))", Bindings{"field1": "typeD", "field2": "enabled"}, true},
		{"EQ(MOD(field1, 2), 0)", Bindings{"field1": 6}, true},
		{"EQ(MOD(field1, 2), 0)", Bindings{"field1": 7}, false},
		{"EQ(field1, true)", Bindings{"field1": true}, true},
	}
	for _, tc := range cases {
		got, err := EvalBool(mustParse(t, tc.expr), tc.b)
		if err != nil {
			t.Fatalf("EvalBool(%q, %v): %v", tc.expr, tc.b, err)
		}
		if got != tc.want {
			t.Errorf("EvalBool(%q, %v) = %v, want %v", tc.expr, tc.b, got, tc.want)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	cases := []struct {
		expr string
		b    Bindings
	}{
		{"EQ(field1, field2)", Bindings{"field1": 1}},
		{"LT(field1, 'x')", Bindings{"field1": 1}},
		{"GE(field2, field1-1)", Bindings{"field1": "notanumber", "field2": 3}},
		{"WITHIN(field2, {'a', 'b'})", Bindings{"field2": 1}},
		{"EQ(MOD(field1, 0), 0)", Bindings{"field1": 4}},
	}
	for _, tc := range cases {
		if _, err := EvalBool(mustParse(t, tc.expr), tc.b); err == nil {
			t.Errorf("EvalBool(%q, %v): expected error", tc.expr, tc.b)
		}
	}
}

func TestEvalBoolRejectsNonBooleanResult(t *testing.T) {
	_, err := EvalBool(mustParse(t, "MOD(field1, 3)"), Bindings{"field1": 7})
	if err == nil {
		t.Fatal("expected non-boolean result error")
	}
	var ee *EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("error %T is not an EvalError", err)
	}
}

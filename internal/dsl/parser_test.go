package dsl

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseValidExpressions(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"MATCH(field1, field2)", "MATCH(field1,field2)"},
		{"EQ(field1,'typeD')", "EQ(field1,'typeD')"},
		{"IMPLIES(EQ(field1,'typeD'), EQ(field2,'enabled'))", "IMPLIES(EQ(field1,'typeD'),EQ(field2,'enabled'))"},
		{"GE(field2, field1-1)", "GE(field2,field1-1)"},
		{"LE(field2, field1+4)", "LE(field2,field1+4)"},
		{"IN(field2, {1, 2, 3})", "IN(field2,{1,2,3})"},
		{"AND(GE(field2, 0), LE(field2, 15))", "AND(GE(field2,0),LE(field2,15))"},
		{"WITHIN(field2, {0, 15})", "WITHIN(field2,{0,15})"},
		{"MOD(field1, 2)", "MOD(field1,2)"},
		{"NOT(EQ(field1, field2))", "NOT(EQ(field1,field2))"},
		{"eq(field1, true)", "EQ(field1,true)"},
		{"EQ(field1, -5)", "EQ(field1,-5)"},
		{"EQ(field1, setup)", "EQ(field1,'setup')"},
	}
	for _, tc := range cases {
		node, err := Parse(tc.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.expr, err)
		}
		if got := node.String(); got != tc.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tc.expr, got, tc.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		expr   string
		reason string
	}{
		{"FOO(field1)", "unrecognized operator"},
		{"EQ(field1)", "takes 2 arguments"},
		{"NOT(field1, field2)", "takes 1 arguments"},
		{"IN(field1, {})", "empty set literal"},
		{"EQ(field1, 'unterminated", "unterminated string literal"},
		{"EQ(field1, field2) extra", "trailing input"},
		{"field1", "root must be an operator"},
		{"EQ(field1, field2", "expected ')'"},
		{"EQ(field1+x, 3)", "number after arithmetic sign"},
	}
	for _, tc := range cases {
		_, err := Parse(tc.expr)
		if err == nil {
			t.Fatalf("Parse(%q): expected error", tc.expr)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Parse(%q): error %T is not a ParseError", tc.expr, err)
		}
		if !strings.Contains(err.Error(), tc.reason) {
			t.Errorf("Parse(%q) error %q does not mention %q", tc.expr, err, tc.reason)
		}
	}
}

func TestParseASTShape(t *testing.T) {
	node, err := Parse("IMPLIES(EQ(field1, 'typeD'), IN(field2, {'a', 'b'}))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Call{Op: OpIMPLIES, Args: []Node{
		Call{Op: OpEQ, Args: []Node{FieldRef{Name: "field1"}, Literal{Value: "typeD"}}},
		Call{Op: OpIN, Args: []Node{FieldRef{Name: "field2"}, SetLit{Elems: []Node{
			Literal{Value: "a"}, Literal{Value: "b"},
		}}}},
	}}
	if diff := cmp.Diff(want, node); diff != "" {
		t.Errorf("AST mismatch (-want +got):\n%s", diff)
	}
}

func TestReferences(t *testing.T) {
	cases := []struct {
		expr string
		want []string
	}{
		{"MATCH(field1, field2)", []string{"field1", "field2"}},
		{"GE(field2, field1-1)", []string{"field1", "field2"}},
		{"IN(field1, {'a'})", []string{"field1"}},
		{"EQ(field2, 3)", []string{"field2"}},
	}
	for _, tc := range cases {
		node, err := Parse(tc.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.expr, err)
		}
		if diff := cmp.Diff(tc.want, References(node)); diff != "" {
			t.Errorf("References(%q) mismatch (-want +got):\n%s", tc.expr, diff)
		}
	}
}

func TestParseNumberLiterals(t *testing.T) {
	node, err := Parse("EQ(field1, 3.5)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	call := node.(Call)
	lit, ok := call.Args[1].(Literal)
	if !ok {
		t.Fatalf("second arg is %T, want Literal", call.Args[1])
	}
	if _, ok := lit.Value.(float64); !ok {
		t.Errorf("3.5 parsed as %T, want float64", lit.Value)
	}

	node, err = Parse("EQ(field1, 42)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	lit = node.(Call).Args[1].(Literal)
	if _, ok := lit.Value.(int64); !ok {
		t.Errorf("42 parsed as %T, want int64", lit.Value)
	}
}

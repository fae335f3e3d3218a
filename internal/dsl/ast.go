// Package dsl implements the small constraint expression language used
// to relate two fields of a decoded message. Every operator appears in
// prefix call form (NAME(args...)); operands are the field placeholders
// field1/field2, literals, set literals, or nested calls.
package dsl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Op is a DSL operator name.
type Op string

const (
	OpEQ      Op = "EQ"
	OpNE      Op = "NE"
	OpIN      Op = "IN"
	OpLT      Op = "LT"
	OpLE      Op = "LE"
	OpGT      Op = "GT"
	OpGE      Op = "GE"
	OpAND     Op = "AND"
	OpOR      Op = "OR"
	OpNOT     Op = "NOT"
	OpIMPLIES Op = "IMPLIES"
	OpMATCH   Op = "MATCH"
	OpMOD     Op = "MOD"
	OpWITHIN  Op = "WITHIN"
)

// arities is the fixed operator table. Unknown names or argument count
// mismatches are parse errors, never reinterpreted.
var arities = map[Op]int{
	OpEQ: 2, OpNE: 2, OpIN: 2, OpLT: 2, OpLE: 2, OpGT: 2, OpGE: 2,
	OpAND: 2, OpOR: 2, OpNOT: 1, OpIMPLIES: 2, OpMATCH: 2, OpMOD: 2, OpWITHIN: 2,
}

// Node is one AST node.
type Node interface {
	String() string
	isNode()
}

// Call is an operator application.
type Call struct {
	Op   Op
	Args []Node
}

// FieldRef is a field placeholder (field1 or field2).
type FieldRef struct {
	Name string
}

// Literal is a number, string, or boolean constant.
type Literal struct {
	Value any
}

// SetLit is a {v1,v2,...} set literal.
type SetLit struct {
	Elems []Node
}

// Arith is a field reference offset by a constant (field1-1, field2+3).
type Arith struct {
	Ref    FieldRef
	Neg    bool
	Offset int64
}

func (Call) isNode()     {}
func (FieldRef) isNode() {}
func (Literal) isNode()  {}
func (SetLit) isNode()   {}
func (Arith) isNode()    {}

func (n Call) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return string(n.Op) + "(" + strings.Join(parts, ",") + ")"
}

func (n FieldRef) String() string { return n.Name }

func (n Literal) String() string {
	switch v := n.Value.(type) {
	case string:
		return "'" + v + "'"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (n SetLit) String() string {
	parts := make([]string, len(n.Elems))
	for i, e := range n.Elems {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (n Arith) String() string {
	sign := "+"
	if n.Neg {
		sign = "-"
	}
	return n.Ref.Name + sign + strconv.FormatInt(n.Offset, 10)
}

// References returns the sorted set of field placeholder names the
// expression mentions.
func References(n Node) []string {
	seen := make(map[string]bool)
	collectRefs(n, seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectRefs(n Node, seen map[string]bool) {
	switch t := n.(type) {
	case Call:
		for _, a := range t.Args {
			collectRefs(a, seen)
		}
	case FieldRef:
		seen[t.Name] = true
	case Arith:
		seen[t.Ref.Name] = true
	case SetLit:
		for _, e := range t.Elems {
			collectRefs(e, seen)
		}
	}
}

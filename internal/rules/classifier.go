package rules

import (
	"fmt"

	"example.com/rrcforge/internal/dsl"
)

// ClassificationError reports a rule whose AST has no recognizable
// constraint shape. The rule is rejected upstream, never guessed.
type ClassificationError struct {
	Expr   string
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %q: %s", e.Expr, e.Reason)
}

// Classify assigns a constraint type from the structural shape of the
// AST. The checks run in priority order and the first match wins, so
// the result is deterministic. The declared hint only breaks the tie
// for shapes that would otherwise land in Association.
func Classify(ast dsl.Node, hint string) (ConstraintType, error) {
	root, ok := ast.(dsl.Call)
	if !ok {
		return NoRule, &ClassificationError{Expr: ast.String(), Reason: "root is not an operator"}
	}
	refs := dsl.References(ast)

	// 1. MATCH(field1,field2) or EQ over two bare placeholders.
	if isCrossReference(root) {
		return CrossReference, nil
	}

	if len(refs) == 0 {
		return NoRule, &ClassificationError{Expr: ast.String(), Reason: "no field placeholders referenced"}
	}

	if root.Op == dsl.OpIMPLIES {
		cond, result := root.Args[0], root.Args[1]
		condRefs := dsl.References(cond)
		resultRefs := dsl.References(result)

		// 2. Condition purely on field1, result pinning field2 to a
		// literal value or value set.
		if onlyRef(condRefs, "field1") && onlyRef(resultRefs, "field2") && isValueMap(result) {
			return ValueDependency, nil
		}
		// 3. Result bounds field2 relative to a literal or field1.
		if isRangeBound(result) {
			return RangeAlignment, nil
		}
		// 4. Any other gated action on field2.
		if onlyRef(condRefs, "field1") && len(resultRefs) > 0 {
			return Conditional, nil
		}
	}

	// 3 (ungated). A bare bound on field2 also aligns ranges.
	if isRangeBound(root) {
		return RangeAlignment, nil
	}

	// Single-field rules pin or bound field1 directly.
	if onlyRef(refs, "field1") {
		if isValueConstraint(root, "field1") {
			return ValueDependency, nil
		}
		if isRangeConstraint(root, "field1") {
			return RangeAlignment, nil
		}
	}

	// 5. Anything else touching both fields.
	if len(refs) == 2 {
		if ct, ok := hintType(hint); ok {
			return ct, nil
		}
		return Association, nil
	}

	return NoRule, &ClassificationError{Expr: ast.String(),
		Reason: fmt.Sprintf("references %d field placeholder(s), no recognizable structure", len(refs))}
}

func isCrossReference(root dsl.Call) bool {
	if root.Op == dsl.OpMATCH {
		return bothBareRefs(root.Args)
	}
	if root.Op == dsl.OpEQ {
		return bothBareRefs(root.Args)
	}
	return false
}

func bothBareRefs(args []dsl.Node) bool {
	if len(args) != 2 {
		return false
	}
	_, lok := args[0].(dsl.FieldRef)
	_, rok := args[1].(dsl.FieldRef)
	return lok && rok
}

func onlyRef(refs []string, name string) bool {
	return len(refs) == 1 && refs[0] == name
}

// isValueMap recognizes EQ(field2, literal) and IN(field2, {set})
// result shapes, in either operand order for EQ.
func isValueMap(n dsl.Node) bool {
	return isValueConstraint(n, "field2")
}

func isValueConstraint(n dsl.Node, name string) bool {
	call, ok := n.(dsl.Call)
	if !ok {
		return false
	}
	switch call.Op {
	case dsl.OpEQ:
		if isBareRef(call.Args[0], name) && isLiteralish(call.Args[1]) {
			return true
		}
		return isBareRef(call.Args[1], name) && isLiteralish(call.Args[0])
	case dsl.OpIN:
		if !isBareRef(call.Args[0], name) {
			return false
		}
		set, ok := call.Args[1].(dsl.SetLit)
		if !ok {
			return false
		}
		for _, e := range set.Elems {
			if !isLiteralish(e) {
				return false
			}
		}
		return true
	}
	return false
}

// isRangeBound recognizes GE/LE/GT/LT comparisons bounding field2
// against a literal or field1 (optionally offset), and AND of two such
// bounds.
func isRangeBound(n dsl.Node) bool {
	call, ok := n.(dsl.Call)
	if !ok {
		return false
	}
	switch call.Op {
	case dsl.OpGE, dsl.OpLE, dsl.OpGT, dsl.OpLT:
		l, r := call.Args[0], call.Args[1]
		if isBareRef(l, "field2") {
			return isLiteralish(r) || refersTo(r, "field1")
		}
		if isBareRef(r, "field2") {
			return isLiteralish(l) || refersTo(l, "field1")
		}
		return false
	case dsl.OpAND:
		return isRangeBound(call.Args[0]) && isRangeBound(call.Args[1])
	case dsl.OpWITHIN:
		return isBareRef(call.Args[0], "field2")
	}
	return false
}

// isRangeConstraint recognizes comparisons and WITHIN bounding the
// named placeholder against literals only.
func isRangeConstraint(n dsl.Node, name string) bool {
	call, ok := n.(dsl.Call)
	if !ok {
		return false
	}
	switch call.Op {
	case dsl.OpGE, dsl.OpLE, dsl.OpGT, dsl.OpLT:
		l, r := call.Args[0], call.Args[1]
		if isBareRef(l, name) {
			return isLiteralish(r)
		}
		return isBareRef(r, name) && isLiteralish(l)
	case dsl.OpAND:
		return isRangeConstraint(call.Args[0], name) && isRangeConstraint(call.Args[1], name)
	case dsl.OpWITHIN:
		return isBareRef(call.Args[0], name)
	}
	return false
}

func isBareRef(n dsl.Node, name string) bool {
	ref, ok := n.(dsl.FieldRef)
	return ok && ref.Name == name
}

func refersTo(n dsl.Node, name string) bool {
	for _, r := range dsl.References(n) {
		if r == name {
			return true
		}
	}
	return false
}

func isLiteralish(n dsl.Node) bool {
	switch n.(type) {
	case dsl.Literal, dsl.SetLit:
		return true
	}
	return false
}

func hintType(hint string) (ConstraintType, bool) {
	switch ConstraintType(hint) {
	case ValueDependency, RangeAlignment, CrossReference, Association, Conditional:
		return ConstraintType(hint), true
	}
	return "", false
}

package dsl

import (
	"fmt"

	"example.com/rrcforge/internal/field"
)

// Bindings maps field placeholder names to concrete values for one
// evaluation.
type Bindings map[string]any

// EvalError reports an expression that cannot be evaluated against the
// given bindings (unbound placeholder, non-numeric ordering operand).
type EvalError struct {
	Node   string
	Reason string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval %s: %s", e.Node, e.Reason)
}

// EvalBool evaluates the expression and requires a boolean result.
func EvalBool(n Node, b Bindings) (bool, error) {
	v, err := Eval(n, b)
	if err != nil {
		return false, err
	}
	res, ok := v.(bool)
	if !ok {
		return false, &EvalError{Node: n.String(), Reason: fmt.Sprintf("non-boolean result %T", v)}
	}
	return res, nil
}

// Eval evaluates an AST node against the bindings. Comparison operators
// use type-normalized equality; ordering operators require numeric
// operands.
func Eval(n Node, b Bindings) (any, error) {
	switch t := n.(type) {
	case Literal:
		return t.Value, nil
	case FieldRef:
		v, ok := b[t.Name]
		if !ok {
			return nil, &EvalError{Node: t.Name, Reason: "unbound field placeholder"}
		}
		return v, nil
	case Arith:
		base, err := Eval(t.Ref, b)
		if err != nil {
			return nil, err
		}
		num, ok := field.AsInt(base)
		if !ok {
			return nil, &EvalError{Node: t.String(), Reason: fmt.Sprintf("non-integer base %v", base)}
		}
		if t.Neg {
			return num - t.Offset, nil
		}
		return num + t.Offset, nil
	case SetLit:
		elems := make([]any, len(t.Elems))
		for i, e := range t.Elems {
			v, err := Eval(e, b)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return elems, nil
	case Call:
		return evalCall(t, b)
	default:
		return nil, &EvalError{Node: fmt.Sprintf("%T", n), Reason: "unknown node type"}
	}
}

func evalCall(c Call, b Bindings) (any, error) {
	switch c.Op {
	case OpEQ, OpMATCH:
		l, r, err := evalPair(c, b)
		if err != nil {
			return nil, err
		}
		return field.Equal(l, r), nil
	case OpNE:
		l, r, err := evalPair(c, b)
		if err != nil {
			return nil, err
		}
		return !field.Equal(l, r), nil
	case OpLT, OpLE, OpGT, OpGE:
		l, r, err := evalPair(c, b)
		if err != nil {
			return nil, err
		}
		ln, lok := field.AsInt(l)
		rn, rok := field.AsInt(r)
		if !lok || !rok {
			return nil, &EvalError{Node: c.String(), Reason: "ordering requires numeric operands"}
		}
		switch c.Op {
		case OpLT:
			return ln < rn, nil
		case OpLE:
			return ln <= rn, nil
		case OpGT:
			return ln > rn, nil
		default:
			return ln >= rn, nil
		}
	case OpIN:
		v, err := Eval(c.Args[0], b)
		if err != nil {
			return nil, err
		}
		set, err := Eval(c.Args[1], b)
		if err != nil {
			return nil, err
		}
		elems, ok := set.([]any)
		if !ok {
			return nil, &EvalError{Node: c.String(), Reason: "IN requires a set literal"}
		}
		for _, e := range elems {
			if field.Equal(v, e) {
				return true, nil
			}
		}
		return false, nil
	case OpWITHIN:
		v, err := Eval(c.Args[0], b)
		if err != nil {
			return nil, err
		}
		set, err := Eval(c.Args[1], b)
		if err != nil {
			return nil, err
		}
		elems, ok := set.([]any)
		if !ok || len(elems) != 2 {
			return nil, &EvalError{Node: c.String(), Reason: "WITHIN requires a {lo,hi} pair"}
		}
		vn, vok := field.AsInt(v)
		lo, lok := field.AsInt(elems[0])
		hi, hok := field.AsInt(elems[1])
		if !vok || !lok || !hok {
			return nil, &EvalError{Node: c.String(), Reason: "WITHIN requires numeric operands"}
		}
		return vn >= lo && vn <= hi, nil
	case OpMOD:
		l, r, err := evalPair(c, b)
		if err != nil {
			return nil, err
		}
		ln, lok := field.AsInt(l)
		rn, rok := field.AsInt(r)
		if !lok || !rok || rn == 0 {
			return nil, &EvalError{Node: c.String(), Reason: "MOD requires numeric operands and a nonzero modulus"}
		}
		return ln % rn, nil
	case OpAND, OpOR, OpIMPLIES:
		l, err := EvalBool(c.Args[0], b)
		if err != nil {
			return nil, err
		}
		r, err := EvalBool(c.Args[1], b)
		if err != nil {
			return nil, err
		}
		switch c.Op {
		case OpAND:
			return l && r, nil
		case OpOR:
			return l || r, nil
		default:
			return !l || r, nil
		}
	case OpNOT:
		v, err := EvalBool(c.Args[0], b)
		if err != nil {
			return nil, err
		}
		return !v, nil
	default:
		return nil, &EvalError{Node: c.String(), Reason: "operator has no evaluation rule"}
	}
}

func evalPair(c Call, b Bindings) (any, any, error) {
	l, err := Eval(c.Args[0], b)
	if err != nil {
		return nil, nil, err
	}
	r, err := Eval(c.Args[1], b)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

package mutate

import (
	"fmt"
	"sort"
	"strings"

	"example.com/rrcforge/internal/dsl"
	"example.com/rrcforge/internal/field"
)

// crossOptionCap bounds how many options of a large ENUMERATED domain
// enter the candidate search before falling back to 3-point sampling.
const crossOptionCap = 64

// CrossField synthesizes a concrete assignment pair that makes the rule
// AST evaluate to the target outcome. field1 is held at its current
// value when possible (minimal-distance edit); it only moves when the
// rule cannot otherwise be triggered (e.g. the IMPLIES condition is
// false for the current message). constraintType is only used to label
// the resulting assignments.
func (s *Synthesizer) CrossField(ast dsl.Node, constraintType string, f1, f2 *field.Field, mode Mode) ([]Assignment, error) {
	if ast == nil {
		return nil, fmt.Errorf("nil rule AST")
	}
	refs := dsl.References(ast)
	wantsF2 := containsString(refs, "field2")
	if wantsF2 && f2 == nil {
		return nil, fmt.Errorf("rule references field2 but no field bound")
	}

	target := mode == Satisfy
	label := mutationLabel(mode, constraintType)

	if !wantsF2 {
		return s.solveSingle(ast, label, f1, target)
	}
	return s.solvePair(ast, label, f1, f2, target)
}

func (s *Synthesizer) solveSingle(ast dsl.Node, label string, f1 *field.Field, target bool) ([]Assignment, error) {
	cands := s.candidateValues(f1, ast, nil)
	if len(cands) == 0 {
		return nil, &DomainExhaustedError{FieldID: f1.ID, Reason: "no candidate values in domain"}
	}
	var evalErr error
	// First pass requires a real value change; the relaxed pass only
	// runs when exclusion would leave nothing.
	for _, requireChange := range []bool{true, false} {
		for _, v := range cands {
			if requireChange && field.Equal(v, f1.CurrentValue) {
				continue
			}
			ok, err := dsl.EvalBool(ast, dsl.Bindings{"field1": v})
			if err != nil {
				evalErr = err
				continue
			}
			if ok == target {
				return []Assignment{assignmentFor(f1, v, label, ast)}, nil
			}
		}
	}
	if evalErr != nil {
		return nil, fmt.Errorf("rule not solvable for field %d: %w", f1.ID, evalErr)
	}
	return nil, &DomainExhaustedError{FieldID: f1.ID, Reason: "no domain value reaches the target outcome"}
}

func (s *Synthesizer) solvePair(ast dsl.Node, label string, f1, f2 *field.Field, target bool) ([]Assignment, error) {
	c1 := s.candidateValues(f1, ast, f2)
	c2 := s.candidateValues(f2, ast, f1)
	if len(c1) == 0 {
		return nil, &DomainExhaustedError{FieldID: f1.ID, Reason: "no candidate values in domain"}
	}
	if len(c2) == 0 {
		return nil, &DomainExhaustedError{FieldID: f2.ID, Reason: "no candidate values in domain"}
	}

	var evalErr error
	for _, requireChange := range []bool{true, false} {
		for _, v1 := range c1 {
			for _, v2 := range c2 {
				if requireChange &&
					field.Equal(v1, f1.CurrentValue) && field.Equal(v2, f2.CurrentValue) {
					continue
				}
				if s.budget.Expired() {
					return nil, &DomainExhaustedError{FieldID: f2.ID, Reason: "budget exhausted during pair search"}
				}
				ok, err := dsl.EvalBool(ast, dsl.Bindings{"field1": v1, "field2": v2})
				if err != nil {
					evalErr = err
					continue
				}
				if ok != target {
					continue
				}
				var out []Assignment
				if !field.Equal(v1, f1.CurrentValue) {
					out = append(out, assignmentFor(f1, v1, label, ast))
				}
				if !field.Equal(v2, f2.CurrentValue) {
					out = append(out, assignmentFor(f2, v2, label, ast))
				}
				if len(out) == 0 {
					// Relaxed pass: record the free field anyway so the
					// pair is represented instead of silently dropped.
					out = append(out, assignmentFor(f2, v2, label, ast))
				}
				return out, nil
			}
		}
	}
	if evalErr != nil {
		return nil, fmt.Errorf("rule not solvable for pair (%d,%d): %w", f1.ID, f2.ID, evalErr)
	}
	return nil, &DomainExhaustedError{FieldID: f2.ID, Reason: "no value pair reaches the target outcome"}
}

func assignmentFor(f *field.Field, v any, label string, ast dsl.Node) Assignment {
	return Assignment{
		FieldID:      f.ID,
		Value:        v,
		MutationType: label,
		Description:  fmt.Sprintf("%s set to %v for %s", f.Name, v, ast.String()),
	}
}

func mutationLabel(mode Mode, constraintType string) string {
	prefix := "satisfy"
	if mode == Violate {
		prefix = "violate"
	}
	ct := strings.TrimSpace(constraintType)
	if ct == "" {
		return prefix
	}
	return prefix + "_" + toSnake(ct)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// candidateValues builds the ordered candidate set for one field:
// values the rule itself mentions (plus their one-off neighbors for
// minimal range violations), the counterpart's value and neighbors,
// and domain samples. Candidates outside the field's own domain are
// dropped; out-of-domain probing belongs to the boundary sweep, not
// the constraint solver. Order is minimal distance from the current
// value, current value first.
func (s *Synthesizer) candidateValues(f *field.Field, ast dsl.Node, other *field.Field) []any {
	var raw []any
	raw = append(raw, f.CurrentValue)

	for _, lit := range literalValues(ast) {
		raw = append(raw, lit)
		if n, ok := field.AsInt(lit); ok {
			raw = append(raw, n-1, n+1)
		}
	}
	if other != nil {
		raw = append(raw, other.CurrentValue)
		if n, ok := field.AsInt(other.CurrentValue); ok {
			raw = append(raw, n-1, n+1)
		}
	}

	switch f.Type {
	case field.Integer:
		min, max := f.Domain.Min, f.Domain.Max
		raw = append(raw, min, max, min+(max-min)/2)
		if n, ok := field.AsInt(f.CurrentValue); ok {
			raw = append(raw, n-1, n+1)
		}
	case field.Enumerated, field.Choice:
		opts := f.Domain.Options
		if len(opts) <= crossOptionCap {
			for _, o := range opts {
				raw = append(raw, o)
			}
		} else {
			raw = append(raw, opts[0], opts[len(opts)/2], opts[len(opts)-1])
		}
	case field.Boolean:
		raw = append(raw, true, false)
	}

	seen := make(map[string]bool, len(raw))
	var cands []any
	for _, v := range raw {
		if !f.Domain.Contains(v) {
			continue
		}
		key := field.Canon(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		cands = append(cands, v)
	}
	sortByDistance(f, cands)
	return cands
}

// literalValues collects every literal and set element in the AST.
func literalValues(n dsl.Node) []any {
	var out []any
	switch t := n.(type) {
	case dsl.Literal:
		out = append(out, t.Value)
	case dsl.SetLit:
		for _, e := range t.Elems {
			out = append(out, literalValues(e)...)
		}
	case dsl.Call:
		for _, a := range t.Args {
			out = append(out, literalValues(a)...)
		}
	}
	return out
}

// sortByDistance orders candidates by edit distance from the current
// value: numeric distance for integers, index distance for options,
// current value first in every case.
func sortByDistance(f *field.Field, cands []any) {
	dist := func(v any) int64 {
		if field.Equal(v, f.CurrentValue) {
			return -1
		}
		switch f.Type {
		case field.Integer:
			cur, cok := field.AsInt(f.CurrentValue)
			val, vok := field.AsInt(v)
			if cok && vok {
				d := val - cur
				if d < 0 {
					d = -d
				}
				return d
			}
		case field.Enumerated, field.Choice:
			ci := optionIndex(f.Domain.Options, f.CurrentValue)
			vi := optionIndex(f.Domain.Options, v)
			if ci >= 0 && vi >= 0 {
				d := int64(vi - ci)
				if d < 0 {
					d = -d
				}
				return d
			}
		}
		return 1 << 30
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return dist(cands[i]) < dist(cands[j])
	})
}

func optionIndex(opts []string, v any) int {
	for i, o := range opts {
		if field.Equal(o, v) {
			return i
		}
	}
	return -1
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

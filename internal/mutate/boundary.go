package mutate

import (
	"fmt"

	"example.com/rrcforge/internal/field"
)

// Boundary computes the deterministic single-field candidate set for a
// field with no cross-field rule. Violate mode adds the out-of-domain
// probes when the configured envelope permits them.
func (s *Synthesizer) Boundary(f *field.Field, mode Mode) ([]Assignment, error) {
	switch f.Type {
	case field.Integer:
		return s.integerBoundary(f, mode)
	case field.Enumerated, field.Choice:
		return s.optionSample(f)
	case field.Boolean:
		return s.booleanFlip(f)
	default:
		return nil, &UnsupportedTypeError{FieldID: f.ID, Type: f.Type}
	}
}

func (s *Synthesizer) integerBoundary(f *field.Field, mode Mode) ([]Assignment, error) {
	min, max := f.Domain.Min, f.Domain.Max
	if size, _ := f.Domain.Size(); size < 2 && mode == Satisfy {
		return nil, &DomainExhaustedError{FieldID: f.ID, Reason: fmt.Sprintf("range [%d,%d] has fewer than 2 values", min, max)}
	}

	var cands []Assignment
	add := func(v int64, label string) {
		cands = append(cands, Assignment{
			FieldID:      f.ID,
			Value:        v,
			MutationType: label,
			Description:  fmt.Sprintf("%s boundary %d for range [%d,%d]", f.Name, v, min, max),
		})
	}

	add(min, "min_value")
	add(max, "max_value")
	if mode == Violate {
		// Out-of-domain probes stay inside the representable envelope;
		// beyond it the mutated value cannot be encoded at all.
		if min > s.envelope.Min {
			add(min-1, "below_min")
		}
		if max < s.envelope.Max {
			add(max+1, "above_max")
		}
	}
	span := max - min
	switch {
	case span > 100:
		mid := min + span/2
		add(mid, "mid_value")
		add(min+(mid-min)/2, "q1_value")
		add(mid+(max-mid)/2, "q3_value")
	case span > 2:
		add(min+span/2, "mid_value")
	}

	out, collapsed := filterNoop(f, dedupeAssignments(cands))
	if collapsed {
		// Every candidate matched the current value; keeping them is
		// better than emitting zero test cases for the field.
		return out, nil
	}
	if len(out) == 0 {
		return nil, &DomainExhaustedError{FieldID: f.ID, Reason: "no candidate differs from current value", SameValue: true}
	}
	return out, nil
}

// Exhaustive enumerates every value of a small domain. When the domain
// exceeds the budget's element cap (or the deadline passed), it falls
// back to boundary sampling and returns the reduced set rather than
// aborting the batch.
func (s *Synthesizer) Exhaustive(f *field.Field, mode Mode) ([]Assignment, bool, error) {
	switch f.Type {
	case field.Integer:
		size, _ := f.Domain.Size()
		if s.budget.Expired() || !s.budget.AllowsEnumeration(size) {
			out, err := s.integerBoundary(f, mode)
			return out, true, err
		}
		var cands []Assignment
		for v := f.Domain.Min; v <= f.Domain.Max; v++ {
			label := "traverse_value"
			if v == f.Domain.Min {
				label = "min_value"
			} else if v == f.Domain.Max {
				label = "max_value"
			}
			cands = append(cands, Assignment{
				FieldID:      f.ID,
				Value:        v,
				MutationType: label,
				Description:  fmt.Sprintf("%s traverse %d of [%d,%d]", f.Name, v, f.Domain.Min, f.Domain.Max),
			})
			if s.budget.Expired() {
				// Deadline hit mid-enumeration: return what we have.
				break
			}
		}
		out, _ := filterNoop(f, cands)
		return out, false, nil
	case field.Enumerated, field.Choice:
		size := int64(len(f.Domain.Options))
		if s.budget.Expired() || !s.budget.AllowsEnumeration(size) {
			out, err := s.optionSample(f)
			return out, true, err
		}
		var cands []Assignment
		for i, opt := range f.Domain.Options {
			label := "enum_value"
			if i == 0 {
				label = "enum_min"
			} else if i == len(f.Domain.Options)-1 {
				label = "enum_max"
			}
			cands = append(cands, Assignment{
				FieldID:      f.ID,
				Value:        opt,
				MutationType: label,
				Description:  fmt.Sprintf("%s option %q (index %d)", f.Name, opt, i),
			})
		}
		out, _ := filterNoop(f, cands)
		return out, false, nil
	case field.Boolean:
		out, err := s.booleanFlip(f)
		return out, false, err
	default:
		return nil, false, &UnsupportedTypeError{FieldID: f.ID, Type: f.Type}
	}
}

// optionSample is the fixed 3-point sampling over an ordered option
// list: one option yields itself, two yield both, three or more yield
// first, middle and last.
func (s *Synthesizer) optionSample(f *field.Field) ([]Assignment, error) {
	opts := f.Domain.Options
	if len(opts) == 0 {
		return nil, &DomainExhaustedError{FieldID: f.ID, Reason: "option list is empty"}
	}
	mk := func(i int, label string) Assignment {
		return Assignment{
			FieldID:      f.ID,
			Value:        opts[i],
			MutationType: label,
			Description:  fmt.Sprintf("%s option %q (index %d)", f.Name, opts[i], i),
		}
	}
	var cands []Assignment
	switch len(opts) {
	case 1:
		cands = []Assignment{mk(0, "enum_min")}
	case 2:
		cands = []Assignment{mk(0, "enum_min"), mk(1, "enum_max")}
	default:
		cands = []Assignment{mk(0, "enum_min"), mk(len(opts)/2, "enum_mid"), mk(len(opts)-1, "enum_max")}
	}
	out, collapsed := filterNoop(f, cands)
	if collapsed && len(opts) == 1 {
		return nil, &DomainExhaustedError{FieldID: f.ID, Reason: "single option equals current value", SameValue: true}
	}
	return out, nil
}

// booleanFlip negates the current value after normalizing the truthy
// spellings the decoder emits. It produces exactly one mutation and
// never a third state.
func (s *Synthesizer) booleanFlip(f *field.Field) ([]Assignment, error) {
	cur, ok := field.AsBool(f.CurrentValue)
	if !ok {
		return nil, &DomainExhaustedError{FieldID: f.ID,
			Reason: fmt.Sprintf("current value %v is not a recognizable boolean", f.CurrentValue)}
	}
	return []Assignment{{
		FieldID:      f.ID,
		Value:        !cur,
		MutationType: "bool_flip",
		Description:  fmt.Sprintf("%s negated from %v", f.Name, cur),
	}}, nil
}

func dedupeAssignments(in []Assignment) []Assignment {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, a := range in {
		key := field.Canon(a.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

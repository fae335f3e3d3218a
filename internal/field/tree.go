package field

import (
	"fmt"
	"strconv"
	"strings"
)

// ReconstructionError marks a failed path-to-tree injection: the path
// names a container segment whose actual shape does not match.
type ReconstructionError struct {
	Path    string
	Segment string
	Reason  string
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("reconstruct %s at %q: %s", e.Path, e.Segment, e.Reason)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return t
	}
}

// CloneFields deep-copies a flattened field list, including nested
// container values and any attached mutation info.
func CloneFields(fields []FlatField) []FlatField {
	out := make([]FlatField, len(fields))
	for i, f := range fields {
		cp := f
		cp.CurrentValue = cloneValue(f.CurrentValue)
		cp.SuggestedValue = cloneValue(f.SuggestedValue)
		if f.MutationInfo != nil {
			mi := *f.MutationInfo
			mi.OriginalValue = cloneValue(f.MutationInfo.OriginalValue)
			cp.MutationInfo = &mi
		}
		out[i] = cp
	}
	return out
}

type pathSegment struct {
	key   string
	index int // -1 when the segment is a map key
}

// parsePath splits a dot/bracket path ("ie.list[2].value") into
// segments. Bracket indices attach to the preceding key.
func parsePath(path string) ([]pathSegment, error) {
	var segs []pathSegment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("empty segment in path %q", path)
		}
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				segs = append(segs, pathSegment{key: part, index: -1})
				break
			}
			if open > 0 {
				segs = append(segs, pathSegment{key: part[:open], index: -1})
			}
			end := strings.IndexByte(part, ']')
			if end < open {
				return nil, fmt.Errorf("unbalanced bracket in path %q", path)
			}
			idx, err := strconv.Atoi(part[open+1 : end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("bad index %q in path %q", part[open+1:end], path)
			}
			segs = append(segs, pathSegment{index: idx})
			part = part[end+1:]
			if part == "" {
				break
			}
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return segs, nil
}

// Inject writes value into the nested tree at the given dot/bracket
// path. Container shape mismatches return a ReconstructionError rather
// than guessing; in particular a two-element (int, small-int) list is
// never silently reinterpreted as a BIT STRING pair.
func Inject(tree map[string]any, path string, value any) error {
	segs, err := parsePath(path)
	if err != nil {
		return &ReconstructionError{Path: path, Segment: path, Reason: err.Error()}
	}
	var cur any = tree
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg.index >= 0 {
			list, ok := cur.([]any)
			if !ok {
				return &ReconstructionError{Path: path, Segment: fmt.Sprintf("[%d]", seg.index),
					Reason: fmt.Sprintf("expected list, found %T", cur)}
			}
			if seg.index >= len(list) {
				return &ReconstructionError{Path: path, Segment: fmt.Sprintf("[%d]", seg.index),
					Reason: fmt.Sprintf("index out of range (len %d)", len(list))}
			}
			if last {
				list[seg.index] = value
				return nil
			}
			cur = list[seg.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return &ReconstructionError{Path: path, Segment: seg.key,
				Reason: fmt.Sprintf("expected object, found %T", cur)}
		}
		if last {
			m[seg.key] = value
			return nil
		}
		next, ok := m[seg.key]
		if !ok {
			return &ReconstructionError{Path: path, Segment: seg.key, Reason: "missing key"}
		}
		cur = next
	}
	return nil
}

// Reconstruct applies every suggested value in the flattened list back
// onto a deep copy of the nested tree. The returned tree is independent
// of the input.
func Reconstruct(tree map[string]any, fields []FlatField) (map[string]any, error) {
	out, ok := cloneValue(tree).(map[string]any)
	if !ok {
		return nil, &ReconstructionError{Path: "", Segment: "", Reason: "root is not an object"}
	}
	for _, f := range fields {
		if f.MutationInfo == nil {
			continue
		}
		if err := Inject(out, f.FieldPath, f.SuggestedValue); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LooksLikeBitstringPair reports whether v has the ambiguous
// two-element (int, int<100) shape. Callers must only treat the value
// as a BIT STRING when the field's domain carries an explicit hint.
func LooksLikeBitstringPair(v any) bool {
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		return false
	}
	if _, ok := AsInt(list[0]); !ok {
		return false
	}
	n, ok := AsInt(list[1])
	return ok && n >= 0 && n < 100
}

package field

import (
	"fmt"
)

// Domain is the value domain of one field, discriminated by Type.
// INTEGER carries inclusive bounds, ENUMERATED/CHOICE an ordered option
// list (order defines first/middle/last sampling), BOOLEAN the fixed
// two-value domain.
type Domain struct {
	Type    Type
	Min     int64
	Max     int64
	Options []string

	// PossibleBitstring marks a field whose re-encoded shape is a
	// two-element (int, int<100) list. Whether that pair really is a
	// BIT STRING cannot be decided structurally; the domain file must
	// say so explicitly via an additional constraint.
	PossibleBitstring bool
}

// IntegerDomain returns an INTEGER domain with inclusive bounds.
func IntegerDomain(min, max int64) Domain {
	return Domain{Type: Integer, Min: min, Max: max}
}

// OptionDomain returns an ENUMERATED or CHOICE domain over the given
// ordered labels.
func OptionDomain(t Type, options []string) Domain {
	cp := make([]string, len(options))
	copy(cp, options)
	return Domain{Type: t, Options: cp}
}

// BooleanDomain returns the two-element boolean domain.
func BooleanDomain() Domain {
	return Domain{Type: Boolean}
}

// Size reports the number of representable values. ok is false when the
// domain has no enumerable size (raw octet/bit strings).
func (d Domain) Size() (int64, bool) {
	switch d.Type {
	case Integer:
		if d.Max < d.Min {
			return 0, true
		}
		return d.Max - d.Min + 1, true
	case Enumerated, Choice:
		return int64(len(d.Options)), true
	case Boolean:
		return 2, true
	default:
		return 0, false
	}
}

// Contains reports whether v is a member of the domain after type
// normalization.
func (d Domain) Contains(v any) bool {
	switch d.Type {
	case Integer:
		n, ok := AsInt(v)
		return ok && n >= d.Min && n <= d.Max
	case Enumerated, Choice:
		for _, opt := range d.Options {
			if Equal(opt, v) {
				return true
			}
		}
		return false
	case Boolean:
		_, ok := AsBool(v)
		return ok
	default:
		return false
	}
}

func (d Domain) String() string {
	switch d.Type {
	case Integer:
		return fmt.Sprintf("INTEGER[%d..%d]", d.Min, d.Max)
	case Enumerated, Choice:
		return fmt.Sprintf("%s(%d options)", d.Type, len(d.Options))
	case Boolean:
		return "BOOLEAN"
	default:
		return string(d.Type)
	}
}

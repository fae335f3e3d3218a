// Package mutate synthesizes concrete field-value assignments that make
// a constraint hold or fail, subject to each field's ASN.1-derived
// domain. This is the algorithmic core of the generator.
package mutate

import (
	"fmt"

	"example.com/rrcforge/internal/field"
)

// Mode selects the target outcome of a synthesis.
type Mode string

const (
	Satisfy Mode = "SATISFY"
	Violate Mode = "VIOLATE"
)

// Assignment is one concrete value change for one field.
type Assignment struct {
	FieldID      int    `json:"field_id"`
	Value        any    `json:"mutation_value"`
	MutationType string `json:"mutation_type"`
	Description  string `json:"description"`
}

// DomainExhaustedError reports that a field has no further distinct
// value to mutate to. The field/rule pair is skipped; the batch
// continues. SameValue marks the special case where every candidate
// equals the field's current value.
type DomainExhaustedError struct {
	FieldID   int
	Reason    string
	SameValue bool
}

func (e *DomainExhaustedError) Error() string {
	return fmt.Sprintf("field %d: domain exhausted: %s", e.FieldID, e.Reason)
}

// UnsupportedTypeError reports a field type with no mutation algorithm
// (raw octet/bit strings, NULL).
type UnsupportedTypeError struct {
	FieldID int
	Type    field.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("field %d: no mutation algorithm for type %s", e.FieldID, e.Type)
}

// Envelope bounds the representable integer range for out-of-domain
// boundary probes. The default matches a signed 32-bit wire envelope;
// it is configuration, not an ASN.1 rule, because the true width
// depends on the target field's encoding.
type Envelope struct {
	Min int64
	Max int64
}

// DefaultEnvelope is the signed 32-bit probe envelope.
func DefaultEnvelope() Envelope {
	return Envelope{Min: -1 << 31, Max: 1<<31 - 1}
}

// Synthesizer computes mutation assignments. It is pure computation;
// the zero value is not usable, construct with New.
type Synthesizer struct {
	envelope Envelope
	budget   *Budget
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithEnvelope overrides the representable probe envelope.
func WithEnvelope(env Envelope) Option {
	return func(s *Synthesizer) { s.envelope = env }
}

// WithBudget attaches a cooperative enumeration budget.
func WithBudget(b *Budget) Option {
	return func(s *Synthesizer) { s.budget = b }
}

// New returns a Synthesizer with the default signed-32 envelope.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{envelope: DefaultEnvelope()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// filterNoop drops candidates whose value equals the field's current
// value after type normalization. When that would empty the set, the
// original candidates are kept instead of silently producing nothing;
// the caller logs the collapse.
func filterNoop(f *field.Field, in []Assignment) (out []Assignment, collapsed bool) {
	for _, a := range in {
		if field.Equal(a.Value, f.CurrentValue) {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 && len(in) > 0 {
		return in, true
	}
	return out, false
}

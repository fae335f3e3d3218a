package field

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the internal closed enum for ASN.1-derived field types. All
// source-language spellings are mapped through NormalizeType at ingestion
// time; nothing downstream re-parses type strings.
type Type string

const (
	Integer     Type = "INTEGER"
	Enumerated  Type = "ENUMERATED"
	Choice      Type = "CHOICE"
	Boolean     Type = "BOOLEAN"
	OctetString Type = "OCTET_STRING"
	BitString   Type = "BIT_STRING"
	Null        Type = "NULL"
	Unknown     Type = "UNKNOWN"
)

// NormalizeType maps every known source-type spelling onto the internal
// enum. Unrecognized spellings become Unknown, never an error: the field
// stays visible in the catalog but is not mutation-eligible.
func NormalizeType(s string) Type {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	switch key {
	case "INTEGER", "INT", "INT32", "INT64", "UINT", "UINT32":
		return Integer
	case "ENUMERATED", "ENUM":
		return Enumerated
	case "CHOICE":
		return Choice
	case "BOOLEAN", "BOOL":
		return Boolean
	case "OCTET_STRING", "OCTETSTRING", "OCTETS":
		return OctetString
	case "BIT_STRING", "BITSTRING", "BITS":
		return BitString
	case "NULL":
		return Null
	default:
		return Unknown
	}
}

// MutationInfo records the provenance of one applied mutation. It is
// attached to the touched field record in the emitted test case.
type MutationInfo struct {
	OriginalValue any    `json:"original_value"`
	MutationType  string `json:"mutation_type"`
	Description   string `json:"description"`
}

// FlatField is one leaf of the decoded message in its flattened wire
// contract form. field_id values are unique and assigned in tree
// pre-order by the upstream decoder.
type FlatField struct {
	FieldID        int           `json:"field_id"`
	FieldPath      string        `json:"field_path"`
	FieldName      string        `json:"field_name"`
	FieldType      string        `json:"field_type"`
	CurrentValue   any           `json:"current_value"`
	SuggestedValue any           `json:"suggested_value"`
	ParentType     string        `json:"parent_type,omitempty"`
	ParentIndex    int           `json:"parent_index,omitempty"`
	MutationInfo   *MutationInfo `json:"mutation_info,omitempty"`
}

// Field is the catalog view of one leaf: normalized type plus its value
// domain. The catalog's Field records are immutable during constraint
// solving; test cases mutate copies of the flattened list, never these.
type Field struct {
	ID           int
	Name         string
	Path         string
	Type         Type
	CurrentValue any
	Domain       Domain
}

// AsInt reports v as an int64 when it carries an integral value. JSON
// numbers arrive as float64; numeric strings are accepted because the
// upstream decoder is not consistent about quoting.
func AsInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		n := int64(t)
		if float64(n) == t {
			return n, true
		}
		return 0, false
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsBool normalizes the truthy spellings the decoder emits for BOOLEAN
// leaves: true/false, yes/no, 1/0, and their numeric forms.
func AsBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1", "on":
			return true, true
		case "false", "no", "0", "off":
			return false, true
		}
		return false, false
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case int64:
		return t != 0, true
	default:
		return false, false
	}
}

// Canon renders a value in its canonical comparison form. Two values are
// considered the same field value iff their canonical forms match.
func Canon(v any) string {
	if n, ok := AsInt(v); ok {
		return strconv.FormatInt(n, 10)
	}
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Equal compares two values after type normalization, so 7, 7.0 and "7"
// are the same value, as are true/"yes"/1 under a boolean reading.
func Equal(a, b any) bool {
	if an, aok := AsInt(a); aok {
		if bn, bok := AsInt(b); bok {
			return an == bn
		}
	}
	if ab, aok := AsBool(a); aok {
		if bb, bok := AsBool(b); bok {
			return ab == bb
		}
	}
	return Canon(a) == Canon(b)
}

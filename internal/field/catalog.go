package field

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
)

// DomainFile is the per-field domain-rule file contract. One JSON object
// per field id; files are hand-curated downstream of spec extraction, so
// they are parsed leniently (comments and trailing commas allowed).
type DomainFile struct {
	FieldName       string    `json:"field_name"`
	FieldPath       string    `json:"field_path"`
	ASN1Rules       ASN1Rules `json:"asn1_rules"`
	ImportanceScore float64   `json:"importance_score,omitempty"`
	Category        string    `json:"category,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

type ASN1Rules struct {
	Rules []ASN1Rule `json:"rules"`
}

type ASN1Rule struct {
	Type                  string   `json:"type"`
	Range                 []int64  `json:"range"`
	AvailableOptions      []string `json:"available_options"`
	AdditionalConstraints string   `json:"additional_constraints,omitempty"`
}

// MissingDomainError marks a field whose declared type needs a domain
// file that is absent or malformed. The field is excluded from mutation
// eligibility; catalog construction continues.
type MissingDomainError struct {
	FieldID int
	Name    string
	Reason  string
}

func (e *MissingDomainError) Error() string {
	return fmt.Sprintf("field %d (%s): %s", e.FieldID, e.Name, e.Reason)
}

// Catalog is the immutable per-message index of fields. Construction is
// pure; lookups never mutate.
type Catalog struct {
	fields  map[int]*Field
	byName  map[string][]int
	order   []int
	skipped map[int]string
	base    []FlatField
}

// ReadFlatFields loads the flattened field list emitted by the decoder.
func ReadFlatFields(path string) ([]FlatField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fields []FlatField
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse flattened fields %s: %w", path, err)
	}
	return fields, nil
}

// ReadDomainFile parses one per-field domain-rule file. Hand-edited
// files may carry comments; the bytes are standardized first.
func ReadDomainFile(path string) (DomainFile, error) {
	var df DomainFile
	data, err := os.ReadFile(path)
	if err != nil {
		return df, err
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return df, fmt.Errorf("standardize %s: %w", path, err)
	}
	if err := json.Unmarshal(std, &df); err != nil {
		return df, fmt.Errorf("parse domain file %s: %w", path, err)
	}
	return df, nil
}

// ReadDomainDir loads every <field_id>.json file under dir. Files whose
// base name is not an integer are ignored.
func ReadDomainDir(dir string) (map[int]DomainFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[int]DomainFile)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		df, err := ReadDomainFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out[id] = df
	}
	return out, nil
}

// Load builds the catalog from the flattened field list plus the
// per-field domain files. Fields without a usable domain stay in the
// index but are excluded from mutation eligibility; their ids and
// reasons are reported by Skipped.
func Load(flat []FlatField, domains map[int]DomainFile) (*Catalog, error) {
	if len(flat) == 0 {
		return nil, errors.New("empty flattened field list")
	}
	c := &Catalog{
		fields:  make(map[int]*Field, len(flat)),
		byName:  make(map[string][]int),
		skipped: make(map[int]string),
		base:    append([]FlatField(nil), flat...),
	}
	for _, ff := range flat {
		if _, dup := c.fields[ff.FieldID]; dup {
			return nil, fmt.Errorf("duplicate field id %d at %s", ff.FieldID, ff.FieldPath)
		}
		f := &Field{
			ID:           ff.FieldID,
			Name:         ff.FieldName,
			Path:         ff.FieldPath,
			Type:         NormalizeType(ff.FieldType),
			CurrentValue: ff.CurrentValue,
		}
		dom, err := buildDomain(f, domains)
		if err != nil {
			var mde *MissingDomainError
			if errors.As(err, &mde) {
				c.skipped[f.ID] = mde.Reason
			} else {
				c.skipped[f.ID] = err.Error()
			}
		} else {
			f.Domain = dom
		}
		c.fields[f.ID] = f
		c.byName[f.Name] = append(c.byName[f.Name], f.ID)
		c.order = append(c.order, f.ID)
	}
	return c, nil
}

func buildDomain(f *Field, domains map[int]DomainFile) (Domain, error) {
	switch f.Type {
	case Boolean:
		return BooleanDomain(), nil
	case Null, OctetString, BitString, Unknown:
		// No enumerable domain; mutation eligibility is decided later
		// by the synthesizer (UnsupportedTypeError).
		return Domain{Type: f.Type}, nil
	}
	df, ok := domains[f.ID]
	if !ok {
		return Domain{}, &MissingDomainError{FieldID: f.ID, Name: f.Name, Reason: "no domain file"}
	}
	for _, rule := range df.ASN1Rules.Rules {
		rt := NormalizeType(rule.Type)
		if rt != f.Type {
			continue
		}
		switch f.Type {
		case Integer:
			if len(rule.Range) != 2 {
				return Domain{}, &MissingDomainError{FieldID: f.ID, Name: f.Name, Reason: "integer rule without range"}
			}
			if rule.Range[0] > rule.Range[1] {
				return Domain{}, &MissingDomainError{FieldID: f.ID, Name: f.Name,
					Reason: fmt.Sprintf("inverted range [%d,%d]", rule.Range[0], rule.Range[1])}
			}
			d := IntegerDomain(rule.Range[0], rule.Range[1])
			d.PossibleBitstring = strings.Contains(strings.ToLower(rule.AdditionalConstraints), "bitstring")
			return d, nil
		case Enumerated, Choice:
			if len(rule.AvailableOptions) == 0 {
				return Domain{}, &MissingDomainError{FieldID: f.ID, Name: f.Name, Reason: "option rule without options"}
			}
			return OptionDomain(f.Type, rule.AvailableOptions), nil
		}
	}
	return Domain{}, &MissingDomainError{FieldID: f.ID, Name: f.Name,
		Reason: fmt.Sprintf("no %s rule in domain file", f.Type)}
}

// Lookup returns the field with the given id.
func (c *Catalog) Lookup(id int) (*Field, bool) {
	if c == nil {
		return nil, false
	}
	f, ok := c.fields[id]
	return f, ok
}

// Selector resolves a field reference to every concrete field sharing
// that semantic role. Repeated IEs carry the same field name under
// different paths, so one selector may yield several ids. A selector is
// either a field name or a dotted path suffix.
func (c *Catalog) Selector(sel string) []*Field {
	if c == nil {
		return nil
	}
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return nil
	}
	if ids, ok := c.byName[sel]; ok {
		out := make([]*Field, 0, len(ids))
		for _, id := range ids {
			out = append(out, c.fields[id])
		}
		return out
	}
	var out []*Field
	for _, id := range c.order {
		f := c.fields[id]
		if f.Path == sel || strings.HasSuffix(f.Path, "."+sel) {
			out = append(out, f)
		}
	}
	return out
}

// Fields returns every field in pre-order.
func (c *Catalog) Fields() []*Field {
	out := make([]*Field, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.fields[id])
	}
	return out
}

// Eligible reports whether the field may be targeted by mutations.
func (c *Catalog) Eligible(id int) bool {
	_, skipped := c.skipped[id]
	if skipped {
		return false
	}
	_, ok := c.fields[id]
	return ok
}

// Skipped lists fields excluded from mutation eligibility, ordered by id.
func (c *Catalog) Skipped() []MissingDomainError {
	ids := make([]int, 0, len(c.skipped))
	for id := range c.skipped {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]MissingDomainError, 0, len(ids))
	for _, id := range ids {
		out = append(out, MissingDomainError{FieldID: id, Name: c.fields[id].Name, Reason: c.skipped[id]})
	}
	return out
}

// Base returns the flattened field list the catalog was built from.
// Callers must not mutate it; CloneBase returns a deep copy for that.
func (c *Catalog) Base() []FlatField {
	return c.base
}

// CloneBase returns a deep copy of the base flattened list suitable for
// per-test-case mutation.
func (c *Catalog) CloneBase() []FlatField {
	return CloneFields(c.base)
}

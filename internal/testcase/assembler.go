// Package testcase assembles mutated field trees into persisted test
// cases, enforcing the one-case-per-field-pair uniqueness invariant.
package testcase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"example.com/rrcforge/internal/field"
	"example.com/rrcforge/internal/mutate"
)

// ErrDuplicatePair marks an assignment whose dedup key already produced
// a test case in this run. First rule wins.
var ErrDuplicatePair = errors.New("field pair already covered")

// TestCase is one materialized mutation: the full mutated flattened
// field list plus provenance. Written once at creation, never mutated.
type TestCase struct {
	RuleID         string             `json:"ruleId"`
	ConstraintType string             `json:"constraintType"`
	DedupKey       string             `json:"dedupKey"`
	Path           string             `json:"path"`
	Assignments    []mutate.Assignment `json:"assignments"`

	// Fields is the mutated flattened list; this is what lands in the
	// output file, with mutation_info attached on touched fields.
	Fields []field.FlatField `json:"-"`
}

// Assembler clones the base tree, applies assignments, and serializes
// each unique test case immediately. Memory stays proportional to the
// number of unique dedup keys, not total candidate mutations.
type Assembler struct {
	outDir       string
	multiVariant func(constraintType string) bool

	mu       sync.Mutex
	seen     map[string]string // dedup key -> first rule id
	perField map[int]int       // primary field id -> next file index
}

// NewAssembler creates an assembler writing into outDir. multiVariant
// decides which constraint types may keep several cases per dedup key;
// nil means strict one-per-pair.
func NewAssembler(outDir string, multiVariant func(string) bool) *Assembler {
	if multiVariant == nil {
		multiVariant = func(string) bool { return false }
	}
	return &Assembler{
		outDir:       outDir,
		multiVariant: multiVariant,
		seen:         make(map[string]string),
		perField:     make(map[int]int),
	}
}

// DedupKey builds the unordered pair key for a set of assignments.
func DedupKey(assignments []mutate.Assignment) string {
	ids := make([]int, 0, len(assignments))
	seen := make(map[int]bool)
	for _, a := range assignments {
		if !seen[a.FieldID] {
			seen[a.FieldID] = true
			ids = append(ids, a.FieldID)
		}
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "-")
}

// Assemble produces and persists one test case. The base list is deep
// copied; the caller's tree is never touched. Returns ErrDuplicatePair
// when the pair is already covered and the constraint type is not
// multi-variant.
func (a *Assembler) Assemble(base []field.FlatField, assignments []mutate.Assignment, ruleID, constraintType string) (*TestCase, error) {
	if len(assignments) == 0 {
		return nil, errors.New("no assignments")
	}
	key := DedupKey(assignments)
	primary := assignments[0].FieldID

	a.mu.Lock()
	if firstRule, dup := a.seen[key]; dup && !a.multiVariant(constraintType) {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: key %s first covered by rule %s", ErrDuplicatePair, key, firstRule)
	}
	if _, dup := a.seen[key]; !dup {
		a.seen[key] = ruleID
	}
	index := a.perField[primary]
	a.perField[primary] = index + 1
	a.mu.Unlock()

	fields := field.CloneFields(base)
	if err := applyAssignments(fields, assignments); err != nil {
		return nil, err
	}

	tc := &TestCase{
		RuleID:         ruleID,
		ConstraintType: constraintType,
		DedupKey:       key,
		Assignments:    assignments,
		Fields:         fields,
		Path:           filepath.Join(a.outDir, fmt.Sprintf("%d_mut%d.json", primary, index)),
	}
	if err := a.write(tc); err != nil {
		return nil, err
	}
	return tc, nil
}

func applyAssignments(fields []field.FlatField, assignments []mutate.Assignment) error {
	byID := make(map[int]int, len(fields))
	for i, f := range fields {
		byID[f.FieldID] = i
	}
	for _, as := range assignments {
		i, ok := byID[as.FieldID]
		if !ok {
			return fmt.Errorf("assignment targets unknown field id %d", as.FieldID)
		}
		fields[i].SuggestedValue = as.Value
		fields[i].MutationInfo = &field.MutationInfo{
			OriginalValue: fields[i].CurrentValue,
			MutationType:  as.MutationType,
			Description:   as.Description,
		}
	}
	return nil
}

// write serializes the mutated flattened list. The file is created
// atomically so a crashed run never leaves a half-written case behind.
func (a *Assembler) write(tc *TestCase) error {
	if err := os.MkdirAll(a.outDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tc.Fields, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(tc.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write test case %s: %w", tc.Path, err)
	}
	return nil
}

// Covered reports how many unique dedup keys produced test cases.
func (a *Assembler) Covered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

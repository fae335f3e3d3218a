package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"example.com/rrcforge/internal/dsl"
)

// ConstraintType tags the semantic shape of a rule. Classification is
// structural (see Classify); the declared type in the rule record is
// only a hint.
type ConstraintType string

const (
	ValueDependency ConstraintType = "ValueDependency"
	RangeAlignment  ConstraintType = "RangeAlignment"
	CrossReference  ConstraintType = "CrossReference"
	Association     ConstraintType = "Association"
	Conditional     ConstraintType = "Conditional"

	// NoRule marks a record that was rejected (no parsable DSL or no
	// recognizable structure). Rejected rules are reported, never
	// guessed at.
	NoRule ConstraintType = "NO_RULE"
)

// Rule is one aggregated DSL rule record for a field pair.
type Rule struct {
	RuleID        string   `json:"ruleId"`
	IEName        string   `json:"ie_name,omitempty"`
	IEPair        []string `json:"ie_pair,omitempty"`
	FieldPair     []string `json:"field_pair"`
	FieldIDs      [][]int  `json:"field_ids,omitempty"`
	DSLRule       string   `json:"dsl_rule"`
	DeclaredType  string   `json:"constraint_type,omitempty"`
	Predicate     string   `json:"predicate,omitempty"`
	Preconditions []string `json:"preconditions,omitempty"`
	HasValidRule  bool     `json:"has_valid_rule"`

	// Populated by Compile.
	AST  dsl.Node       `json:"-"`
	Type ConstraintType `json:"-"`
}

// SingleField reports whether the rule references only one field
// placeholder (boundary-style rules).
func (r *Rule) SingleField() bool {
	if r.AST == nil {
		return len(r.FieldPair) < 2 || r.FieldPair[1] == ""
	}
	return len(dsl.References(r.AST)) < 2
}

// RulePack bundles the rules extracted for one message type.
type RulePack struct {
	RulePackID string `json:"rulePackId"`
	Version    string `json:"version"`
	Message    string `json:"message,omitempty"`
	Rules      []Rule `json:"rules"`
}

// LoadRulePack reads a rule pack file. Packs are curated by hand after
// extraction, so comments and trailing commas are tolerated.
func LoadRulePack(path string) (RulePack, error) {
	var rp RulePack
	data, err := os.ReadFile(path)
	if err != nil {
		return rp, err
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return rp, fmt.Errorf("standardize %s: %w", path, err)
	}
	if err := json.Unmarshal(std, &rp); err != nil {
		return rp, fmt.Errorf("parse rule pack %s: %w", path, err)
	}
	for i := range rp.Rules {
		if rp.Rules[i].RuleID == "" {
			rp.Rules[i].RuleID = fmt.Sprintf("%s-%03d", defaultRuleIDPrefix(rp), i)
		}
	}
	return rp, nil
}

func defaultRuleIDPrefix(rp RulePack) string {
	if rp.RulePackID != "" {
		return rp.RulePackID
	}
	return "RULE"
}

// Compile parses and classifies the rule's DSL expression in place.
// A record flagged has_valid_rule=false compiles to NoRule without
// touching the expression.
func (r *Rule) Compile() error {
	if !r.HasValidRule || strings.TrimSpace(r.DSLRule) == "" {
		r.Type = NoRule
		return nil
	}
	ast, err := dsl.Parse(r.DSLRule)
	if err != nil {
		r.Type = NoRule
		return err
	}
	r.AST = ast
	ct, err := Classify(ast, r.DeclaredType)
	if err != nil {
		r.Type = NoRule
		return err
	}
	r.Type = ct
	return nil
}

// Package rules loads constraint rule packs, classifies their DSL
// expressions, and drives test-case generation across the candidate
// field pairs of one decoded message.
package rules

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"example.com/rrcforge/internal/common"
	"example.com/rrcforge/internal/config"
	"example.com/rrcforge/internal/dsl"
	"example.com/rrcforge/internal/field"
	"example.com/rrcforge/internal/mutate"
	"example.com/rrcforge/internal/testcase"
)

// Engine evaluates one rule pack against one field catalog. Pair tasks
// are independent; they fan out across a bounded worker pool and funnel
// through the assembler's single dedup-and-write boundary.
type Engine struct {
	pack        RulePack
	cfg         config.Config
	mode        mutate.Mode
	priority    testcase.PairPriority
	concurrency int
}

// NewEngine builds an engine for the given pack and configuration.
// The default mode is Violate (the fuzzing harness wants constraint
// breaches); SetMode switches a run to satisfying mutations.
func NewEngine(pack RulePack, cfg config.Config) *Engine {
	conc := cfg.Concurrency
	if conc < 1 {
		conc = 1
	}
	return &Engine{
		pack:        pack,
		cfg:         cfg,
		mode:        mutate.Violate,
		priority:    testcase.InputOrder{},
		concurrency: conc,
	}
}

// SetMode selects the target outcome for synthesized mutations.
func (e *Engine) SetMode(mode mutate.Mode) {
	e.mode = mode
}

// SetPriority injects the pair ordering strategy.
func (e *Engine) SetPriority(p testcase.PairPriority) {
	if p != nil {
		e.priority = p
	}
}

// SetConcurrency overrides the worker pool size.
func (e *Engine) SetConcurrency(n int) {
	if n > 0 {
		e.concurrency = n
	}
}

// pairTask is one unit of work: a compiled rule bound to concrete
// fields.
type pairTask struct {
	rule   *Rule
	field1 *field.Field
	field2 *field.Field // nil for single-field rules
}

// Run executes the boundary sweep plus every rule of the pack. Per-item
// failures are counted and logged through the run context; only a nil
// catalog is fatal.
func (e *Engine) Run(rc *testcase.RunContext, cat *field.Catalog, asm *testcase.Assembler) error {
	if cat == nil {
		return errors.New("nil catalog")
	}
	if rc == nil {
		rc = testcase.NewRunContext(nil, nil, nil)
	}

	for _, mde := range cat.Skipped() {
		rc.Skip(testcase.SkipMissingDomain, common.ProblemEntry{
			FieldIDs: []int{mde.FieldID},
			Reason:   mde.Reason,
		})
	}

	// Rules run before the boundary sweep so a rule-derived case claims
	// its field pair first; the sweep is multi-variant and never
	// collides with already-claimed keys.
	if err := e.runRules(rc, cat, asm); err != nil {
		return err
	}
	e.runBoundary(rc, cat, asm)
	return nil
}

// runBoundary sweeps every mutation-eligible field with the
// single-field candidate set. Each candidate becomes its own test case
// ("boundary" is multi-variant by default).
func (e *Engine) runBoundary(rc *testcase.RunContext, cat *field.Catalog, asm *testcase.Assembler) {
	synth := mutate.New(
		mutate.WithEnvelope(mutate.Envelope{Min: e.cfg.Envelope.Min, Max: e.cfg.Envelope.Max}),
	)
	for _, f := range cat.Fields() {
		if !cat.Eligible(f.ID) {
			continue
		}
		rc.CountField()
		budget := mutate.NewBudget(e.cfg.ItemTimeout, e.cfg.EnumerationCap)
		sweeper := mutate.New(
			mutate.WithEnvelope(mutate.Envelope{Min: e.cfg.Envelope.Min, Max: e.cfg.Envelope.Max}),
			mutate.WithBudget(budget),
		)
		var (
			cands    []mutate.Assignment
			err      error
			fellBack bool
		)
		if e.cfg.Exhaustive {
			cands, fellBack, err = sweeper.Exhaustive(f, e.mode)
		} else {
			cands, err = synth.Boundary(f, e.mode)
		}
		if err != nil {
			e.recordSkip(rc, err, "", []int{f.ID})
			continue
		}
		if fellBack {
			rc.Log.Debug("exhaustive sweep fell back to boundary sampling",
				zap.Int("fieldId", f.ID))
		}
		generated := 0
		for _, cand := range cands {
			tc, err := asm.Assemble(cat.Base(), []mutate.Assignment{cand}, "", "boundary")
			if err != nil {
				e.recordSkip(rc, err, "", []int{f.ID})
				continue
			}
			generated++
			rc.Log.Debug("test case written", zap.String("path", tc.Path))
		}
		rc.CountGenerated(generated)
		if rc.Metrics != nil {
			rc.Metrics.AddPair(generated, generated == 0)
		}
	}
}

// runRules compiles the pack, expands every rule into concrete pair
// tasks, and processes them on the worker pool.
func (e *Engine) runRules(rc *testcase.RunContext, cat *field.Catalog, asm *testcase.Assembler) error {
	var tasks []pairTask
	for i := range e.pack.Rules {
		r := &e.pack.Rules[i]
		if err := r.Compile(); err != nil {
			rc.Skip(testcase.SkipRejectedRule, common.ProblemEntry{
				RuleID: r.RuleID,
				Item:   r.DSLRule,
				Reason: err.Error(),
			})
			continue
		}
		if r.Type == NoRule {
			rc.Skip(testcase.SkipRejectedRule, common.ProblemEntry{
				RuleID: r.RuleID,
				Reason: "record carries no valid rule",
			})
			continue
		}
		expanded, err := e.expandRule(r, cat)
		if err != nil {
			rc.Skip(testcase.SkipRejectedRule, common.ProblemEntry{
				RuleID: r.RuleID,
				Reason: err.Error(),
			})
			continue
		}
		tasks = append(tasks, expanded...)
	}

	tasks = e.prioritize(tasks)
	if rc.Metrics != nil {
		rc.Metrics.SetTotalPairs(int64(len(tasks)))
	}

	taskCh := make(chan pairTask)
	var wg sync.WaitGroup
	for w := 0; w < e.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				e.processTask(rc, cat, asm, task)
			}
		}()
	}
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)
	wg.Wait()
	return nil
}

// expandRule resolves the rule's field selectors against the catalog.
// Selectors sharing a count pair up by IE instance; mismatched counts
// fall back to the full cross product.
func (e *Engine) expandRule(r *Rule, cat *field.Catalog) ([]pairTask, error) {
	f1s := e.resolveSelector(r, cat, 0)
	if len(f1s) == 0 {
		return nil, fmt.Errorf("selector %q matches no fields", selectorAt(r, 0))
	}
	if r.SingleField() {
		tasks := make([]pairTask, 0, len(f1s))
		for _, f1 := range f1s {
			tasks = append(tasks, pairTask{rule: r, field1: f1})
		}
		return tasks, nil
	}
	f2s := e.resolveSelector(r, cat, 1)
	if len(f2s) == 0 {
		return nil, fmt.Errorf("selector %q matches no fields", selectorAt(r, 1))
	}
	var tasks []pairTask
	if len(f1s) == len(f2s) {
		for i := range f1s {
			tasks = append(tasks, pairTask{rule: r, field1: f1s[i], field2: f2s[i]})
		}
		return tasks, nil
	}
	for _, f1 := range f1s {
		for _, f2 := range f2s {
			if f1.ID == f2.ID {
				continue
			}
			tasks = append(tasks, pairTask{rule: r, field1: f1, field2: f2})
		}
	}
	return tasks, nil
}

func (e *Engine) resolveSelector(r *Rule, cat *field.Catalog, slot int) []*field.Field {
	if len(r.FieldIDs) > slot && len(r.FieldIDs[slot]) > 0 {
		out := make([]*field.Field, 0, len(r.FieldIDs[slot]))
		for _, id := range r.FieldIDs[slot] {
			if f, ok := cat.Lookup(id); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return cat.Selector(selectorAt(r, slot))
}

func selectorAt(r *Rule, slot int) string {
	if len(r.FieldPair) > slot {
		return r.FieldPair[slot]
	}
	return ""
}

func (e *Engine) prioritize(tasks []pairTask) []pairTask {
	pairs := make([]testcase.Pair, len(tasks))
	byKey := make(map[testcase.Pair]pairTask, len(tasks))
	for i, t := range tasks {
		p := testcase.Pair{RuleID: t.rule.RuleID, Field1ID: t.field1.ID}
		if t.field2 != nil {
			p.Field2ID = t.field2.ID
		}
		pairs[i] = p
		byKey[p] = t
	}
	ordered := e.priority.Prioritize(pairs)
	out := make([]pairTask, 0, len(ordered))
	for _, p := range ordered {
		if t, ok := byKey[p]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) processTask(rc *testcase.RunContext, cat *field.Catalog, asm *testcase.Assembler, task pairTask) {
	rc.CountPair()
	ids := []int{task.field1.ID}
	if task.field2 != nil {
		ids = append(ids, task.field2.ID)
	}
	for _, id := range ids {
		if !cat.Eligible(id) {
			rc.Skip(testcase.SkipMissingDomain, common.ProblemEntry{
				RuleID:   task.rule.RuleID,
				FieldIDs: ids,
				Reason:   fmt.Sprintf("field %d has no usable domain", id),
			})
			if rc.Metrics != nil {
				rc.Metrics.AddPair(0, true)
			}
			return
		}
	}

	budget := mutate.NewBudget(e.cfg.ItemTimeout, e.cfg.EnumerationCap)
	synth := mutate.New(
		mutate.WithEnvelope(mutate.Envelope{Min: e.cfg.Envelope.Min, Max: e.cfg.Envelope.Max}),
		mutate.WithBudget(budget),
	)
	assignments, err := synth.CrossField(task.rule.AST, string(task.rule.Type), task.field1, task.field2, e.mode)
	if err != nil {
		e.recordSkip(rc, err, task.rule.RuleID, ids)
		if rc.Metrics != nil {
			rc.Metrics.AddPair(0, true)
		}
		return
	}
	tc, err := asm.Assemble(cat.Base(), assignments, task.rule.RuleID, string(task.rule.Type))
	if err != nil {
		e.recordSkip(rc, err, task.rule.RuleID, ids)
		if rc.Metrics != nil {
			rc.Metrics.AddPair(0, true)
		}
		return
	}
	rc.CountGenerated(1)
	if rc.Metrics != nil {
		rc.Metrics.AddPair(1, false)
	}
	rc.Log.Debug("test case written",
		zap.String("ruleId", task.rule.RuleID),
		zap.String("path", tc.Path),
	)
}

// recordSkip maps a per-item error onto its skip-reason counter.
func (e *Engine) recordSkip(rc *testcase.RunContext, err error, ruleID string, ids []int) {
	entry := common.ProblemEntry{RuleID: ruleID, FieldIDs: ids, Reason: err.Error()}
	var (
		exhausted   *mutate.DomainExhaustedError
		unsupported *mutate.UnsupportedTypeError
		parseErr    *dsl.ParseError
	)
	switch {
	case errors.Is(err, testcase.ErrDuplicatePair):
		rc.Skip(testcase.SkipDuplicatePair, entry)
	case errors.As(err, &exhausted):
		switch {
		case exhausted.Reason == "budget exhausted during pair search":
			rc.Skip(testcase.SkipTimeout, entry)
		case exhausted.SameValue:
			rc.Skip(testcase.SkipSameValue, entry)
		default:
			rc.Skip(testcase.SkipDomainExhausted, entry)
		}
	case errors.As(err, &unsupported):
		rc.Skip(testcase.SkipUnsupportedType, entry)
	case errors.As(err, &parseErr):
		rc.Skip(testcase.SkipRejectedRule, entry)
	default:
		rc.Skip(testcase.SkipOther, entry)
	}
}

package testcase

import (
	"sync"

	"go.uber.org/zap"

	"example.com/rrcforge/internal/common"
)

// SkipReason categorizes why a field or pair produced no test case.
type SkipReason string

const (
	SkipMissingDomain   SkipReason = "missing_domain"
	SkipUnsupportedType SkipReason = "unsupported_type"
	SkipDomainExhausted SkipReason = "domain_exhausted"
	SkipSameValue       SkipReason = "same_value"
	SkipDuplicatePair   SkipReason = "duplicate_pair"
	SkipRejectedRule    SkipReason = "rejected_rule"
	SkipTimeout         SkipReason = "timeout"

	// SkipOther is the catch-all for failures outside the taxonomy
	// above, e.g. a test-case write error. It keeps the named counters
	// clean.
	SkipOther SkipReason = "other"
)

// Counters is the end-of-run tally.
type Counters struct {
	FieldsProcessed int            `json:"fieldsProcessed"`
	PairsProcessed  int            `json:"pairsProcessed"`
	Generated       int            `json:"generated"`
	Skipped         map[string]int `json:"skipped"`
}

// RunContext carries everything a generation run mutates: counters,
// the problem-log sink, metrics and the logger. It is passed explicitly
// to every component; there is no process-wide run state.
type RunContext struct {
	Log      *zap.Logger
	Problems *common.ProblemLog
	Metrics  *common.Metrics

	mu       sync.Mutex
	counters Counters
}

// NewRunContext builds a run context. Any of the sinks may be nil.
func NewRunContext(log *zap.Logger, problems *common.ProblemLog, metrics *common.Metrics) *RunContext {
	if log == nil {
		log = zap.NewNop()
	}
	return &RunContext{
		Log:      log,
		Problems: problems,
		Metrics:  metrics,
		counters: Counters{Skipped: make(map[string]int)},
	}
}

// CountField records one field visited by the single-field sweep.
func (rc *RunContext) CountField() {
	rc.mu.Lock()
	rc.counters.FieldsProcessed++
	rc.mu.Unlock()
}

// CountPair records one processed (rule, pair) task.
func (rc *RunContext) CountPair() {
	rc.mu.Lock()
	rc.counters.PairsProcessed++
	rc.mu.Unlock()
}

// CountGenerated records n emitted test cases.
func (rc *RunContext) CountGenerated(n int) {
	rc.mu.Lock()
	rc.counters.Generated += n
	rc.mu.Unlock()
}

// Skip records a skipped item and appends a problem entry when the
// sink is configured. Per-item problems never abort the batch.
func (rc *RunContext) Skip(reason SkipReason, entry common.ProblemEntry) {
	rc.mu.Lock()
	rc.counters.Skipped[string(reason)]++
	rc.mu.Unlock()
	if rc.Problems != nil {
		entry.Kind = string(reason)
		if err := rc.Problems.Append(entry); err != nil {
			rc.Log.Warn("problem log append failed", zap.Error(err))
		}
	}
	rc.Log.Debug("item skipped",
		zap.String("reason", string(reason)),
		zap.String("ruleId", entry.RuleID),
		zap.Ints("fieldIds", entry.FieldIDs),
		zap.String("detail", entry.Reason),
	)
}

// Summary returns a copy of the current counters.
func (rc *RunContext) Summary() Counters {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := rc.counters
	out.Skipped = make(map[string]int, len(rc.counters.Skipped))
	for k, v := range rc.counters.Skipped {
		out.Skipped[k] = v
	}
	return out
}

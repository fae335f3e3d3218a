// Package report materializes the end-of-run summary as JSON and PDF.
package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"example.com/rrcforge/internal/common"
	"example.com/rrcforge/internal/testcase"
)

// RunReport is the persisted outcome of one generation run.
type RunReport struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	MessageFile string            `json:"messageFile"`
	InputDigest string            `json:"inputDigest"`
	RulePackID  string            `json:"rulePackId"`
	RuleVersion string            `json:"ruleVersion"`
	OutDir      string            `json:"outDir"`
	Mode        string            `json:"mode"`
	Counters    testcase.Counters `json:"counters"`
	UniquePairs int               `json:"uniquePairs"`
	Problems    []common.ProblemEntry `json:"problems,omitempty"`
}

// Digest returns a stable hex digest over the run identity: input,
// rule pack and counters. Two runs over the same inputs with the same
// outcome share a digest.
func (r RunReport) Digest() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	enc.Encode(r.InputDigest)
	enc.Encode(r.RulePackID)
	enc.Encode(r.RuleVersion)
	enc.Encode(r.Counters)
	enc.Encode(r.UniquePairs)
	return hex.EncodeToString(h.Sum(nil))
}

// SaveRunJSON writes the report atomically.
func SaveRunJSON(rep RunReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(out, bytes.NewReader(b))
}

// LoadRunJSON reads a persisted run report.
func LoadRunJSON(path string) (RunReport, error) {
	var rep RunReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}

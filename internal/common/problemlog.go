package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ProblemEntry captures one per-item failure (field, rule, or file)
// encountered during a generation run. Entries never abort the batch;
// they are appended here for post-hoc triage.
type ProblemEntry struct {
	Ts       time.Time `json:"ts"`
	Kind     string    `json:"kind"` // parse|classify|missing_domain|unsupported_type|domain_exhausted|same_value|timeout|reconstruct|write
	RuleID   string    `json:"ruleId,omitempty"`
	FieldIDs []int     `json:"fieldIds,omitempty"`
	Item     string    `json:"item,omitempty"`
	Reason   string    `json:"reason"`
}

// ProblemLog provides append-only access to a JSONL triage log.
type ProblemLog struct {
	path string
	mu   sync.Mutex
}

// NewProblemLog returns a ProblemLog that writes to the provided path.
func NewProblemLog(path string) *ProblemLog {
	return &ProblemLog{path: path}
}

// Path returns the backing file path for the log.
func (p *ProblemLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Append writes a new entry. Entries are serialized as JSON objects,
// one per line, so downstream triage tooling can stream them.
func (p *ProblemLog) Append(entry ProblemEntry) error {
	if p == nil {
		return errors.New("nil problem log")
	}
	if entry.Kind == "" {
		return errors.New("problem entry missing kind")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadProblemLog loads every entry from the supplied JSONL file.
func ReadProblemLog(path string) ([]ProblemEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []ProblemEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry ProblemEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode problem entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

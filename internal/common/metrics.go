package common

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Metrics tracks generation-run progress. Counters are mutex-guarded so
// pool workers can report concurrently.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	end        time.Time
	totalPairs int64
	pairs      int64
	generated  int64
	skipped    int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// SetTotalPairs records the number of candidate pairs the run will
// visit, for completion reporting.
func (m *Metrics) SetTotalPairs(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalPairs = total
	m.mu.Unlock()
}

// AddPair records one processed (rule, pair) task with its outcome.
func (m *Metrics) AddPair(generated int, skipped bool) {
	m.mu.Lock()
	m.pairs++
	m.generated += int64(generated)
	if skipped {
		m.skipped++
	}
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:   m.elapsedLocked(),
		TotalPairs: m.totalPairs,
		Pairs:      m.pairs,
		Generated:  m.generated,
		Skipped:    m.skipped,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration   time.Duration
	TotalPairs int64
	Pairs      int64
	Generated  int64
	Skipped    int64
}

// PairsPerSecond reports processing throughput over the run so far.
func (s MetricsSnapshot) PairsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Pairs) / s.Duration.Seconds()
}

// Completion reports the fraction of candidate pairs visited.
func (s MetricsSnapshot) Completion() float64 {
	if s.TotalPairs <= 0 {
		return 0
	}
	ratio := float64(s.Pairs) / float64(s.TotalPairs)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func formatProgressLine(s MetricsSnapshot) string {
	if s.TotalPairs > 0 {
		return fmt.Sprintf("Progress: %6.2f%% (%d/%d pairs) generated=%d skipped=%d %.0f pairs/s",
			s.Completion()*100, s.Pairs, s.TotalPairs, s.Generated, s.Skipped, s.PairsPerSecond())
	}
	return fmt.Sprintf("Processed: %d pairs generated=%d skipped=%d %.0f pairs/s",
		s.Pairs, s.Generated, s.Skipped, s.PairsPerSecond())
}

// StartProgressPrinter periodically rewrites a progress line on w until
// the returned stop function is called.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

package common

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestProblemLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "problems.ndjson")
	plog := NewProblemLog(path)

	entries := []ProblemEntry{
		{Kind: "rejected_rule", RuleID: "r-1", Reason: "unrecognized operator"},
		{Kind: "missing_domain", FieldIDs: []int{7}, Reason: "no domain file"},
	}
	for _, e := range entries {
		if err := plog.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := ReadProblemLog(path)
	if err != nil {
		t.Fatalf("ReadProblemLog: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d entries, want 2", len(got))
	}
	if got[0].Kind != "rejected_rule" || got[0].RuleID != "r-1" {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].FieldIDs[0] != 7 {
		t.Errorf("entry 1 = %+v", got[1])
	}
	if got[0].Ts.IsZero() {
		t.Error("append must stamp entries")
	}
}

func TestProblemLogRejectsMissingKind(t *testing.T) {
	plog := NewProblemLog(filepath.Join(t.TempDir(), "p.ndjson"))
	if err := plog.Append(ProblemEntry{Reason: "no kind"}); err == nil {
		t.Fatal("expected error for entry without kind")
	}
}

func TestProblemLogConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.ndjson")
	plog := NewProblemLog(path)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := plog.Append(ProblemEntry{Kind: "same_value", Reason: "x"}); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := ReadProblemLog(path)
	if err != nil {
		t.Fatalf("ReadProblemLog: %v", err)
	}
	if len(got) != 80 {
		t.Errorf("read %d entries, want 80 (lines must not interleave)", len(got))
	}
}

func TestSha256OfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	digest, size, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if digest != want || size != 3 {
		t.Errorf("digest = %s size = %d", digest, size)
	}
	if Sha256OfBytes([]byte("abc")) != want {
		t.Error("Sha256OfBytes disagrees with Sha256OfFile")
	}
}

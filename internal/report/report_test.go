package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/rrcforge/internal/testcase"
)

func sampleReport() RunReport {
	return RunReport{
		GeneratedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		MessageFile: "sample_message.json",
		InputDigest: "ab12cd34",
		RulePackID:  "rrc-reconfig-demo",
		RuleVersion: "1.0.0",
		OutDir:      "out",
		Mode:        "VIOLATE",
		Counters: testcase.Counters{
			FieldsProcessed: 8,
			PairsProcessed:  5,
			Generated:       12,
			Skipped:         map[string]int{"rejected_rule": 1},
		},
		UniquePairs: 9,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-report.json")
	rep := sampleReport()
	if err := SaveRunJSON(rep, path); err != nil {
		t.Fatalf("SaveRunJSON: %v", err)
	}
	got, err := LoadRunJSON(path)
	if err != nil {
		t.Fatalf("LoadRunJSON: %v", err)
	}
	if got.RulePackID != rep.RulePackID || got.Counters.Generated != 12 || got.UniquePairs != 9 {
		t.Errorf("loaded report = %+v", got)
	}
	if got.Counters.Skipped["rejected_rule"] != 1 {
		t.Errorf("skip matrix = %v", got.Counters.Skipped)
	}
}

func TestDigestStability(t *testing.T) {
	a := sampleReport()
	b := sampleReport()
	// GeneratedAt and OutDir are run metadata, not run identity.
	b.GeneratedAt = b.GeneratedAt.Add(time.Hour)
	b.OutDir = "elsewhere"
	if a.Digest() != b.Digest() {
		t.Error("digest must ignore timestamps and paths")
	}

	c := sampleReport()
	c.Counters.Generated = 13
	if a.Digest() == c.Digest() {
		t.Error("digest must change with the outcome")
	}
	if len(a.Digest()) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a.Digest()))
	}
}

func TestRunDigestQR(t *testing.T) {
	png, err := RunDigestQR("ab12cd34", 64)
	if err != nil {
		t.Fatalf("RunDigestQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}

	if _, err := RunDigestQR("  ", 64); err == nil {
		t.Error("expected error for empty digest")
	}
}

func TestSanitizeDigest(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"ab12cd", "AB12CD"},
		{" ab-12 zz ", "AB12"},
		{"!!", ""},
	}
	for _, tc := range cases {
		if got := sanitizeDigest(tc.in); got != tc.want {
			t.Errorf("sanitizeDigest(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSaveRunPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-report.pdf")
	if err := SaveRunPDF(sampleReport(), path); err != nil {
		t.Fatalf("SaveRunPDF: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("file head = %q, not a PDF", data[:min(8, len(data))])
	}
}

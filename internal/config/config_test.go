package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Envelope.Min != -1<<31 || cfg.Envelope.Max != 1<<31-1 {
		t.Errorf("envelope = [%d,%d]", cfg.Envelope.Min, cfg.Envelope.Max)
	}
	if cfg.EnumerationCap != 4096 {
		t.Errorf("EnumerationCap = %d", cfg.EnumerationCap)
	}
	if cfg.ItemTimeout != 5*time.Second {
		t.Errorf("ItemTimeout = %s", cfg.ItemTimeout)
	}
	if cfg.Concurrency < 1 {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}
	if !cfg.AllowsMultiVariant("boundary") || cfg.AllowsMultiVariant("CrossReference") {
		t.Error("only boundary sweeps are multi-variant by default")
	}
	if cfg.Exhaustive {
		t.Error("exhaustive traversal must be opt-in")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
envelope:
  min: 0
  max: 65535
enumerationCap: 128
itemTimeout: 2s
concurrency: 4
multiVariant: [boundary, CrossReference]
exhaustive: true
outDir: /tmp/cases
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Envelope.Min != 0 || cfg.Envelope.Max != 65535 {
		t.Errorf("envelope = [%d,%d]", cfg.Envelope.Min, cfg.Envelope.Max)
	}
	if cfg.EnumerationCap != 128 || cfg.ItemTimeout != 2*time.Second || cfg.Concurrency != 4 {
		t.Errorf("knobs = %+v", cfg)
	}
	if !cfg.AllowsMultiVariant("CrossReference") {
		t.Error("multiVariant override not applied")
	}
	if !cfg.Exhaustive || cfg.OutDir != "/tmp/cases" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "concurrency: 2\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}
	if cfg.EnumerationCap != 4096 || cfg.OutDir != "out" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadInvertedEnvelope(t *testing.T) {
	path := writeConfig(t, "envelope:\n  min: 100\n  max: 10\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for inverted envelope")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "concurency: 4\n")
	if _, err := Load(path); err == nil {
		t.Fatal("misspelled key must be rejected, not ignored")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

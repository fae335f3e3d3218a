// Package config holds the engine tunables shared by the CLI and the
// daemon. Values come from a YAML file with defaulting applied on
// load; every knob has a usable default so a missing file is not an
// error for ad-hoc runs.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvelopeConfig bounds out-of-domain integer probes. The default is a
// signed 32-bit envelope; narrower wire encodings should narrow it.
type EnvelopeConfig struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// Config is the engine configuration.
type Config struct {
	Envelope EnvelopeConfig `yaml:"envelope"`

	// EnumerationCap limits exhaustive integer/enum traversal; larger
	// domains fall back to boundary sampling.
	EnumerationCap int64 `yaml:"enumerationCap"`

	// ItemTimeout bounds the wall-clock spent on a single (rule, pair)
	// task before it degrades to a boundary-only result.
	ItemTimeout time.Duration `yaml:"itemTimeout"`

	// Concurrency is the bounded worker pool size for pair tasks.
	Concurrency int `yaml:"concurrency"`

	// MultiVariant lists constraint types permitted to keep several
	// test cases per field pair. Boundary sweeps are multi-variant by
	// default; cross-field rules keep one case per pair.
	MultiVariant []string `yaml:"multiVariant"`

	// Exhaustive switches single-field integer/enum sweeps from
	// boundary sampling to full traversal (subject to EnumerationCap).
	Exhaustive bool `yaml:"exhaustive"`

	// OutDir is where test cases, the problem log and the run report
	// are written.
	OutDir string `yaml:"outDir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Envelope:       EnvelopeConfig{Min: -1 << 31, Max: 1<<31 - 1},
		EnumerationCap: 4096,
		ItemTimeout:    5 * time.Second,
		Concurrency:    runtime.NumCPU(),
		MultiVariant:   []string{"boundary"},
		OutDir:         "out",
	}
}

// Load reads the YAML config at path and applies defaults to every
// unset knob.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var raw Config
	if err := dec.Decode(&raw); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if raw.Envelope.Min != 0 || raw.Envelope.Max != 0 {
		if raw.Envelope.Min >= raw.Envelope.Max {
			return cfg, fmt.Errorf("config %s: envelope min %d >= max %d", path, raw.Envelope.Min, raw.Envelope.Max)
		}
		cfg.Envelope = raw.Envelope
	}
	if raw.EnumerationCap > 0 {
		cfg.EnumerationCap = raw.EnumerationCap
	}
	if raw.ItemTimeout > 0 {
		cfg.ItemTimeout = raw.ItemTimeout
	}
	if raw.Concurrency > 0 {
		cfg.Concurrency = raw.Concurrency
	}
	if len(raw.MultiVariant) > 0 {
		cfg.MultiVariant = raw.MultiVariant
	}
	if raw.OutDir != "" {
		cfg.OutDir = raw.OutDir
	}
	cfg.Exhaustive = raw.Exhaustive
	return cfg, nil
}

// AllowsMultiVariant reports whether the given constraint type keeps
// more than one test case per dedup key.
func (c Config) AllowsMultiVariant(constraintType string) bool {
	for _, t := range c.MultiVariant {
		if t == constraintType {
			return true
		}
	}
	return false
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"

	"example.com/rrcforge/internal/config"
)

// RulePackRef describes a rule pack the daemon can serve by id.
type RulePackRef struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Rules string `json:"rules" yaml:"rules"`
}

// Options configures server creation.
type Options struct {
	StorageDir   string
	PackManifest string
	Packs        []RulePackRef
	Engine       config.Config
	Concurrency  int
}

type packEntry struct {
	id        string
	name      string
	rulesPath string
}

// LoadPackManifest parses a manifest document enumerating the available
// rule packs. Relative paths are resolved against the manifest's
// directory; comments and trailing commas are tolerated.
func LoadPackManifest(path string) ([]RulePackRef, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("manifest path is empty")
	}
	manifestPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest path: %w", err)
	}
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("standardize manifest: %w", err)
	}
	var doc struct {
		Packs []RulePackRef `json:"packs"`
	}
	if err := json.Unmarshal(std, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(doc.Packs) == 0 {
		return nil, errors.New("manifest contains no packs")
	}
	base := filepath.Dir(manifestPath)
	out := make([]RulePackRef, len(doc.Packs))
	for i, pack := range doc.Packs {
		resolved, err := resolvePackPaths(base, pack)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func resolvePackPaths(base string, pack RulePackRef) (RulePackRef, error) {
	pack.ID = strings.TrimSpace(pack.ID)
	pack.Name = strings.TrimSpace(pack.Name)
	pack.Rules = strings.TrimSpace(pack.Rules)
	if pack.ID == "" {
		return RulePackRef{}, errors.New("manifest pack entry missing id")
	}
	if pack.Rules == "" {
		return RulePackRef{}, fmt.Errorf("manifest pack %s missing rules path", pack.ID)
	}
	if !filepath.IsAbs(pack.Rules) {
		pack.Rules = filepath.Join(base, pack.Rules)
	}
	return pack, nil
}

func buildPackMap(opts Options) (map[string]packEntry, []string, error) {
	packs := opts.Packs
	if len(packs) == 0 && strings.TrimSpace(opts.PackManifest) != "" {
		var err error
		packs, err = LoadPackManifest(opts.PackManifest)
		if err != nil {
			return nil, nil, fmt.Errorf("load pack manifest: %w", err)
		}
	}
	entries := make(map[string]packEntry)
	for _, pack := range packs {
		id := strings.TrimSpace(pack.ID)
		rulesPath := strings.TrimSpace(pack.Rules)
		if id == "" {
			return nil, nil, errors.New("rule pack missing id")
		}
		if rulesPath == "" {
			return nil, nil, fmt.Errorf("pack %s missing rules path", id)
		}
		if !filepath.IsAbs(rulesPath) {
			abs, err := filepath.Abs(rulesPath)
			if err != nil {
				return nil, nil, fmt.Errorf("pack %s rules abs: %w", id, err)
			}
			rulesPath = abs
		}
		if _, err := os.Stat(rulesPath); err != nil {
			return nil, nil, fmt.Errorf("pack %s rules: %w", id, err)
		}
		if _, exists := entries[id]; exists {
			return nil, nil, fmt.Errorf("duplicate pack %s configured", id)
		}
		entries[id] = packEntry{id: id, name: pack.Name, rulesPath: rulesPath}
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return entries, ids, nil
}

package rules

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
)

const (
	repoPacksDir     = "rulepacks"
	rulePackFileName = "rulepack.json"
)

// Repository manages locally installed rule packs, laid out as
// <root>/rulepacks/<id>/<version>/rulepack.json. Packs are distributed
// as zip archives carrying a rulepack.json.
type Repository struct {
	root string
}

// InstalledRulePack is one pack discovered in the repository.
type InstalledRulePack struct {
	RulePack RulePack
	Dir      string
	Path     string
}

// DefaultRepository returns the repository rooted in ~/.rrcforge.
func DefaultRepository() (*Repository, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return OpenRepository(filepath.Join(home, ".rrcforge"))
}

// OpenRepository creates a Repository rooted at path and ensures the
// pack directory exists.
func OpenRepository(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Join(path, repoPacksDir), 0o755); err != nil {
		return nil, fmt.Errorf("create rulepacks dir: %w", err)
	}
	return &Repository{root: path}, nil
}

// Root returns the root directory of the repository.
func (r *Repository) Root() string {
	if r == nil {
		return ""
	}
	return r.root
}

// InstallArchive installs a pack archive (zip with a rulepack.json)
// into the repository, keyed by the pack's declared id and version.
func (r *Repository) InstallArchive(archivePath string) (InstalledRulePack, error) {
	var installed InstalledRulePack
	if r == nil {
		return installed, errors.New("nil repository")
	}
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return installed, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	var packBytes []byte
	for _, f := range zr.File {
		if filepath.Base(f.Name) == rulePackFileName {
			packBytes, err = readZipFile(f)
			if err != nil {
				return installed, fmt.Errorf("read %s: %w", rulePackFileName, err)
			}
			break
		}
	}
	if len(packBytes) == 0 {
		return installed, fmt.Errorf("%s not found in archive", rulePackFileName)
	}

	rp, err := parseRulePackBytes(packBytes)
	if err != nil {
		return installed, err
	}
	if rp.RulePackID == "" || rp.Version == "" {
		return installed, errors.New("rule pack missing id or version")
	}
	if err := validatePathComponent(rp.RulePackID); err != nil {
		return installed, fmt.Errorf("invalid rule pack id: %w", err)
	}
	if err := validatePathComponent(rp.Version); err != nil {
		return installed, fmt.Errorf("invalid rule pack version: %w", err)
	}

	dir := r.packDir(rp.RulePackID, rp.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return installed, fmt.Errorf("create pack dir: %w", err)
	}
	path := filepath.Join(dir, rulePackFileName)
	if err := os.WriteFile(path, packBytes, 0o644); err != nil {
		return installed, fmt.Errorf("write %s: %w", rulePackFileName, err)
	}
	return InstalledRulePack{RulePack: rp, Dir: dir, Path: path}, nil
}

// InstallFile installs a bare rulepack.json into the repository.
func (r *Repository) InstallFile(path string) (InstalledRulePack, error) {
	var installed InstalledRulePack
	if r == nil {
		return installed, errors.New("nil repository")
	}
	rp, err := LoadRulePack(path)
	if err != nil {
		return installed, err
	}
	if rp.RulePackID == "" || rp.Version == "" {
		return installed, errors.New("rule pack missing id or version")
	}
	if err := validatePathComponent(rp.RulePackID); err != nil {
		return installed, fmt.Errorf("invalid rule pack id: %w", err)
	}
	if err := validatePathComponent(rp.Version); err != nil {
		return installed, fmt.Errorf("invalid rule pack version: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return installed, err
	}
	dir := r.packDir(rp.RulePackID, rp.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return installed, fmt.Errorf("create pack dir: %w", err)
	}
	dst := filepath.Join(dir, rulePackFileName)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return installed, fmt.Errorf("write %s: %w", rulePackFileName, err)
	}
	return InstalledRulePack{RulePack: rp, Dir: dir, Path: dst}, nil
}

// ListInstalled returns every installed pack, ordered by id then
// version.
func (r *Repository) ListInstalled() ([]InstalledRulePack, error) {
	if r == nil {
		return nil, errors.New("nil repository")
	}
	base := filepath.Join(r.root, repoPacksDir)
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var result []InstalledRulePack
	for _, idEntry := range entries {
		if !idEntry.IsDir() {
			continue
		}
		versionDir := filepath.Join(base, idEntry.Name())
		versEntries, err := os.ReadDir(versionDir)
		if err != nil {
			return nil, err
		}
		for _, vEntry := range versEntries {
			if !vEntry.IsDir() {
				continue
			}
			path := filepath.Join(versionDir, vEntry.Name(), rulePackFileName)
			rp, err := LoadRulePack(path)
			if err != nil {
				continue
			}
			result = append(result, InstalledRulePack{
				RulePack: rp,
				Dir:      filepath.Join(versionDir, vEntry.Name()),
				Path:     path,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].RulePack.RulePackID == result[j].RulePack.RulePackID {
			return compareVersions(result[i].RulePack.Version, result[j].RulePack.Version) < 0
		}
		return result[i].RulePack.RulePackID < result[j].RulePack.RulePackID
	})
	return result, nil
}

// Remove deletes an installed pack version.
func (r *Repository) Remove(id, version string) error {
	if r == nil {
		return errors.New("nil repository")
	}
	if err := validatePathComponent(id); err != nil {
		return fmt.Errorf("invalid rule pack id: %w", err)
	}
	if err := validatePathComponent(version); err != nil {
		return fmt.Errorf("invalid rule pack version: %w", err)
	}
	dir := r.packDir(id, version)
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// Load returns the pack identified by id and version. An empty version
// resolves to the latest installed one.
func (r *Repository) Load(id, version string) (RulePack, string, error) {
	var rp RulePack
	if r == nil {
		return rp, "", errors.New("nil repository")
	}
	if err := validatePathComponent(id); err != nil {
		return rp, "", fmt.Errorf("invalid rule pack id: %w", err)
	}
	if version == "" {
		latest, err := r.latestVersionFor(id)
		if err != nil {
			return rp, "", err
		}
		if latest == "" {
			return rp, "", fmt.Errorf("rule pack %s is not installed", id)
		}
		version = latest
	}
	if err := validatePathComponent(version); err != nil {
		return rp, "", fmt.Errorf("invalid rule pack version: %w", err)
	}
	path := filepath.Join(r.packDir(id, version), rulePackFileName)
	rp, err := LoadRulePack(path)
	if err != nil {
		return rp, "", err
	}
	if rp.RulePackID != id || rp.Version != version {
		return rp, "", errors.New("rule pack metadata does not match requested id/version")
	}
	return rp, path, nil
}

func (r *Repository) latestVersionFor(id string) (string, error) {
	dir := filepath.Join(r.root, repoPacksDir, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	best := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if best == "" || compareVersions(e.Name(), best) > 0 {
			best = e.Name()
		}
	}
	return best, nil
}

func (r *Repository) packDir(id, version string) string {
	return filepath.Join(r.root, repoPacksDir, id, version)
}

func parseRulePackBytes(data []byte) (RulePack, error) {
	var rp RulePack
	std, err := hujson.Standardize(data)
	if err != nil {
		return rp, fmt.Errorf("standardize rule pack: %w", err)
	}
	if err := json.Unmarshal(std, &rp); err != nil {
		return rp, fmt.Errorf("parse rule pack: %w", err)
	}
	return rp, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func validatePathComponent(s string) error {
	if s == "" {
		return errors.New("empty string")
	}
	if strings.Contains(s, string(os.PathSeparator)) || strings.Contains(s, "/") {
		return errors.New("contains path separator")
	}
	if s == "." || s == ".." {
		return errors.New("invalid component")
	}
	return nil
}

func compareVersions(a, b string) int {
	if a == b {
		return 0
	}
	ap := parseVersionParts(a)
	bp := parseVersionParts(b)
	n := len(ap)
	if len(bp) > n {
		n = len(bp)
	}
	for i := 0; i < n; i++ {
		ai, bi := 0, 0
		if i < len(ap) {
			ai = ap[i]
		}
		if i < len(bp) {
			bi = bp[i]
		}
		if ai != bi {
			if ai > bi {
				return 1
			}
			return -1
		}
	}
	return strings.Compare(a, b)
}

func parseVersionParts(s string) []int {
	parts := strings.Split(s, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.Atoi(p); err == nil {
			out = append(out, v)
		} else {
			return []int{0}
		}
	}
	return out
}

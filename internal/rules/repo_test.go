package rules

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func packJSON(id, version string) string {
	return `{
  "rulePackId": "` + id + `",
  "version": "` + version + `",
  "rules": [
    {"ruleId": "r1", "field_pair": ["a", "b"], "dsl_rule": "MATCH(field1, field2)", "has_valid_rule": true}
  ]
}`
}

func writeArchive(t *testing.T, dir, id, version string) string {
	t.Helper()
	path := filepath.Join(dir, id+"-"+version+".zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("rulepack.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(packJSON(id, version))); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRepositoryInstallAndLoad(t *testing.T) {
	repo, err := OpenRepository(t.TempDir())
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}

	archive := writeArchive(t, t.TempDir(), "rrc-demo", "1.0.0")
	installed, err := repo.InstallArchive(archive)
	if err != nil {
		t.Fatalf("InstallArchive: %v", err)
	}
	if installed.RulePack.RulePackID != "rrc-demo" {
		t.Errorf("installed pack = %+v", installed.RulePack)
	}

	rp, path, err := repo.Load("rrc-demo", "1.0.0")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rp.Version != "1.0.0" || len(rp.Rules) != 1 || path == "" {
		t.Errorf("loaded pack = %+v", rp)
	}
}

func TestRepositoryLatestVersion(t *testing.T) {
	repo, err := OpenRepository(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	for _, v := range []string{"1.0.0", "1.10.0", "1.2.0"} {
		if _, err := repo.InstallArchive(writeArchive(t, dir, "rrc-demo", v)); err != nil {
			t.Fatalf("install %s: %v", v, err)
		}
	}
	rp, _, err := repo.Load("rrc-demo", "")
	if err != nil {
		t.Fatalf("Load latest: %v", err)
	}
	// Versions compare numerically per segment, not lexically.
	if rp.Version != "1.10.0" {
		t.Errorf("latest = %s, want 1.10.0", rp.Version)
	}
}

func TestRepositoryListAndRemove(t *testing.T) {
	repo, err := OpenRepository(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	repo.InstallArchive(writeArchive(t, dir, "pack-b", "1.0.0"))
	repo.InstallArchive(writeArchive(t, dir, "pack-a", "1.0.0"))

	installed, err := repo.ListInstalled()
	if err != nil {
		t.Fatalf("ListInstalled: %v", err)
	}
	if len(installed) != 2 || installed[0].RulePack.RulePackID != "pack-a" {
		t.Fatalf("installed = %+v", installed)
	}

	if err := repo.Remove("pack-a", "1.0.0"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	installed, _ = repo.ListInstalled()
	if len(installed) != 1 || installed[0].RulePack.RulePackID != "pack-b" {
		t.Errorf("after remove: %+v", installed)
	}

	if err := repo.Remove("pack-a", "1.0.0"); err == nil {
		t.Error("removing an absent pack must fail")
	}
	if err := repo.Remove("../escape", "1.0.0"); err == nil {
		t.Error("path traversal in id must be rejected")
	}
}

func TestRepositoryInstallFile(t *testing.T) {
	repo, err := OpenRepository(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(t.TempDir(), "rulepack.json")
	if err := os.WriteFile(src, []byte(packJSON("file-pack", "0.1.0")), 0o644); err != nil {
		t.Fatal(err)
	}
	installed, err := repo.InstallFile(src)
	if err != nil {
		t.Fatalf("InstallFile: %v", err)
	}
	if installed.RulePack.RulePackID != "file-pack" {
		t.Errorf("installed = %+v", installed.RulePack)
	}
}

func TestRepositoryRejectsArchiveWithoutPack(t *testing.T) {
	repo, err := OpenRepository(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "empty.zip")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("readme.txt")
	f.Write([]byte("nothing here"))
	zw.Close()
	os.WriteFile(path, buf.Bytes(), 0o644)

	if _, err := repo.InstallArchive(path); err == nil {
		t.Fatal("expected error for archive without rulepack.json")
	}
}

package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseManifest(t *testing.T) {
	data := []byte(`
[package]
name = "com.example.demo"
version = "0.2.0"
namespace = "Demo"

[build]
workers = 8
source_dirs = ["src", "gen"]

[targets.amiga]
features = ["m68k", "smallmem"]

[targets.host]
features = []
`)
	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Package.Name != "com.example.demo" {
		t.Errorf("Name = %q", m.Package.Name)
	}
	if m.Package.Namespace != "Demo" {
		t.Errorf("Namespace = %q", m.Package.Namespace)
	}
	if m.Build.Workers != 8 {
		t.Errorf("Workers = %d, want 8", m.Build.Workers)
	}
	if len(m.Build.SourceDirs) != 2 || m.Build.SourceDirs[1] != "gen" {
		t.Errorf("SourceDirs = %v", m.Build.SourceDirs)
	}
	// 未声明的 test_dirs 落回默认值
	if len(m.Build.TestDirs) != 1 || m.Build.TestDirs[0] != "tests" {
		t.Errorf("TestDirs = %v", m.Build.TestDirs)
	}

	features := m.Features("amiga")
	if !features["m68k"] || !features["smallmem"] {
		t.Errorf("Features(amiga) = %v", features)
	}
	if len(m.Features("host")) != 0 {
		t.Errorf("Features(host) should be empty")
	}
	if len(m.Features("missing")) != 0 {
		t.Errorf("Features(missing) should be empty")
	}
}

func TestParseManifestDefaults(t *testing.T) {
	m, err := Parse([]byte("[package]\nname = \"x\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Build.Workers != DefaultWorkers {
		t.Errorf("Workers = %d, want %d", m.Build.Workers, DefaultWorkers)
	}
	if len(m.Build.SourceDirs) != 1 || m.Build.SourceDirs[0] != "src" {
		t.Errorf("SourceDirs = %v", m.Build.SourceDirs)
	}
}

func TestParseManifestInvalid(t *testing.T) {
	if _, err := Parse([]byte("[package\nname")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFindManifestUpward(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := filepath.Join(root, ManifestFileName)
	if err := os.WriteFile(manifest, []byte("[package]\nname = \"x\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	found := Find(nested)
	if found == "" {
		t.Fatal("Find returned empty path")
	}
	resolved, _ := filepath.EvalSymlinks(found)
	expected, _ := filepath.EvalSymlinks(manifest)
	if resolved != expected {
		t.Errorf("Find = %q, want %q", resolved, expected)
	}
}

func TestFindManifestMissing(t *testing.T) {
	if found := Find(t.TempDir()); found != "" {
		t.Errorf("Find = %q, want empty", found)
	}
}

func TestSourcesDiscovery(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"am.toml":            "[package]\nname = \"x\"\n",
		"src/main.aml":       "namespace App { }",
		"src/util/str.aml":   "namespace App { }",
		"src/readme.md":      "not source",
		"tests/main_t.aml":   "namespace App { }",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	proj, err := Open(filepath.Join(root, "src"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sources, err := proj.Sources()
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("got %d sources, want 3: %v", len(sources), sources)
	}

	byName := make(map[string]SourceFile)
	for _, s := range sources {
		byName[filepath.Base(s.Path)] = s
	}
	if s, ok := byName["main.aml"]; !ok || s.IsTest {
		t.Errorf("main.aml missing or marked as test: %+v", s)
	}
	if s, ok := byName["str.aml"]; !ok || s.IsTest {
		t.Errorf("str.aml missing or marked as test: %+v", s)
	}
	if s, ok := byName["main_t.aml"]; !ok || !s.IsTest {
		t.Errorf("main_t.aml missing or not marked as test: %+v", s)
	}

	// 排序稳定
	for i := 1; i < len(sources); i++ {
		if sources[i-1].Path >= sources[i].Path {
			t.Errorf("sources not sorted: %q >= %q", sources[i-1].Path, sources[i].Path)
		}
	}
}

package projectconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/saruga/abcc/internal/projectconfig"
	"codeberg.org/saruga/abcc/internal/test"
)

func TestLoadFileParsesEveryField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abcc.json")
	content := `{
		"includeDirs": ["vendor/include"],
		"optimize": true,
		"target": "x86_64-unknown-linux-gnu",
		"keepGoing": true
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := projectconfig.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	test.AssertEqual(t, len(cfg.IncludeDirs), 1)
	test.AssertEqual(t, cfg.IncludeDirs[0], "vendor/include")
	test.AssertEqual(t, *cfg.Optimize, true)
	test.AssertEqual(t, cfg.Target, "x86_64-unknown-linux-gnu")
	test.AssertEqual(t, *cfg.KeepGoing, true)
}

func TestLoadWalksUpToParentDirectory(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "project", "src")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "project", "abcc.json")
	if err := os.WriteFile(path, []byte(`{"target": "wasm32-unknown-unknown"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, found, err := projectconfig.Load(sub)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	test.AssertEqual(t, found, path)
	test.AssertEqual(t, cfg.Target, "wasm32-unknown-unknown")
}

func TestLoadReturnsNilWhenNoConfigFound(t *testing.T) {
	dir := t.TempDir()
	cfg, found, err := projectconfig.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected a nil Config, got %+v", cfg)
	}
	test.AssertEqual(t, found, "")
}

func TestMergePrefersCLIOverridesOverConfigFile(t *testing.T) {
	optimizeOff := false
	cfg := &projectconfig.Config{
		IncludeDirs: []string{"a"},
		Optimize:    &optimizeOff,
		Target:      "x86_64-unknown-linux-gnu",
	}

	optimizeOn := true
	opts := cfg.Merge(projectconfig.CLIOverrides{
		IncludeDirs: []string{"b"},
		Optimize:    &optimizeOn,
		Target:      "aarch64-unknown-linux-gnu",
	})

	test.AssertEqual(t, opts.Optimize, true)
	test.AssertEqual(t, opts.Target, "aarch64-unknown-linux-gnu")
	test.AssertEqual(t, len(opts.IncludeDirs), 2)
	test.AssertEqual(t, opts.IncludeDirs[0], "a")
	test.AssertEqual(t, opts.IncludeDirs[1], "b")
}

func TestMergeKeepsConfigFileValueWhenNoCLIOverride(t *testing.T) {
	optimizeOn := true
	cfg := &projectconfig.Config{Optimize: &optimizeOn, Target: "x86_64-unknown-linux-gnu"}

	opts := cfg.Merge(projectconfig.CLIOverrides{})
	test.AssertEqual(t, opts.Optimize, true)
	test.AssertEqual(t, opts.Target, "x86_64-unknown-linux-gnu")
}

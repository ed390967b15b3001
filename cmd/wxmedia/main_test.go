package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "wxmedia ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestGlobalsLoadOverrides(t *testing.T) {
	g := &globals{configPath: filepath.Join(t.TempDir(), "missing.yaml"), root: "/data/res", logLevel: "debug"}
	cfg, err := g.load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Resource.Root != "/data/res" || cfg.Observability.Logging.Level != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg.Resource)
	}

	g = &globals{configPath: filepath.Join(t.TempDir(), "missing.yaml")}
	if _, err := g.load(); err == nil {
		t.Fatal("expected validation error without a resource root")
	}
}

func TestResolvePathCommand(t *testing.T) {
	root := t.TempDir()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(root, "none.yaml"), "--root", root, "resolve", "path", "wcf://image2/ab/cd/abcd.jpg"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != filepath.Join(root, "image2", "ab", "cd", "abcd.jpg") {
		t.Fatalf("unexpected paths %q", lines)
	}
}

func TestCatalogImportRequiresDB(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--root", os.TempDir(), "catalog", "import"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--db") {
		t.Fatalf("expected --db error, got %v", err)
	}
}

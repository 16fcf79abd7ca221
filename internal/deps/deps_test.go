package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
}

func TestResolveChromeConfiguredPath(t *testing.T) {
	tmp := t.TempDir()
	chrome := filepath.Join(tmp, executableName("my-chrome"))
	if err := os.WriteFile(chrome, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write chrome stub: %v", err)
	}

	status := ResolveChrome(chrome)
	if !status.Available || status.Command != chrome {
		t.Fatalf("expected configured chrome to resolve, got %#v", status)
	}

	status = ResolveChrome(filepath.Join(tmp, "missing"))
	if status.Available || status.Detail == "" {
		t.Fatalf("expected missing configured path to fail with detail, got %#v", status)
	}
}

func TestResolveChromeSearchesCandidates(t *testing.T) {
	binDir := t.TempDir()
	chromium := filepath.Join(binDir, executableName("chromium"))
	if err := os.WriteFile(chromium, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write chromium stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	status := ResolveChrome("")
	if !status.Available {
		t.Fatalf("expected chromium on PATH to be found, got detail %q", status.Detail)
	}
	if status.Command != chromium {
		t.Fatalf("expected command %q, got %q", chromium, status.Command)
	}
}

func TestResolveChromeNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := ResolveChrome("")
	if status.Available {
		t.Fatal("expected chrome resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when chrome is unavailable")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func TestResolveWithoutCommandOrCandidates(t *testing.T) {
	status := Resolve(Requirement{Name: "tool"})
	if status.Available || status.Detail != "command not configured" {
		t.Fatalf("expected unconfigured requirement to fail, got %#v", status)
	}
}

func TestGitRequirementFallsBackToPath(t *testing.T) {
	binDir := t.TempDir()
	git := filepath.Join(binDir, executableName("git"))
	if err := os.WriteFile(git, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write git stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{GitRequirement(""), ChromeRequirement("")})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Command != git || results[0].Name != "git" {
		t.Fatalf("expected git to resolve from PATH, got %#v", results[0])
	}
	if results[1].Available || results[1].Command != "google-chrome" {
		t.Fatalf("expected chrome to be missing with first candidate recorded, got %#v", results[1])
	}
}

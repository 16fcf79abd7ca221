package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamsync/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRemote_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	result := CheckRemote(context.Background(), srv.URL+"/TWTV.m3u", time.Second)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRemote_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	result := CheckRemote(context.Background(), srv.URL, time.Second)
	if result.Passed {
		t.Fatal("expected failure for 404")
	}
	if !strings.Contains(result.Detail, "404") {
		t.Fatalf("expected status in detail, got %q", result.Detail)
	}
}

func TestCheckRemote_MissingURL(t *testing.T) {
	result := CheckRemote(context.Background(), "", time.Second)
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	// No channels, merge or publish: only the output directory is checked.
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Passed {
		t.Errorf("check %q failed: %s", results[0].Name, results[0].Detail)
	}
}

func TestRunAll_IncludesRemoteWhenMergeEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.BackupDir = t.TempDir()
	cfg.Merge.Enabled = true
	cfg.Merge.RemoteURL = srv.URL

	results := RunAll(context.Background(), &cfg)
	found := false
	for _, r := range results {
		if r.Name == "Remote master playlist" {
			found = true
			if !r.Passed {
				t.Errorf("remote check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected remote check in results")
	}
}

func TestCheckSystemDepsFollowsFeatures(t *testing.T) {
	cfg := config.Default()
	if got := CheckSystemDeps(&cfg); len(got) != 0 {
		t.Fatalf("expected no requirements without channels or publish, got %v", got)
	}
	cfg.Groups = []config.Group{{Name: "g", Channels: []config.Channel{{Name: "c", Mode: config.ModeBrowser}}}}
	cfg.Publish.Enabled = true
	got := CheckSystemDeps(&cfg)
	if len(got) != 2 || got[0].Name != "Chrome" || got[1].Name != "git" {
		t.Fatalf("unexpected requirements %v", got)
	}
}

func TestProbeRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	if probe := ProbeRepo(context.Background(), "git", dir, "origin"); probe.IsRepo {
		t.Fatal("empty dir should not be a repository")
	}

	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"remote", "add", "origin", "https://example.com/playlists.git"},
	} {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git %v: %v (%s)", args, err, out)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "all.m3u"), []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	probe := ProbeRepo(context.Background(), "git", dir, "origin")
	if !probe.IsRepo || !probe.Dirty {
		t.Fatalf("unexpected probe %+v", probe)
	}
	if probe.RemoteURL != "https://example.com/playlists.git" {
		t.Fatalf("unexpected remote %q", probe.RemoteURL)
	}
	if !strings.Contains(probe.Detail(), "uncommitted changes") {
		t.Fatalf("unexpected detail %q", probe.Detail())
	}
}

package main

import (
	"fmt"
	"strings"
	"testing"

	"streamsync/internal/deps"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	statuses := []deps.Status{
		{Name: "Chrome", Available: false, Detail: "none of google-chrome found on PATH"},
		{Name: "git", Available: true, Command: "/usr/bin/git"},
	}
	lines := dependencyLines(statuses, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR]") || !strings.Contains(lines[0], "Summary") {
		t.Fatalf("expected summary line first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] none of google-chrome") {
		t.Fatalf("expected error detail in second line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] Ready (command: /usr/bin/git)") {
		t.Fatalf("expected ready detail in third line, got %q", lines[2])
	}
}

func TestReadURLsSkipsCommentsAndBlanks(t *testing.T) {
	urls, err := readURLs(strings.NewReader("\n# note\n a.m3u8 \n\nb.m3u8\n"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(urls, ",") != "a.m3u8,b.m3u8" {
		t.Fatalf("unexpected urls %v", urls)
	}
}

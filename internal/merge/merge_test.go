package merge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamsync/internal/backup"
	"streamsync/internal/logging"
	"streamsync/internal/playlist"
)

const title = "台灣頻道（自動更新）"

var managedGroups = []string{"台灣頻道"}

type staticSource []playlist.Entry

func (s staticSource) ManagedEntries([]string) []playlist.Entry { return s }

func fresh(urls ...string) []playlist.Entry {
	var out []playlist.Entry
	for i, u := range urls {
		name := string(rune('A' + i))
		out = append(out, playlist.NewEntry("台灣頻道", name, name+" (高清優先)", u))
	}
	return out
}

func managedSection(t *testing.T, doc string) string {
	t.Helper()
	start := strings.Index(doc, Rule)
	if start < 0 {
		t.Fatalf("no managed section in:\n%s", doc)
	}
	section := doc[start:]
	if idx := strings.Index(section, stampPrefix); idx >= 0 {
		section = section[:idx]
	}
	return section
}

func TestSpliceReplacesManagedKeepsForeign(t *testing.T) {
	remote := "#EXTM3U\n" +
		"#EXTINF:-1 group-title=\"台灣頻道\",A\nhttp://old/a.m3u8\n" +
		"#EXTINF:-1,Foreign\nhttp://keep/foreign.m3u8\n"
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)

	out, stripped := Splice(remote, fresh("http://new/a.m3u8"), managedGroups, title, now)
	if stripped.Removed != 1 || stripped.Foreign != 1 {
		t.Fatalf("unexpected counts %+v", stripped)
	}
	want := "#EXTM3U\n" +
		"#EXTINF:-1,Foreign\nhttp://keep/foreign.m3u8\n" +
		"\n" + Rule + "\n# " + title + "\n" + Rule + "\n" +
		"#EXTINF:-1 group-title=\"台灣頻道\" tvg-name=\"A\",A (高清優先)\nhttp://new/a.m3u8\n" +
		"# 更新時間：2026-03-01 09:00:00\n"
	if out != want {
		t.Fatalf("unexpected merge output:\n%s\nwant:\n%s", out, want)
	}
	if strings.Contains(out, "http://old/a.m3u8") {
		t.Fatal("stale managed url survived")
	}
}

func TestSpliceIsIdempotent(t *testing.T) {
	remote := "#EXTM3U x-tvg-url=\"https://epg.example/e.xml\"\n" +
		"#EXTINF:-1 group-title=\"新聞\",CNN\nhttp://keep/cnn.m3u8\n" +
		"#EXTINF:-1 group-title=\"台灣頻道\",Old\n#EXTVLCOPT:http-user-agent=x\nhttp://old/old.m3u8\n" +
		"#EXTINF:-1 group-title=\"體育\",ESPN\nhttp://keep/espn.m3u8\n"
	entries := fresh("http://new/a.m3u8", "http://new/b.m3u8")

	first, _ := Splice(remote, entries, managedGroups, title, time.Unix(100, 0))
	second, stripped := Splice(first, entries, managedGroups, title, time.Unix(200, 0))

	if stripped.Removed != 2 || stripped.Foreign != 2 {
		t.Fatalf("second pass should remove exactly the managed pairs: %+v", stripped)
	}
	if managedSection(t, first) != managedSection(t, second) {
		t.Fatalf("managed section changed between runs:\n%s\n---\n%s", first, second)
	}
	if strings.Count(second, "# "+title) != 1 || strings.Count(second, Rule) != 2 {
		t.Fatalf("delimiter block duplicated:\n%s", second)
	}
	if strings.Count(second, stampPrefix) != 1 {
		t.Fatalf("timestamp duplicated:\n%s", second)
	}
	if strings.Contains(second, "#EXTVLCOPT") {
		t.Fatalf("option line of removed entry survived:\n%s", second)
	}
	strip := func(s string) string { return s[:strings.Index(s, Rule)] }
	if strip(first) != strip(second) {
		t.Fatalf("foreign content changed:\n%s\n---\n%s", strip(first), strip(second))
	}
}

func TestStripPairingInvariant(t *testing.T) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i := 0; i < 3; i++ {
		b.WriteString("#EXTINF:-1 group-title=\"台灣頻道\",M\nhttp://managed/" + string(rune('0'+i)) + "\n")
		b.WriteString("#EXTINF:-1 group-title=\"其他\",F" + string(rune('0'+i)) + "\nhttp://foreign/" + string(rune('0'+i)) + "\n")
	}
	stripped := Strip(b.String(), managedGroups, title)
	if stripped.Removed != 3 || stripped.Foreign != 3 {
		t.Fatalf("unexpected counts %+v", stripped)
	}
	var extinf, urls []string
	for _, line := range stripped.Lines {
		switch {
		case strings.HasPrefix(line, "#EXTINF"):
			extinf = append(extinf, line)
		case strings.HasPrefix(line, "http"):
			urls = append(urls, line)
		}
	}
	if len(extinf) != 3 || len(urls) != 3 {
		t.Fatalf("dangling half entry: %v", stripped.Lines)
	}
	for i, u := range urls {
		if u != "http://foreign/"+string(rune('0'+i)) {
			t.Fatalf("foreign order changed: %v", urls)
		}
	}
}

func TestStripPassesThroughAmbiguousLines(t *testing.T) {
	remote := "#EXTM3U\n" +
		"#EXTINF:-1 group-title=\"台灣頻道\",Dangling\n" +
		"#EXTINF:-1,Next\nhttp://keep/next\n" +
		"http://orphan/url\n" +
		"# a note\n"
	stripped := Strip(remote, managedGroups, title)
	text := strings.Join(stripped.Lines, "\n")
	for _, want := range []string{"Dangling", "http://keep/next", "http://orphan/url", "# a note"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q to pass through:\n%s", want, text)
		}
	}
	if stripped.Removed != 0 {
		t.Fatalf("nothing should be removed, got %d", stripped.Removed)
	}
}

func TestStripRemovesLegacyBlock(t *testing.T) {
	// Legacy output concatenated whole channel files under the block.
	remote := "#EXTM3U\n#EXTINF:-1,Foreign\nhttp://keep/f\n\n" +
		Rule + "\n# " + title + "\n" + Rule + "\n" +
		"#EXTM3U\n#EXTINF:-1,A (高清優先)\nhttp://old/a\n# 更新：2025-01-01 00:00:00\n" +
		"# 更新時間：2025-01-01 00:00:00\n"
	stripped := Strip(remote, managedGroups, title)
	if stripped.Removed != 1 || stripped.Foreign != 1 {
		t.Fatalf("unexpected counts %+v", stripped)
	}
	text := strings.Join(stripped.Lines, "\n")
	if strings.Contains(text, "更新") || strings.Contains(text, Rule) || strings.Count(text, "#EXTM3U") != 1 {
		t.Fatalf("legacy block not cleaned:\n%s", text)
	}
}

func TestRenderAddsMissingHeader(t *testing.T) {
	out := Render([]string{"#EXTINF:-1,F", "http://f", "", ""}, nil, title, time.Unix(0, 0))
	if !strings.HasPrefix(out, "#EXTM3U\n#EXTINF:-1,F\nhttp://f\n\n"+Rule) {
		t.Fatalf("unexpected render:\n%s", out)
	}
}

func newEngine(t *testing.T, remoteURL, local string, retention int) *Engine {
	t.Helper()
	store := backup.New(filepath.Join(filepath.Dir(local), "backups"), retention, logging.NewNop())
	return New(Options{
		RemoteURL:     remoteURL,
		LocalPath:     local,
		Title:         title,
		ManagedGroups: managedGroups,
		Timeout:       time.Second,
	}, nil, staticSource(fresh("http://new/a.m3u8")), store, logging.NewNop())
}

func TestEngineMergeWritesAndBacksUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:-1 group-title=\"台灣頻道\",A\nhttp://old/a\n#EXTINF:-1,F\nhttp://keep/f\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	local := filepath.Join(dir, "TWTV.m3u")
	if err := os.WriteFile(local, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := newEngine(t, srv.URL, local, 5)

	res, err := engine.Merge(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Removed != 1 || res.Foreign != 1 || res.Managed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if filepath.Base(res.BackupPath) != "TWTV_backup_20260301_090000.m3u" {
		t.Fatalf("unexpected backup path %s", res.BackupPath)
	}
	prev, err := os.ReadFile(res.BackupPath)
	if err != nil || string(prev) != "previous" {
		t.Fatalf("backup does not hold previous master: %q err=%v", prev, err)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "http://new/a.m3u8") || strings.Contains(string(data), "http://old/a") {
		t.Fatalf("unexpected master:\n%s", data)
	}
}

func TestEngineFetchFailureLeavesLocalUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := t.TempDir()
	local := filepath.Join(dir, "TWTV.m3u")
	if err := os.WriteFile(local, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := newEngine(t, srv.URL, local, 5)
	if _, err := engine.Merge(context.Background(), time.Now()); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	data, _ := os.ReadFile(local)
	if string(data) != "previous" {
		t.Fatalf("local master modified: %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "backups")); !os.IsNotExist(err) {
		t.Fatalf("no backup expected before a successful fetch, stat err=%v", err)
	}
}

func TestEngineRequiresRemoteURL(t *testing.T) {
	engine := newEngine(t, "", filepath.Join(t.TempDir(), "TWTV.m3u"), 5)
	if _, err := engine.Fetch(context.Background()); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

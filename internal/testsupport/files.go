package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// WritePlaylist writes an extended M3U file at path with one entry per URL.
// Entries are titled "<name> <n>".
func WritePlaylist(t testing.TB, path, name string, urls ...string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i, u := range urls {
		b.WriteString("#EXTINF:-1,")
		b.WriteString(name)
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(u)
		b.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

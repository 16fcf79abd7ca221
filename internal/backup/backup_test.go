package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"streamsync/internal/logging"
)

func writeMaster(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "TWTV.m3u")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSnapshotNamesAndCollisions(t *testing.T) {
	root := t.TempDir()
	src := writeMaster(t, root, "#EXTM3U\n")
	store := New(filepath.Join(root, "backups"), 5, logging.NewNop())
	now := time.Date(2026, 3, 1, 8, 30, 5, 0, time.Local)

	first, err := store.Snapshot(src, now)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if filepath.Base(first) != "TWTV_backup_20260301_083005.m3u" {
		t.Fatalf("unexpected name %s", first)
	}
	second, err := store.Snapshot(src, now)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if filepath.Base(second) != "TWTV_backup_20260301_083005_2.m3u" {
		t.Fatalf("collision not suffixed: %s", second)
	}
	data, err := os.ReadFile(second)
	if err != nil || string(data) != "#EXTM3U\n" {
		t.Fatalf("backup content mismatch: %q err=%v", data, err)
	}

	list, err := store.List(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0] != first || list[1] != second {
		t.Fatalf("unexpected order %v", list)
	}
}

func TestSnapshotMissingSource(t *testing.T) {
	root := t.TempDir()
	store := New(filepath.Join(root, "backups"), 5, logging.NewNop())
	path, err := store.Snapshot(filepath.Join(root, "TWTV.m3u"), time.Now())
	if err != nil || path != "" {
		t.Fatalf("expected no-op, got %q err=%v", path, err)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	root := t.TempDir()
	src := writeMaster(t, root, "#EXTM3U\n")
	store := New(filepath.Join(root, "backups"), 2, logging.NewNop())
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)
	var made []string
	for i := 0; i < 4; i++ {
		path, err := store.Snapshot(src, base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		made = append(made, path)
	}
	// Unrelated files are never touched.
	other := filepath.Join(store.Dir(), "other_backup_20200101_000000.m3u")
	if err := os.WriteFile(other, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Prune(src)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 2 || removed[0] != made[0] || removed[1] != made[1] {
		t.Fatalf("unexpected removed %v", removed)
	}
	left, _ := store.List(src)
	if len(left) != 2 || left[0] != made[2] || left[1] != made[3] {
		t.Fatalf("unexpected remaining %v", left)
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("unrelated file removed: %v", err)
	}
}

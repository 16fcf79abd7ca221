// Package backup keeps timestamped snapshots of the local master playlist
// and prunes them to a fixed retention.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"streamsync/internal/fileutil"
	"streamsync/internal/logging"
)

const stampLayout = "20060102_150405"

// Store writes snapshots into a single directory.
type Store struct {
	dir       string
	retention int
	logger    *slog.Logger
}

// New returns a Store rooted at dir keeping at most retention snapshots per
// source file. Retention below one is treated as one.
func New(dir string, retention int, logger *slog.Logger) *Store {
	if retention < 1 {
		retention = 1
	}
	return &Store{dir: dir, retention: retention, logger: logging.NewComponentLogger(logger, "backup")}
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

func split(src string) (stem, ext string) {
	base := filepath.Base(src)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// Snapshot copies src to <dir>/<stem>_backup_<YYYYmmdd_HHMMSS><ext>. A
// missing src is not an error; the returned path is empty in that case.
func (s *Store) Snapshot(src string, now time.Time) (string, error) {
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stem, ext := split(src)
	base := stem + "_backup_" + now.Format(stampLayout)
	dst := filepath.Join(s.dir, base+ext)
	for n := 2; ; n++ {
		if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
			break
		}
		dst = filepath.Join(s.dir, base+"_"+strconv.Itoa(n)+ext)
	}
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", src, err)
	}
	s.logger.Info("master playlist backed up",
		logging.String("source", src),
		logging.String("backup", dst),
	)
	return dst, nil
}

// List returns the snapshots of src, oldest first.
func (s *Store) List(src string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	stem, ext := split(src)
	prefix := stem + "_backup_"
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || filepath.Ext(name) != ext {
			continue
		}
		names = append(names, name)
	}
	// The timestamp layout sorts lexically; a collision suffix sorts after
	// the unsuffixed name because '.' < '_'.
	sort.Strings(names)
	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, filepath.Join(s.dir, name))
	}
	return paths, nil
}

// Prune deletes the oldest snapshots of src beyond the retention count and
// returns the removed paths.
func (s *Store) Prune(src string) ([]string, error) {
	paths, err := s.List(src)
	if err != nil {
		return nil, err
	}
	if len(paths) <= s.retention {
		return nil, nil
	}
	var removed []string
	var errs []error
	for _, path := range paths[:len(paths)-s.retention] {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	if len(removed) > 0 {
		s.logger.Debug("old backups pruned", logging.Int("removed", len(removed)), logging.Int("retention", s.retention))
	}
	return removed, errors.Join(errs...)
}

// Package catalog owns the on-disk playlist tree: one file per channel under
// <output_dir>/<group>/, plus the group and global aggregates at the root of
// output_dir.
package catalog

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

	"streamsync/internal/config"
	"streamsync/internal/fileutil"
	"streamsync/internal/logging"
	"streamsync/internal/playlist"
	"streamsync/internal/selector"
)

// TimestampLayout is used in every trailer comment.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	updatedPrefix = "# 更新："
	countPrefix   = "# 頻道數："
	fileExt       = ".m3u"
)

// ErrEmptyCandidates is returned when WriteChannel is called with nothing to write.
var ErrEmptyCandidates = errors.New("no candidates to write")

// Store reads and writes the playlist tree.
type Store struct {
	outputDir    string
	primaryLabel string
	backupLabel  string
	allFile      string
	groups       []config.Group
	logger       *slog.Logger
}

// NewStore binds a Store to the configured output directory and groups.
func NewStore(cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{
		outputDir:    cfg.Paths.OutputDir,
		primaryLabel: cfg.Playlist.PrimaryLabel,
		backupLabel:  cfg.Playlist.BackupLabel,
		allFile:      cfg.Playlist.AllFile,
		groups:       cfg.Groups,
		logger:       logging.NewComponentLogger(logger, "catalog"),
	}
}

// OutputDir returns the root of the playlist tree.
func (s *Store) OutputDir() string {
	return s.outputDir
}

// ChannelPath returns <output_dir>/<group>/<name>.m3u.
func (s *Store) ChannelPath(group, name string) string {
	return filepath.Join(s.outputDir, SafeName(group), SafeName(name)+fileExt)
}

// Label returns the display label for the candidate at index.
func (s *Store) Label(index int) string {
	switch {
	case index <= 0:
		return s.primaryLabel
	case index == 1:
		return s.backupLabel
	default:
		return s.backupLabel + strconv.Itoa(index)
	}
}

// ChannelPlaylist renders the playlist for one channel without writing it.
func (s *Store) ChannelPlaylist(ch config.Channel, candidates []selector.Candidate, now time.Time) *playlist.Playlist {
	p := &playlist.Playlist{}
	for i, c := range candidates {
		display := fmt.Sprintf("%s (%s)", ch.Name, s.Label(i))
		p.Entries = append(p.Entries, playlist.NewEntry(ch.Group, ch.Name, display, c.URL))
	}
	p.Comments = []string{updatedPrefix + now.Format(TimestampLayout)}
	return p
}

// WriteChannel atomically replaces the channel's playlist file.
func (s *Store) WriteChannel(ch config.Channel, candidates []selector.Candidate, now time.Time) (string, error) {
	if len(candidates) == 0 {
		return "", ErrEmptyCandidates
	}
	path := s.ChannelPath(ch.Group, ch.Name)
	body := s.ChannelPlaylist(ch, candidates, now).String()
	if err := fileutil.WriteFileAtomic(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write channel playlist: %w", err)
	}
	return path, nil
}

// ReadChannel parses the channel's current playlist file.
func (s *Store) ReadChannel(group, name string) (*playlist.Playlist, error) {
	return readFile(s.ChannelPath(group, name))
}

func readFile(path string) (*playlist.Playlist, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return playlist.Parse(file)
}

// ChannelFile describes one per-channel file on disk.
type ChannelFile struct {
	Group      string    `json:"group"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Configured bool      `json:"configured"`
	Exists     bool      `json:"exists"`
	Entries    int       `json:"entries"`
	Primary    string    `json:"primary,omitempty"`
	ModTime    time.Time `json:"mod_time,omitempty"`
}

// scopeFiles lists the channel files of one group directory: configured
// channels in declaration order, then unconfigured files lexically.
func (s *Store) scopeFiles(group config.Group) []ChannelFile {
	files := make([]ChannelFile, 0, len(group.Channels))
	known := make(map[string]struct{}, len(group.Channels))
	for _, ch := range group.Channels {
		path := s.ChannelPath(group.Name, ch.Name)
		known[filepath.Base(path)] = struct{}{}
		files = append(files, ChannelFile{Group: group.Name, Name: ch.Name, Path: path, Configured: true})
	}
	files = append(files, s.extraFiles(group.Name, known)...)
	return files
}

func (s *Store) extraFiles(group string, known map[string]struct{}) []ChannelFile {
	dir := filepath.Join(s.outputDir, SafeName(group))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var extra []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := known[name]; ok {
			continue
		}
		extra = append(extra, name)
	}
	sort.Strings(extra)
	out := make([]ChannelFile, 0, len(extra))
	for _, name := range extra {
		out = append(out, ChannelFile{
			Group: group,
			Name:  strings.TrimSuffix(name, filepath.Ext(name)),
			Path:  filepath.Join(dir, name),
		})
	}
	return out
}

// extraGroups returns group directories that are not configured, lexically.
func (s *Store) extraGroups() []config.Group {
	known := make(map[string]struct{}, len(s.groups))
	for _, g := range s.groups {
		known[SafeName(g.Name)] = struct{}{}
	}
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, ok := known[entry.Name()]; ok {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	out := make([]config.Group, 0, len(names))
	for _, name := range names {
		out = append(out, config.Group{Name: name})
	}
	return out
}

// Inventory describes every channel file in aggregate order, including
// configured channels whose file does not exist yet.
func (s *Store) Inventory() []ChannelFile {
	var out []ChannelFile
	for _, group := range append(append([]config.Group(nil), s.groups...), s.extraGroups()...) {
		for _, file := range s.scopeFiles(group) {
			if info, err := os.Stat(file.Path); err == nil {
				file.Exists = true
				file.ModTime = info.ModTime()
				if p, err := readFile(file.Path); err == nil {
					file.Entries = len(p.Entries)
					if len(p.Entries) > 0 {
						file.Primary = p.Entries[0].URL
					}
				}
			}
			out = append(out, file)
		}
	}
	return out
}

// AggregateResult reports what an aggregate contains.
type AggregateResult struct {
	Scope   string   `json:"scope"`
	Path    string   `json:"path"`
	Files   int      `json:"files"`
	Entries int      `json:"entries"`
	Skipped []string `json:"skipped,omitempty"`
}

// collect concatenates the entries of files, skipping unreadable ones.
func (s *Store) collect(files []ChannelFile) ([]playlist.Entry, int, []string) {
	var entries []playlist.Entry
	var skipped []string
	included := 0
	for _, file := range files {
		p, err := readFile(file.Path)
		if err != nil {
			skipped = append(skipped, file.Path)
			attrs := []logging.Attr{
				logging.String(logging.FieldGroup, file.Group),
				logging.String(logging.FieldChannel, file.Name),
				logging.String("path", file.Path),
				logging.Error(err),
			}
			if errors.Is(err, fs.ErrNotExist) {
				attrs = append(attrs,
					logging.String(logging.FieldErrorHint, "channel has not been captured successfully yet"),
					logging.String(logging.FieldImpact, "channel missing from aggregate"),
				)
			}
			logging.WarnWithContext(s.logger, "channel playlist skipped", "aggregate_skip", attrs...)
			continue
		}
		included++
		entries = append(entries, p.Entries...)
	}
	return entries, included, skipped
}

func (s *Store) writeAggregate(scope, file string, files []ChannelFile, now time.Time) (AggregateResult, error) {
	entries, included, skipped := s.collect(files)
	p := &playlist.Playlist{
		Entries: entries,
		Comments: []string{
			updatedPrefix + now.Format(TimestampLayout),
			countPrefix + strconv.Itoa(len(entries)),
		},
	}
	path := filepath.Join(s.outputDir, file)
	if err := fileutil.WriteFileAtomic(path, []byte(p.String()), 0o644); err != nil {
		return AggregateResult{}, fmt.Errorf("write aggregate %s: %w", file, err)
	}
	return AggregateResult{Scope: scope, Path: path, Files: included, Entries: len(entries), Skipped: skipped}, nil
}

// BuildGroup writes the aggregate for one configured group.
func (s *Store) BuildGroup(group config.Group, now time.Time) (AggregateResult, error) {
	return s.writeAggregate(group.Name, group.File, s.scopeFiles(group), now)
}

// BuildAll writes the global aggregate over every group directory.
func (s *Store) BuildAll(now time.Time) (AggregateResult, error) {
	var files []ChannelFile
	for _, group := range append(append([]config.Group(nil), s.groups...), s.extraGroups()...) {
		files = append(files, s.scopeFiles(group)...)
	}
	return s.writeAggregate("all", s.allFile, files, now)
}

// BuildAggregates writes every group aggregate followed by the global one. A
// failure on one aggregate does not stop the others; the joined error is returned.
func (s *Store) BuildAggregates(now time.Time) ([]AggregateResult, error) {
	var results []AggregateResult
	var errs []error
	for _, group := range s.groups {
		res, err := s.BuildGroup(group, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	res, err := s.BuildAll(now)
	if err != nil {
		errs = append(errs, err)
	} else {
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// ManagedEntries returns the current entries of the named groups, in
// configuration order, for splicing into the master playlist.
func (s *Store) ManagedEntries(groups []string) []playlist.Entry {
	want := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		want[g] = struct{}{}
	}
	var files []ChannelFile
	for _, group := range s.groups {
		if _, ok := want[group.Name]; !ok {
			continue
		}
		for _, file := range s.scopeFiles(group) {
			if file.Configured {
				files = append(files, file)
			}
		}
	}
	entries, _, _ := s.collect(files)
	return entries
}

// AggregateFiles lists the file names the store writes at the root of output_dir.
func (s *Store) AggregateFiles() []string {
	names := make([]string, 0, len(s.groups)+1)
	for _, g := range s.groups {
		names = append(names, g.File)
	}
	return append(names, s.allFile)
}

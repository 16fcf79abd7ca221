// Package merge splices the freshly generated channel entries into a copy of
// the remote master playlist.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"streamsync/internal/backup"
	"streamsync/internal/config"
	"streamsync/internal/fileutil"
	"streamsync/internal/logging"
	"streamsync/internal/playlist"
)

const maxRemoteBytes = 16 << 20

var (
	// ErrFetchFailed means the remote master could not be downloaded. No
	// local file has been touched when it is returned.
	ErrFetchFailed = errors.New("remote master fetch failed")
	// ErrBackupFailed means the local master could not be snapshotted, so
	// the merge was not written.
	ErrBackupFailed = errors.New("master backup failed")
)

// EntrySource supplies the managed entries in generation order.
type EntrySource interface {
	ManagedEntries(groups []string) []playlist.Entry
}

// Options configures an Engine.
type Options struct {
	RemoteURL     string
	LocalPath     string
	Title         string
	ManagedGroups []string
	Timeout       time.Duration
	UserAgent     string
}

// Result summarises one merge.
type Result struct {
	Path       string `json:"path"`
	BackupPath string `json:"backup_path,omitempty"`
	Removed    int    `json:"removed"`
	Foreign    int    `json:"foreign"`
	Managed    int    `json:"managed"`
	Pruned     int    `json:"pruned"`
}

// Engine runs the fetch, backup, splice and write sequence.
type Engine struct {
	opts    Options
	client  *http.Client
	source  EntrySource
	backups *backup.Store
	logger  *slog.Logger
}

// New builds an Engine. A nil client gets one bounded by opts.Timeout.
func New(opts Options, client *http.Client, source EntrySource, backups *backup.Store, logger *slog.Logger) *Engine {
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Engine{
		opts:    opts,
		client:  client,
		source:  source,
		backups: backups,
		logger:  logging.NewComponentLogger(logger, "merge"),
	}
}

// NewFromConfig wires an Engine from configuration.
func NewFromConfig(cfg *config.Config, source EntrySource, logger *slog.Logger) *Engine {
	return New(Options{
		RemoteURL:     cfg.Merge.RemoteURL,
		LocalPath:     cfg.Merge.LocalPath,
		Title:         cfg.Merge.SectionTitle,
		ManagedGroups: cfg.Merge.ManagedGroups,
		Timeout:       time.Duration(cfg.Merge.FetchTimeout) * time.Second,
		UserAgent:     cfg.Capture.UserAgent,
	}, nil, source, backup.New(cfg.Paths.BackupDir, cfg.Backup.Retention, logger), logger)
}

// LocalPath returns where the merged master is written.
func (e *Engine) LocalPath() string {
	return e.opts.LocalPath
}

// Fetch downloads the remote master playlist.
func (e *Engine) Fetch(ctx context.Context) (string, error) {
	if e.opts.RemoteURL == "" {
		return "", fmt.Errorf("%w: remote url not configured", ErrFetchFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.opts.RemoteURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if e.opts.UserAgent != "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	return string(body), nil
}

// Merge refreshes the local master playlist. The remote copy and the splice
// are held in memory; the local file is only replaced once both succeed and
// the previous version has been backed up.
func (e *Engine) Merge(ctx context.Context, now time.Time) (Result, error) {
	logger := logging.WithContext(ctx, e.logger)
	result := Result{Path: e.opts.LocalPath}

	remote, err := e.Fetch(ctx)
	if err != nil {
		return result, err
	}

	if e.backups != nil {
		path, err := e.backups.Snapshot(e.opts.LocalPath, now)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrBackupFailed, err)
		}
		result.BackupPath = path
		removed, err := e.backups.Prune(e.opts.LocalPath)
		result.Pruned = len(removed)
		if err != nil {
			logging.WarnWithContext(logger, "backup prune incomplete", "backup_prune_failed",
				logging.String("dir", e.backups.Dir()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the backup directory"),
				logging.String(logging.FieldImpact, "old backups accumulate"),
			)
		}
	}

	entries := e.source.ManagedEntries(e.opts.ManagedGroups)
	body, stripped := Splice(remote, entries, e.opts.ManagedGroups, e.opts.Title, now)
	result.Removed = stripped.Removed
	result.Foreign = stripped.Foreign
	result.Managed = len(entries)

	if err := fileutil.WriteFileAtomic(e.opts.LocalPath, []byte(body), 0o644); err != nil {
		return result, fmt.Errorf("write master playlist: %w", err)
	}
	logger.Info("master playlist merged",
		logging.String("path", e.opts.LocalPath),
		logging.Int("removed", result.Removed),
		logging.Int("foreign", result.Foreign),
		logging.Int("managed", result.Managed),
	)
	return result, nil
}

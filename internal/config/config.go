package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Channel modes.
const (
	ModeBrowser = "browser"
	ModeDirect  = "direct"
)

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	BackupDir string `toml:"backup_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
	RepoDir   string `toml:"repo_dir"`
}

// Capture contains headless browser settings used to discover manifests.
type Capture struct {
	ChromePath     string   `toml:"chrome_path"`
	Headless       bool     `toml:"headless"`
	UserAgent      string   `toml:"user_agent"`
	WindowWidth    int      `toml:"window_width"`
	WindowHeight   int      `toml:"window_height"`
	PageTimeout    int      `toml:"page_timeout"`
	WaitSeconds    int      `toml:"wait_seconds"`
	SettleSeconds  int      `toml:"settle_seconds"`
	Attempts       int      `toml:"attempts"`
	RetryDelay     int      `toml:"retry_delay"`
	PlaySelectors  []string `toml:"play_selectors"`
	PlayTexts      []string `toml:"play_texts"`
	Workers        int      `toml:"workers"`
	StaggerSeconds int      `toml:"stagger_seconds"`
	ProbeTimeout   int      `toml:"probe_timeout"`
}

// Selector contains candidate filtering and ranking keywords.
type Selector struct {
	ManifestSuffixes []string `toml:"manifest_suffixes"`
	AdKeywords       []string `toml:"ad_keywords"`
	BitrateKeywords  []string `toml:"bitrate_keywords"`
	QualityKeywords  []string `toml:"quality_keywords"`
	MaxCandidates    int      `toml:"max_candidates"`
}

// Playlist contains labels and file names for generated playlists.
type Playlist struct {
	PrimaryLabel string `toml:"primary_label"`
	BackupLabel  string `toml:"backup_label"`
	AllFile      string `toml:"all_file"`
}

// Merge contains remote master playlist settings.
type Merge struct {
	Enabled       bool     `toml:"enabled"`
	RemoteURL     string   `toml:"remote_url"`
	LocalPath     string   `toml:"local_path"`
	FetchTimeout  int      `toml:"fetch_timeout"`
	SectionTitle  string   `toml:"section_title"`
	ManagedGroups []string `toml:"managed_groups"`
}

// Backup contains master playlist snapshot retention.
type Backup struct {
	Retention int `toml:"retention"`
}

// Publish contains git synchronization settings.
type Publish struct {
	Enabled       bool     `toml:"enabled"`
	GitBinary     string   `toml:"git_binary"`
	Remote        string   `toml:"remote"`
	Branch        string   `toml:"branch"`
	Paths         []string `toml:"paths"`
	CommitMessage string   `toml:"commit_message"`
	Timeout       int      `toml:"timeout"`
	DryRun        bool     `toml:"dry_run"`
}

// Schedule contains the cycle timer.
type Schedule struct {
	IntervalMinutes int `toml:"interval_minutes"`
}

// API contains the optional status HTTP listener.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	CycleFailures   bool   `toml:"cycle_failures"`
	PublishWarnings bool   `toml:"publish_warnings"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Channel is one named live channel. Identity is (Group, Name).
type Channel struct {
	Name  string `toml:"name"`
	URL   string `toml:"url"`
	Mode  string `toml:"mode"`
	Group string `toml:"-"`
}

// Key returns the channel identity used in logs and reports.
func (c Channel) Key() string {
	return c.Group + "/" + c.Name
}

// Group is an ordered set of channels sharing a group-title.
type Group struct {
	Name     string    `toml:"name"`
	File     string    `toml:"file"`
	Mode     string    `toml:"mode"`
	Channels []Channel `toml:"channels"`
}

// Config encapsulates all configuration values for streamsync.
//
// Configuration sections by subsystem:
//   - Paths: output, backup, log, state and repository directories
//   - Capture: headless browser identity, wait windows and retries
//   - Selector: manifest suffixes and ranking keywords
//   - Playlist: entry labels and aggregate file names
//   - Merge: remote master playlist location and managed section
//   - Backup: master playlist snapshot retention
//   - Publish: git remote, branch and commit message
//   - Schedule: cycle interval
//   - API: status HTTP listener
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
//   - Groups: channel declarations in capture order
type Config struct {
	Paths         Paths         `toml:"paths"`
	Capture       Capture       `toml:"capture"`
	Selector      Selector      `toml:"selector"`
	Playlist      Playlist      `toml:"playlist"`
	Merge         Merge         `toml:"merge"`
	Backup        Backup        `toml:"backup"`
	Publish       Publish       `toml:"publish"`
	Schedule      Schedule      `toml:"schedule"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Groups        []Group       `toml:"groups"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/streamsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Parse decodes TOML data on top of the defaults and normalizes the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("streamsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.BackupDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ChannelList flattens the configured groups into capture order.
func (c *Config) ChannelList() []Channel {
	var out []Channel
	for _, group := range c.Groups {
		out = append(out, group.Channels...)
	}
	return out
}

// GroupNames returns configured group names in declaration order.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for _, group := range c.Groups {
		names = append(names, group.Name)
	}
	return names
}

// ScheduleInterval returns the delay between pipeline cycles.
func (c *Config) ScheduleInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// LockPath returns the run-level lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "streamsync.lock")
}

// UsesBrowser reports whether any channel needs the headless browser.
func (c *Config) UsesBrowser() bool {
	for _, ch := range c.ChannelList() {
		if ch.Mode == ModeBrowser {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

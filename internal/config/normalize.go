package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeSelector()
	c.normalizePlaylist()
	if err := c.normalizeMerge(); err != nil {
		return err
	}
	c.normalizePublish()
	c.normalizeGroups()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if value, ok := os.LookupEnv("STREAMSYNC_API_TOKEN"); ok {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.BackupDir, err = expandPath(c.Paths.BackupDir); err != nil {
		return fmt.Errorf("paths.backup_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RepoDir) == "" {
		// Publishing defaults to the repository that contains the output directory.
		c.Paths.RepoDir = filepath.Dir(c.Paths.OutputDir)
	}
	if c.Paths.RepoDir, err = expandPath(c.Paths.RepoDir); err != nil {
		return fmt.Errorf("paths.repo_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.ChromePath = strings.TrimSpace(c.Capture.ChromePath)
	c.Capture.UserAgent = strings.TrimSpace(c.Capture.UserAgent)
	if c.Capture.UserAgent == "" {
		c.Capture.UserAgent = defaultUserAgent
	}
	if c.Capture.WindowWidth <= 0 {
		c.Capture.WindowWidth = defaultWindowWidth
	}
	if c.Capture.WindowHeight <= 0 {
		c.Capture.WindowHeight = defaultWindowHeight
	}
	if c.Capture.PageTimeout <= 0 {
		c.Capture.PageTimeout = defaultPageTimeout
	}
	if c.Capture.WaitSeconds <= 0 {
		c.Capture.WaitSeconds = defaultWaitSeconds
	}
	if c.Capture.SettleSeconds < 0 {
		c.Capture.SettleSeconds = 0
	}
	if c.Capture.Attempts <= 0 {
		c.Capture.Attempts = defaultCaptureAttempts
	}
	if c.Capture.RetryDelay < 0 {
		c.Capture.RetryDelay = 0
	}
	if c.Capture.Workers <= 0 {
		c.Capture.Workers = 1
	}
	if c.Capture.StaggerSeconds < 0 {
		c.Capture.StaggerSeconds = 0
	}
	if c.Capture.ProbeTimeout <= 0 {
		c.Capture.ProbeTimeout = defaultProbeTimeout
	}
	c.Capture.PlaySelectors = trimList(c.Capture.PlaySelectors, false)
	c.Capture.PlayTexts = trimList(c.Capture.PlayTexts, false)
}

func (c *Config) normalizeSelector() {
	c.Selector.ManifestSuffixes = trimList(c.Selector.ManifestSuffixes, true)
	if len(c.Selector.ManifestSuffixes) == 0 {
		c.Selector.ManifestSuffixes = []string{".m3u8"}
	}
	c.Selector.AdKeywords = trimList(c.Selector.AdKeywords, true)
	c.Selector.BitrateKeywords = trimList(c.Selector.BitrateKeywords, true)
	c.Selector.QualityKeywords = trimList(c.Selector.QualityKeywords, true)
	if c.Selector.MaxCandidates < 0 {
		c.Selector.MaxCandidates = 0
	}
}

func (c *Config) normalizePlaylist() {
	c.Playlist.PrimaryLabel = strings.TrimSpace(c.Playlist.PrimaryLabel)
	if c.Playlist.PrimaryLabel == "" {
		c.Playlist.PrimaryLabel = defaultPrimaryLabel
	}
	c.Playlist.BackupLabel = strings.TrimSpace(c.Playlist.BackupLabel)
	if c.Playlist.BackupLabel == "" {
		c.Playlist.BackupLabel = defaultBackupLabel
	}
	c.Playlist.AllFile = strings.TrimSpace(c.Playlist.AllFile)
	if c.Playlist.AllFile == "" {
		c.Playlist.AllFile = defaultAllFile
	}
}

func (c *Config) normalizeMerge() error {
	if value, ok := os.LookupEnv("STREAMSYNC_REMOTE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Merge.RemoteURL = value
	}
	c.Merge.RemoteURL = strings.TrimSpace(c.Merge.RemoteURL)
	c.Merge.SectionTitle = strings.TrimSpace(c.Merge.SectionTitle)
	if c.Merge.SectionTitle == "" {
		c.Merge.SectionTitle = defaultSectionTitle
	}
	if c.Merge.FetchTimeout <= 0 {
		c.Merge.FetchTimeout = defaultFetchTimeout
	}
	c.Merge.LocalPath = strings.TrimSpace(c.Merge.LocalPath)
	if c.Merge.LocalPath == "" {
		c.Merge.LocalPath = defaultMasterPath
	}
	if !filepath.IsAbs(c.Merge.LocalPath) && !strings.HasPrefix(c.Merge.LocalPath, "~") {
		c.Merge.LocalPath = filepath.Join(c.Paths.RepoDir, c.Merge.LocalPath)
	}
	var err error
	if c.Merge.LocalPath, err = expandPath(c.Merge.LocalPath); err != nil {
		return fmt.Errorf("merge.local_path: %w", err)
	}
	c.Merge.ManagedGroups = trimList(c.Merge.ManagedGroups, false)
	return nil
}

func (c *Config) normalizePublish() {
	if value, ok := os.LookupEnv("STREAMSYNC_GIT_BRANCH"); ok && strings.TrimSpace(value) != "" {
		c.Publish.Branch = value
	}
	c.Publish.GitBinary = strings.TrimSpace(c.Publish.GitBinary)
	if c.Publish.GitBinary == "" {
		c.Publish.GitBinary = defaultGitBinary
	}
	c.Publish.Remote = strings.TrimSpace(c.Publish.Remote)
	if c.Publish.Remote == "" {
		c.Publish.Remote = defaultGitRemote
	}
	c.Publish.Branch = strings.TrimSpace(c.Publish.Branch)
	if c.Publish.Branch == "" {
		c.Publish.Branch = defaultGitBranch
	}
	c.Publish.Paths = trimList(c.Publish.Paths, false)
	if len(c.Publish.Paths) == 0 {
		c.Publish.Paths = []string{"."}
	}
	c.Publish.CommitMessage = strings.TrimSpace(c.Publish.CommitMessage)
	if c.Publish.CommitMessage == "" {
		c.Publish.CommitMessage = defaultCommitMessage
	}
	if c.Publish.Timeout <= 0 {
		c.Publish.Timeout = defaultPublishTimeout
	}
}

func (c *Config) normalizeGroups() {
	for i := range c.Groups {
		group := &c.Groups[i]
		group.Name = strings.TrimSpace(group.Name)
		group.File = strings.TrimSpace(group.File)
		if group.File == "" {
			group.File = group.Name + ".m3u"
		} else if !strings.HasSuffix(strings.ToLower(group.File), ".m3u") {
			group.File += ".m3u"
		}
		group.Mode = strings.ToLower(strings.TrimSpace(group.Mode))
		if group.Mode == "" {
			group.Mode = ModeBrowser
		}
		for j := range group.Channels {
			channel := &group.Channels[j]
			channel.Name = strings.TrimSpace(channel.Name)
			channel.URL = strings.TrimSpace(channel.URL)
			channel.Mode = strings.ToLower(strings.TrimSpace(channel.Mode))
			if channel.Mode == "" {
				channel.Mode = group.Mode
			}
			channel.Group = group.Name
		}
	}
	if len(c.Merge.ManagedGroups) == 0 {
		c.Merge.ManagedGroups = c.GroupNames()
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func trimList(values []string, lower bool) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGroups(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGroups() error {
	groups := make(map[string]struct{}, len(c.Groups))
	files := map[string]string{c.Playlist.AllFile: "playlist.all_file"}
	for i, group := range c.Groups {
		if group.Name == "" {
			return fmt.Errorf("groups[%d].name must be set", i)
		}
		if strings.ContainsAny(group.Name, `/\`) {
			return fmt.Errorf("groups[%d].name %q must not contain path separators", i, group.Name)
		}
		if _, ok := groups[group.Name]; ok {
			return fmt.Errorf("groups[%d].name %q is declared twice", i, group.Name)
		}
		groups[group.Name] = struct{}{}
		if filepath.Base(group.File) != group.File {
			return fmt.Errorf("groups[%d].file %q must be a bare file name", i, group.File)
		}
		if owner, ok := files[group.File]; ok {
			return fmt.Errorf("groups[%d].file %q collides with %s", i, group.File, owner)
		}
		files[group.File] = fmt.Sprintf("groups[%d].file", i)
		if err := validateMode(group.Mode); err != nil {
			return fmt.Errorf("groups[%d].mode: %w", i, err)
		}

		names := make(map[string]struct{}, len(group.Channels))
		for j, channel := range group.Channels {
			field := fmt.Sprintf("groups[%d].channels[%d]", i, j)
			if channel.Name == "" {
				return fmt.Errorf("%s.name must be set", field)
			}
			if _, ok := names[channel.Name]; ok {
				return fmt.Errorf("%s.name %q is declared twice in group %q", field, channel.Name, group.Name)
			}
			names[channel.Name] = struct{}{}
			if err := validateMode(channel.Mode); err != nil {
				return fmt.Errorf("%s.mode: %w", field, err)
			}
			if err := validateHTTPURL(channel.URL); err != nil {
				return fmt.Errorf("%s.url: %w", field, err)
			}
		}
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.Workers > defaultMaxWorkers {
		return fmt.Errorf("capture.workers must be between 1 and %d", defaultMaxWorkers)
	}
	if c.Capture.SettleSeconds > c.Capture.WaitSeconds {
		return errors.New("capture.settle_seconds must not exceed capture.wait_seconds")
	}
	return nil
}

func (c *Config) validateMerge() error {
	if !c.Merge.Enabled {
		return nil
	}
	if c.Merge.RemoteURL == "" {
		return errors.New("merge.remote_url must be set when merge.enabled is true (or set STREAMSYNC_REMOTE_URL)")
	}
	if err := validateHTTPURL(c.Merge.RemoteURL); err != nil {
		return fmt.Errorf("merge.remote_url: %w", err)
	}
	return nil
}

func (c *Config) validateBackup() error {
	if c.Backup.Retention < 1 {
		return errors.New("backup.retention must be at least 1")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Schedule.IntervalMinutes < 1 {
		return errors.New("schedule.interval_minutes must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

func validateMode(mode string) error {
	switch mode {
	case ModeBrowser, ModeDirect:
		return nil
	default:
		return fmt.Errorf("unsupported mode %q (want %s or %s)", mode, ModeBrowser, ModeDirect)
	}
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("must be set")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}

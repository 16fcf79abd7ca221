package testsupport

import (
	"path/filepath"
	"testing"

	"streamsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and a single browser-mode channel. Options are applied in order.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RepoDir = base
	cfgVal.Paths.OutputDir = filepath.Join(base, "m3u-files")
	cfgVal.Paths.BackupDir = filepath.Join(base, "backups")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Merge.LocalPath = filepath.Join(base, "TWTV.m3u")
	cfgVal.Groups = []config.Group{{
		Name: "台灣頻道",
		File: "taiwan.m3u",
		Channels: []config.Channel{
			{Name: "中天新聞", Group: "台灣頻道", URL: "https://example.com/ctinews", Mode: config.ModeBrowser},
		},
	}}

	builder := &configBuilder{
		cfg: &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithGroups replaces the configured groups. Channel.Group is filled in
// from the enclosing group when left empty.
func WithGroups(groups ...config.Group) ConfigOption {
	return func(b *configBuilder) {
		for i := range groups {
			for j := range groups[i].Channels {
				if groups[i].Channels[j].Group == "" {
					groups[i].Channels[j].Group = groups[i].Name
				}
			}
		}
		b.cfg.Groups = groups
	}
}

// WithAPI enables the status API on bind with an optional bearer token.
func WithAPI(bind, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Bind = bind
		b.cfg.API.Token = token
	}
}

// WithMerge enables merging from remoteURL into the temp repo master file.
func WithMerge(remoteURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Merge.Enabled = true
		b.cfg.Merge.RemoteURL = remoteURL
	}
}

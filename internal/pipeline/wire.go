package pipeline

import (
	"log/slog"
	"time"

	"streamsync/internal/capture"
	"streamsync/internal/capture/chrome"
	"streamsync/internal/catalog"
	"streamsync/internal/config"
	"streamsync/internal/deps"
	"streamsync/internal/merge"
	"streamsync/internal/notifications"
	"streamsync/internal/probe"
	"streamsync/internal/publish"
	"streamsync/internal/selector"
)

// channelCeiling allows every capture attempt its full page load, waiting
// window and retry delay, plus a minute for the write.
func channelCeiling(cfg *config.Config) time.Duration {
	c := cfg.Capture
	perAttempt := c.PageTimeout + c.WaitSeconds + c.SettleSeconds + c.RetryDelay + 10
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(perAttempt*attempts)*time.Second + time.Minute
}

// NewFromConfig wires the production pipeline. Chrome is only configured
// when at least one channel uses browser mode; merge and publish are wired
// only when enabled.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	store := catalog.NewStore(cfg, logger)
	sel := selector.New(selector.OptionsFromConfig(cfg.Selector))
	sources := map[string]Source{
		config.ModeDirect: probe.NewFromConfig(cfg, logger),
	}
	if cfg.UsesBrowser() {
		opts := chrome.OptionsFromConfig(cfg.Capture)
		if resolved := deps.ResolveChrome(opts.ExecPath); resolved.Available {
			opts.ExecPath = resolved.Command
		}
		browser := chrome.New(opts, logger)
		captureOpts := capture.OptionsFromConfig(cfg)
		captureOpts.Candidate = func(url string) bool {
			return sel.IsManifest(url) && !sel.IsAd(url)
		}
		sources[config.ModeBrowser] = capture.New(browser, captureOpts, logger)
	}

	wiring := Deps{
		Channels:       cfg.ChannelList(),
		Sources:        sources,
		Selector:       sel,
		Store:          store,
		Notifier:       notifications.NewService(cfg),
		Logger:         logger,
		Workers:        cfg.Capture.Workers,
		Stagger:        time.Duration(cfg.Capture.StaggerSeconds) * time.Second,
		ChannelTimeout: channelCeiling(cfg),
	}
	if cfg.Merge.Enabled {
		wiring.Merger = merge.NewFromConfig(cfg, store, logger)
	}
	if cfg.Publish.Enabled {
		wiring.Publisher = publish.NewFromConfig(cfg, logger)
	}
	return New(wiring)
}

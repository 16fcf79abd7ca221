package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"streamsync/internal/config"
	"streamsync/internal/logging"
	"streamsync/internal/retry"
)

var (
	// ErrBrowserLaunch means the browser could not be started. It is not retried.
	ErrBrowserLaunch = errors.New("browser launch failed")
	// ErrNoManifest means the waiting window closed without a manifest response.
	ErrNoManifest = errors.New("no manifest response observed")
)

// Session is one isolated page load with its own interception buffer.
type Session interface {
	// Load navigates to url. A page that keeps loading past its timeout
	// returns context.DeadlineExceeded while traffic keeps being recorded.
	Load(ctx context.Context, url string) error
	// Activate tries to start playback by clicking a control that matches one
	// of texts or selectors. It reports whether anything was activated.
	Activate(ctx context.Context, selectors, texts []string) (bool, error)
	// Observe returns every exchange recorded so far, in request order.
	Observe() []Exchange
	// Close releases the page and any browser resources behind it.
	Close() error
}

// Browser opens sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Options tunes the capture loop.
type Options struct {
	Wait          time.Duration
	Settle        time.Duration
	Poll          time.Duration
	Attempts      int
	RetryDelay    time.Duration
	PlaySelectors []string
	PlayTexts     []string
	// ManifestSuffixes decides which responses end the waiting window early
	// when Candidate is nil.
	ManifestSuffixes []string
	// Candidate reports whether an answered URL is a usable stream. Only
	// such a response ends the waiting window and makes an attempt succeed,
	// so an attempt that saw nothing but ad manifests is retried.
	Candidate func(url string) bool
}

// OptionsFromConfig converts the [capture] and [selector] sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Wait:             time.Duration(cfg.Capture.WaitSeconds) * time.Second,
		Settle:           time.Duration(cfg.Capture.SettleSeconds) * time.Second,
		Poll:             time.Second,
		Attempts:         cfg.Capture.Attempts,
		RetryDelay:       time.Duration(cfg.Capture.RetryDelay) * time.Second,
		PlaySelectors:    append([]string(nil), cfg.Capture.PlaySelectors...),
		PlayTexts:        append([]string(nil), cfg.Capture.PlayTexts...),
		ManifestSuffixes: append([]string(nil), cfg.Selector.ManifestSuffixes...),
	}
}

// Capturer drives browser sessions for channel pages.
type Capturer struct {
	browser Browser
	opts    Options
	logger  *slog.Logger
}

// New builds a Capturer. Zero option values fall back to 20s wait, 1s poll and one attempt.
func New(browser Browser, opts Options, logger *slog.Logger) *Capturer {
	if opts.Wait <= 0 {
		opts.Wait = 20 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = time.Second
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if len(opts.ManifestSuffixes) == 0 {
		opts.ManifestSuffixes = []string{".m3u8"}
	}
	if opts.Candidate == nil {
		opts.Candidate = suffixMatcher(opts.ManifestSuffixes)
	}
	return &Capturer{
		browser: browser,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "capture"),
	}
}

// Discover loads the channel page and returns the observed exchanges. Up to
// Attempts sessions are opened, each in a fresh browser, with RetryDelay
// between them. When every attempt misses a manifest, the exchanges of the
// last attempt are returned with an error wrapping ErrNoManifest. A manifest
// only counts when Options.Candidate accepts it.
func (c *Capturer) Discover(ctx context.Context, ch config.Channel) ([]Exchange, error) {
	logger := logging.WithContext(ctx, c.logger)
	var last []Exchange

	policy := retry.Policy{
		MaxAttempts: c.opts.Attempts,
		Delay:       c.opts.RetryDelay,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logger.Info("capture attempt failed; retrying",
				logging.Int("attempt", attempt),
				logging.Duration("retry_in", wait),
				logging.Error(err),
				logging.String(logging.FieldEventType, "capture_retry"),
			)
		},
	}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		exchanges, err := c.attempt(ctx, logger, ch.URL, attempt)
		if len(exchanges) > 0 || last == nil {
			last = exchanges
		}
		return err
	})
	if err != nil {
		return last, fmt.Errorf("capture %s: %w", ch.Key(), err)
	}
	return last, nil
}

func (c *Capturer) attempt(ctx context.Context, logger *slog.Logger, url string, attempt int) ([]Exchange, error) {
	session, err := c.browser.NewSession(ctx)
	if err != nil {
		if !errors.Is(err, ErrBrowserLaunch) {
			err = fmt.Errorf("%w: %w", ErrBrowserLaunch, err)
		}
		return nil, retry.Permanent(err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Debug("session close failed", logging.Error(cerr))
		}
	}()

	if err := session.Load(ctx, url); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return dedupe(session.Observe()), fmt.Errorf("load page: %w", err)
		}
		logger.Debug("page load timed out; continuing to observe traffic", logging.Int("attempt", attempt))
	}

	activated, err := session.Activate(ctx, c.opts.PlaySelectors, c.opts.PlayTexts)
	switch {
	case err != nil:
		logger.Debug("play control activation failed", logging.Error(err), logging.Int("attempt", attempt))
	case !activated:
		logger.Debug("no play control found", logging.Int("attempt", attempt))
	}

	exchanges, found := c.observe(ctx, session)
	if ctx.Err() != nil {
		return exchanges, ctx.Err()
	}
	if !found {
		return exchanges, ErrNoManifest
	}
	logger.Debug("manifest traffic observed",
		logging.Int("attempt", attempt),
		logging.Int("exchanges", len(exchanges)),
	)
	return exchanges, nil
}

// observe polls the session until a manifest response appears (then waits
// Settle for sibling variants) or the waiting window closes.
func (c *Capturer) observe(ctx context.Context, session Session) ([]Exchange, bool) {
	deadline := time.NewTimer(c.opts.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.Poll)
	defer ticker.Stop()

	for {
		if c.hasManifest(session.Observe()) {
			break
		}
		select {
		case <-ctx.Done():
			return dedupe(session.Observe()), false
		case <-deadline.C:
			exchanges := dedupe(session.Observe())
			return exchanges, c.hasManifest(exchanges)
		case <-ticker.C:
		}
	}

	if c.opts.Settle > 0 {
		settle := time.NewTimer(c.opts.Settle)
		select {
		case <-ctx.Done():
		case <-settle.C:
		}
		settle.Stop()
	}
	return dedupe(session.Observe()), true
}

func (c *Capturer) hasManifest(exchanges []Exchange) bool {
	for _, ex := range exchanges {
		if ex.HadResponse && c.opts.Candidate(ex.URL) {
			return true
		}
	}
	return false
}

func suffixMatcher(suffixes []string) func(string) bool {
	lowered := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		if suffix = strings.ToLower(strings.TrimSpace(suffix)); suffix != "" {
			lowered = append(lowered, suffix)
		}
	}
	return func(url string) bool {
		lower := strings.ToLower(url)
		for _, suffix := range lowered {
			if strings.Contains(lower, suffix) {
				return true
			}
		}
		return false
	}
}

// Package chrome implements capture.Browser on top of a headless Chrome
// driven through the DevTools protocol.
package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"streamsync/internal/capture"
	"streamsync/internal/config"
	"streamsync/internal/logging"
)

const activateTimeout = 5 * time.Second

// Options configures the browser process and client identity.
type Options struct {
	ExecPath     string
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	PageTimeout  time.Duration
}

// OptionsFromConfig converts the [capture] section.
func OptionsFromConfig(cfg config.Capture) Options {
	return Options{
		ExecPath:     cfg.ChromePath,
		Headless:     cfg.Headless,
		UserAgent:    cfg.UserAgent,
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
		PageTimeout:  time.Duration(cfg.PageTimeout) * time.Second,
	}
}

// Browser launches one Chrome process per session so no cookies, cache or
// service workers leak between channels or attempts.
type Browser struct {
	opts   Options
	logger *slog.Logger
}

// New returns a Browser. It does not start Chrome until NewSession is called.
func New(opts Options, logger *slog.Logger) *Browser {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	return &Browser{opts: opts, logger: logging.NewComponentLogger(logger, "chrome")}
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if b.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.opts.UserAgent))
	}
	if b.opts.WindowWidth > 0 && b.opts.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(b.opts.WindowWidth, b.opts.WindowHeight))
	}
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}
	return opts
}

// NewSession starts Chrome, opens a tab and begins recording network traffic.
func (b *Browser) NewSession(ctx context.Context) (capture.Session, error) {
	// The browser lives until Close; ctx only bounds the launch.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), b.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		b.logger.Debug(fmt.Sprintf(format, args...))
	}))

	rec := newRecorder()
	chromedp.ListenTarget(tabCtx, rec.handle)

	launched := make(chan error, 1)
	go func() { launched <- chromedp.Run(tabCtx, network.Enable()) }()
	select {
	case err := <-launched:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("%w: %w", capture.ErrBrowserLaunch, err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return nil, ctx.Err()
	}

	return &session{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		rec:         rec,
		pageTimeout: b.opts.PageTimeout,
	}, nil
}

type session struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	rec         *recorder
	pageTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

func (s *session) Load(ctx context.Context, url string) error {
	return s.run(ctx, s.pageTimeout, chromedp.Navigate(url))
}

func (s *session) Activate(ctx context.Context, selectors, texts []string) (bool, error) {
	script, err := activationScript(selectors, texts)
	if err != nil {
		return false, err
	}
	var clicked bool
	if err := s.run(ctx, activateTimeout, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

func (s *session) Observe() []capture.Exchange {
	return s.rec.snapshot()
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.tabCtx)
		s.tabCancel()
		s.allocCancel()
		if errors.Is(s.closeErr, context.Canceled) {
			s.closeErr = nil
		}
	})
	return s.closeErr
}

// activationScript clicks the first element whose text contains one of texts,
// then the first element matching one of selectors, then falls back to calling
// play() on a muted <video>.
func activationScript(selectors, texts []string) (string, error) {
	if selectors == nil {
		selectors = []string{}
	}
	if texts == nil {
		texts = []string{}
	}
	sel, err := json.Marshal(selectors)
	if err != nil {
		return "", fmt.Errorf("encode selectors: %w", err)
	}
	txt, err := json.Marshal(texts)
	if err != nil {
		return "", fmt.Errorf("encode texts: %w", err)
	}
	return fmt.Sprintf(`(function(selectors, texts) {
  const visible = (el) => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
  const nodes = document.querySelectorAll('button, a, [role=button], div, span');
  for (const el of nodes) {
    const label = ((el.innerText || '') + ' ' + (el.getAttribute('aria-label') || '')).trim();
    if (label && label.length < 40 && visible(el) && texts.some((t) => label.includes(t))) {
      el.click();
      return true;
    }
  }
  for (const sel of selectors) {
    try {
      const el = document.querySelector(sel);
      if (el && visible(el)) { el.click(); return true; }
    } catch (e) {}
  }
  const video = document.querySelector('video');
  if (video) {
    video.muted = true;
    const p = video.play && video.play();
    if (p && p.catch) { p.catch(() => {}); }
    return true;
  }
  return false;
})(%s, %s)`, sel, txt), nil
}

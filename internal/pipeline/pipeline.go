// Package pipeline runs one synchronization cycle: discover every channel,
// rewrite its playlist, rebuild the aggregates, merge into the master
// playlist and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamsync/internal/capture"
	"streamsync/internal/catalog"
	"streamsync/internal/config"
	"streamsync/internal/logging"
	"streamsync/internal/merge"
	"streamsync/internal/notifications"
	"streamsync/internal/publish"
	"streamsync/internal/selector"
)

const maxWorkers = 4

// Source discovers the manifest exchanges for a channel.
type Source interface {
	Discover(ctx context.Context, ch config.Channel) ([]capture.Exchange, error)
}

// Merger refreshes the master playlist.
type Merger interface {
	Merge(ctx context.Context, now time.Time) (merge.Result, error)
}

// Publisher pushes the playlist tree.
type Publisher interface {
	Publish(ctx context.Context, now time.Time) (publish.Result, error)
}

// Deps wires a Pipeline. Merger and Publisher are optional.
type Deps struct {
	Channels  []config.Channel
	Sources   map[string]Source
	Selector  *selector.Selector
	Store     *catalog.Store
	Merger    Merger
	Publisher Publisher
	Notifier  notifications.Service
	Logger    *slog.Logger

	Workers int
	Stagger time.Duration
	// ChannelTimeout bounds one channel once started. Shutdown does not
	// interrupt a started channel before this ceiling.
	ChannelTimeout time.Duration
	Now            func() time.Time
}

// Pipeline runs cycles. It holds no state between cycles.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Selector == nil || deps.Store == nil {
		return nil, errors.New("pipeline requires a selector and a catalog store")
	}
	if deps.Workers < 1 {
		deps.Workers = 1
	}
	if deps.Workers > maxWorkers {
		deps.Workers = maxWorkers
	}
	if deps.ChannelTimeout <= 0 {
		deps.ChannelTimeout = 5 * time.Minute
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notificationsNoop{}
	}
	return &Pipeline{deps: deps, logger: logging.NewComponentLogger(deps.Logger, "pipeline")}, nil
}

type notificationsNoop struct{}

func (notificationsNoop) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}

// Channels returns the configured channels in processing order.
func (p *Pipeline) Channels() []config.Channel {
	return p.deps.Channels
}

type discovery struct {
	candidates []selector.Candidate
	err        error
	started    bool
	duration   time.Duration
}

// RunCycle processes every channel and the downstream steps. The returned
// error is non-nil only when ctx was cancelled; step failures are recorded in
// the report and logged.
func (p *Pipeline) RunCycle(ctx context.Context) (Report, error) {
	report := Report{CycleID: uuid.NewString(), StartedAt: p.deps.Now()}
	ctx = logging.WithCycle(ctx, report.CycleID)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("cycle started",
		logging.Int("channels", len(p.deps.Channels)),
		logging.Int("workers", p.deps.Workers),
	)

	found := p.discoverAll(ctx)
	now := p.deps.Now()
	for i, ch := range p.deps.Channels {
		report.Channels = append(report.Channels, p.apply(ctx, ch, found[i], now))
	}
	report.tally()

	aggregates, err := p.deps.Store.BuildAggregates(now)
	report.Aggregates = aggregates
	if err != nil {
		logging.ErrorWithContext(logger, "aggregate build failed", "aggregate_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on output_dir"),
		)
	}

	if ctx.Err() != nil {
		report.Cancelled = true
		report.FinishedAt = p.deps.Now()
		logger.Info("cycle cancelled; merge and publish skipped",
			logging.Int("updated", report.Updated),
			logging.Int("skipped", report.Skipped),
		)
		return report, ctx.Err()
	}

	p.runMerge(ctx, logger, &report, now)
	p.runPublish(ctx, logger, &report, now)

	report.FinishedAt = p.deps.Now()
	logger.Info(fmt.Sprintf("%d channels succeeded", report.Updated),
		logging.Int("updated", report.Updated),
		logging.Int("retained", report.Retained),
		logging.Int("failed", report.Failed),
		logging.Duration("duration", report.Duration()),
	)
	p.notify(ctx, logger, notifications.EventCycleCompleted, notifications.Payload{
		"updated":         report.Updated,
		"retained":        report.Retained,
		"failed":          report.Failed,
		"failed_channels": report.FailedChannels(),
	})
	return report, nil
}

// discoverAll runs discovery on a bounded pool. Results are indexed by
// channel position so they can be applied in configuration order.
func (p *Pipeline) discoverAll(ctx context.Context) []discovery {
	channels := p.deps.Channels
	results := make([]discovery, len(channels))
	sem := make(chan struct{}, p.deps.Workers)
	var wg sync.WaitGroup

	for i, ch := range channels {
		if i > 0 && p.deps.Stagger > 0 {
			timer := time.NewTimer(p.deps.Stagger)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
			timer.Stop()
		}
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, ch config.Channel) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.discover(ctx, ch)
		}(i, ch)
	}
	wg.Wait()
	return results
}

func (p *Pipeline) discover(parent context.Context, ch config.Channel) discovery {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.deps.ChannelTimeout)
	defer cancel()
	ctx = logging.WithChannel(ctx, ch.Group, ch.Name)

	out := discovery{started: true}
	source := p.deps.Sources[ch.Mode]
	if source == nil {
		out.err = fmt.Errorf("no source for mode %q", ch.Mode)
		out.duration = time.Since(start)
		return out
	}

	exchanges, err := source.Discover(ctx, ch)
	candidates, selErr := p.deps.Selector.Select(exchanges)
	out.duration = time.Since(start)
	switch {
	case selErr == nil:
		out.candidates = candidates
		if err != nil {
			logging.WithContext(ctx, p.logger).Debug("candidates selected despite discovery error", logging.Error(err))
		}
	case err != nil:
		out.err = err
	default:
		out.err = selErr
	}
	return out
}

func (p *Pipeline) apply(ctx context.Context, ch config.Channel, found discovery, now time.Time) ChannelResult {
	logger := logging.WithContext(logging.WithChannel(ctx, ch.Group, ch.Name), p.logger)
	result := ChannelResult{
		Group:    ch.Group,
		Name:     ch.Name,
		Mode:     ch.Mode,
		Path:     p.deps.Store.ChannelPath(ch.Group, ch.Name),
		Duration: found.duration,
	}
	if !found.started {
		result.Status = StatusSkipped
		return result
	}

	if found.err == nil {
		path, err := p.deps.Store.WriteChannel(ch, found.candidates, now)
		if err == nil {
			result.Status = StatusUpdated
			result.Candidates = len(found.candidates)
			result.Primary = found.candidates[0].URL
			result.Path = path
			logger.Info("channel updated",
				logging.Int("candidates", result.Candidates),
				logging.String("primary", result.Primary),
				logging.Duration("duration", found.duration),
			)
			return result
		}
		found.err = err
	}

	result.Error = found.err.Error()
	result.Status = StatusFailed
	if _, err := os.Stat(result.Path); err == nil {
		result.Status = StatusRetained
	}
	hint := "check that the channel page still plays in a browser"
	switch {
	case errors.Is(found.err, capture.ErrBrowserLaunch):
		hint = "run streamsync doctor to verify the Chrome installation"
	case errors.Is(found.err, selector.ErrNoCandidates):
		hint = "the page loaded but no non-ad manifest was requested; review selector keywords"
	}
	impact := "previous playlist kept"
	if result.Status == StatusFailed {
		impact = "channel has no playlist yet"
	}
	logging.WarnWithContext(logger, "channel not updated", "channel_failed",
		logging.Error(found.err),
		logging.String("status", string(result.Status)),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, impact),
	)
	return result
}

func (p *Pipeline) runMerge(ctx context.Context, logger *slog.Logger, report *Report, now time.Time) {
	if p.deps.Merger == nil {
		return
	}
	res, err := p.deps.Merger.Merge(ctx, now)
	if err != nil {
		report.MergeError = err.Error()
		hint := "check merge.remote_url and network access"
		if errors.Is(err, merge.ErrBackupFailed) {
			hint = "check permissions on backup_dir"
		}
		logging.WarnWithContext(logger, "master playlist merge failed", "merge_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "master playlist left as before"),
		)
		p.notify(ctx, logger, notifications.EventMergeFailed, notifications.Payload{"error": err})
		return
	}
	report.Merge = &res
}

func (p *Pipeline) runPublish(ctx context.Context, logger *slog.Logger, report *Report, now time.Time) {
	if p.deps.Publisher == nil {
		return
	}
	res, err := p.deps.Publisher.Publish(ctx, now)
	if err != nil {
		report.PublishError = err.Error()
		hint := "check git credentials and the remote branch"
		if errors.Is(err, publish.ErrPushRejected) {
			hint = "the remote keeps moving or the rebase conflicts; resolve manually in repo_dir"
		}
		logging.WarnWithContext(logger, "publish failed", "publish_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "remote repository not updated this cycle"),
		)
		p.notify(ctx, logger, notifications.EventPublishFailed, notifications.Payload{"error": err})
		return
	}
	report.Publish = &res
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := p.deps.Notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

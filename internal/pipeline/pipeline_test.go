package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"streamsync/internal/capture"
	"streamsync/internal/catalog"
	"streamsync/internal/config"
	"streamsync/internal/logging"
	"streamsync/internal/merge"
	"streamsync/internal/notifications"
	"streamsync/internal/publish"
	"streamsync/internal/selector"
)

type stubSource struct {
	mu      sync.Mutex
	results map[string][]capture.Exchange
	errs    map[string]error
	delays  map[string]time.Duration
	calls   []string
	block   chan struct{}
}

func (s *stubSource) Discover(ctx context.Context, ch config.Channel) ([]capture.Exchange, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ch.Name)
	delay := s.delays[ch.Name]
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return s.results[ch.Name], s.errs[ch.Name]
}

type stubMerger struct {
	calls int
	err   error
}

func (m *stubMerger) Merge(context.Context, time.Time) (merge.Result, error) {
	m.calls++
	return merge.Result{Managed: 5}, m.err
}

type stubPublisher struct {
	calls int
	err   error
}

func (p *stubPublisher) Publish(context.Context, time.Time) (publish.Result, error) {
	p.calls++
	return publish.Result{Outcome: publish.OutcomePushed}, p.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		n.last = map[notifications.Event]notifications.Payload{}
	}
	n.events = append(n.events, event)
	n.last[event] = payload
	return nil
}

func testConfig(t *testing.T, names ...string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	group := config.Group{Name: "台灣頻道", File: "taiwan.m3u", Mode: config.ModeBrowser}
	for _, name := range names {
		group.Channels = append(group.Channels, config.Channel{
			Name:  name,
			Group: group.Name,
			URL:   "https://www.ofiii.com/channel/watch/" + name,
			Mode:  config.ModeBrowser,
		})
	}
	cfg.Groups = []config.Group{group}
	return &cfg
}

func manifest(name string) []capture.Exchange {
	return []capture.Exchange{
		{URL: "https://cdn.example/" + name + "/avc1_2000000=1/index.m3u8", HadResponse: true},
		{URL: "https://cdn.example/" + name + "/avc1_4000000=1/index.m3u8", HadResponse: true},
		{URL: "https://ads.example/ad/preroll.m3u8", HadResponse: true},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, src Source, deps Deps) *Pipeline {
	t.Helper()
	deps.Channels = cfg.ChannelList()
	deps.Sources = map[string]Source{config.ModeBrowser: src}
	deps.Selector = selector.New(selector.OptionsFromConfig(cfg.Selector))
	deps.Store = catalog.NewStore(cfg, logging.NewNop())
	deps.Logger = logging.NewNop()
	p, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestRunCycleRetainsFailedChannel(t *testing.T) {
	names := []string{"ch1", "ch2", "ch3", "ch4", "ch5"}
	cfg := testConfig(t, names...)
	store := catalog.NewStore(cfg, logging.NewNop())

	// ch3 has a playlist from an earlier cycle.
	prior := cfg.Groups[0].Channels[2]
	if _, err := store.WriteChannel(prior, []selector.Candidate{{URL: "https://cdn.example/old/index.m3u8"}}, time.Unix(0, 0)); err != nil {
		t.Fatal(err)
	}

	src := &stubSource{results: map[string][]capture.Exchange{}, errs: map[string]error{}}
	for _, name := range names {
		src.results[name] = manifest(name)
	}
	src.results["ch3"] = []capture.Exchange{{URL: "https://ads.example/ad/only.m3u8", HadResponse: true}}

	merger, pub, notifier := &stubMerger{}, &stubPublisher{}, &recordingNotifier{}
	p := newTestPipeline(t, cfg, src, Deps{Merger: merger, Publisher: pub, Notifier: notifier})

	report, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Updated != 4 || report.Retained != 1 || report.Failed != 0 {
		t.Fatalf("unexpected tallies %+v", report)
	}
	if report.Channels[2].Status != StatusRetained || !strings.Contains(report.Channels[2].Error, "no manifest candidates") {
		t.Fatalf("unexpected ch3 result %+v", report.Channels[2])
	}
	if !strings.Contains(report.Channels[0].Primary, "avc1_4000000") || report.Channels[0].Candidates != 2 {
		t.Fatalf("highest bitrate should be primary: %+v", report.Channels[0])
	}

	back, err := store.ReadChannel("台灣頻道", "ch3")
	if err != nil || back.Entries[0].URL != "https://cdn.example/old/index.m3u8" {
		t.Fatalf("retained file changed: %+v err=%v", back, err)
	}

	var group catalog.AggregateResult
	for _, agg := range report.Aggregates {
		if agg.Scope == "台灣頻道" {
			group = agg
		}
	}
	if group.Files != 5 || group.Entries != 9 {
		t.Fatalf("aggregate should include all five files: %+v", group)
	}
	if merger.calls != 1 || pub.calls != 1 || report.Merge == nil || report.Publish == nil {
		t.Fatalf("downstream steps not run: merge=%d publish=%d", merger.calls, pub.calls)
	}
	payload := notifier.last[notifications.EventCycleCompleted]
	if payload["retained"] != 1 || len(report.FailedChannels()) != 1 {
		t.Fatalf("unexpected cycle payload %+v", payload)
	}
}

func TestRunCycleMarksMissingAsFailed(t *testing.T) {
	cfg := testConfig(t, "ch1", "ch2")
	src := &stubSource{
		results: map[string][]capture.Exchange{"ch1": manifest("ch1")},
		errs:    map[string]error{"ch2": fmt.Errorf("capture: %w", capture.ErrBrowserLaunch)},
	}
	p := newTestPipeline(t, cfg, src, Deps{})
	report, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Updated != 1 || report.Failed != 1 {
		t.Fatalf("unexpected tallies %+v", report)
	}
	if report.Channels[1].Status != StatusFailed {
		t.Fatalf("channel without prior file should fail: %+v", report.Channels[1])
	}
	if report.Merge != nil || report.Publish != nil {
		t.Fatal("disabled steps should not report")
	}
}

func TestRunCycleAppliesInConfigOrder(t *testing.T) {
	names := []string{"slow", "medium", "fast"}
	cfg := testConfig(t, names...)
	src := &stubSource{
		results: map[string][]capture.Exchange{},
		delays:  map[string]time.Duration{"slow": 60 * time.Millisecond, "medium": 30 * time.Millisecond},
	}
	for _, name := range names {
		src.results[name] = manifest(name)
	}
	p := newTestPipeline(t, cfg, src, Deps{Workers: 3})
	report, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range names {
		if report.Channels[i].Name != name {
			t.Fatalf("report out of config order: %+v", report.Channels)
		}
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.OutputDir, "taiwan.m3u"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !(strings.Index(text, "/slow/") < strings.Index(text, "/medium/") && strings.Index(text, "/medium/") < strings.Index(text, "/fast/")) {
		t.Fatalf("aggregate out of config order:\n%s", text)
	}
}

func TestRunCycleCancelledSkipsRemaining(t *testing.T) {
	cfg := testConfig(t, "ch1", "ch2", "ch3")
	src := &stubSource{results: map[string][]capture.Exchange{"ch1": manifest("ch1")}, block: make(chan struct{})}
	merger := &stubMerger{}
	p := newTestPipeline(t, cfg, src, Deps{Merger: merger})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var report Report
	var runErr error
	go func() {
		defer close(done)
		report, runErr = p.RunCycle(ctx)
	}()

	// Wait for ch1 to start, then cancel; the in-flight channel still completes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		src.mu.Lock()
		started := len(src.calls)
		src.mu.Unlock()
		if started == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first channel never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	close(src.block)
	<-done

	if !errors.Is(runErr, context.Canceled) || !report.Cancelled {
		t.Fatalf("expected cancelled report, got err=%v report=%+v", runErr, report)
	}
	if report.Channels[0].Status != StatusUpdated || report.Skipped != 2 {
		t.Fatalf("unexpected statuses %+v", report.Channels)
	}
	if merger.calls != 0 {
		t.Fatal("merge must not run after cancellation")
	}
}

func TestMergeAndPublishFailuresNotify(t *testing.T) {
	cfg := testConfig(t, "ch1")
	src := &stubSource{results: map[string][]capture.Exchange{"ch1": manifest("ch1")}}
	notifier := &recordingNotifier{}
	p := newTestPipeline(t, cfg, src, Deps{
		Merger:    &stubMerger{err: fmt.Errorf("%w: HTTP 502", merge.ErrFetchFailed)},
		Publisher: &stubPublisher{err: publish.ErrPushRejected},
		Notifier:  notifier,
	})
	report, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.MergeError == "" || report.PublishError == "" {
		t.Fatalf("errors not recorded: %+v", report)
	}
	want := []notifications.Event{notifications.EventMergeFailed, notifications.EventPublishFailed, notifications.EventCycleCompleted}
	if fmt.Sprint(notifier.events) != fmt.Sprint(want) {
		t.Fatalf("unexpected events %v", notifier.events)
	}
}

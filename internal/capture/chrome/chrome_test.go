package chrome

import (
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"streamsync/internal/config"
)

func TestRecorderTracksResponses(t *testing.T) {
	rec := newRecorder()
	rec.handle(&network.EventRequestWillBeSent{RequestID: "1", Request: &network.Request{URL: "https://cdn/master.m3u8"}})
	rec.handle(&network.EventRequestWillBeSent{RequestID: "2", Request: &network.Request{URL: "https://cdn/pending.m3u8"}})
	rec.handle(&network.EventResponseReceived{RequestID: "1", Response: &network.Response{URL: "https://cdn/master.m3u8", Status: 200}})
	rec.handle(&network.EventRequestWillBeSent{RequestID: "3", Request: &network.Request{URL: "https://short/r"}})
	rec.handle(&network.EventRequestWillBeSent{
		RequestID:        "3",
		Request:          &network.Request{URL: "https://cdn/redirected.m3u8"},
		RedirectResponse: &network.Response{URL: "https://short/r", Status: 302},
	})
	rec.handle(&network.EventResponseReceived{RequestID: "3", Response: &network.Response{URL: "https://cdn/redirected.m3u8", Status: 200}})
	rec.handle("unrelated event")

	got := rec.snapshot()
	want := map[string]bool{
		"https://cdn/master.m3u8":     true,
		"https://cdn/pending.m3u8":    false,
		"https://short/r":             true,
		"https://cdn/redirected.m3u8": true,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected exchanges %+v", got)
	}
	for _, ex := range got {
		if want[ex.URL] != ex.HadResponse {
			t.Fatalf("%s HadResponse=%v, want %v", ex.URL, ex.HadResponse, want[ex.URL])
		}
	}
	if got[0].URL != "https://cdn/master.m3u8" {
		t.Fatalf("expected request order preserved, got %+v", got)
	}
}

func TestActivationScriptEmbedsLists(t *testing.T) {
	script, err := activationScript([]string{".vjs-big-play-button"}, []string{"播放", `say "hi"`})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(script, `[".vjs-big-play-button"]`) {
		t.Fatalf("selectors not embedded: %s", script)
	}
	if !strings.Contains(script, `["播放","say \"hi\""]`) {
		t.Fatalf("texts not JSON encoded: %s", script)
	}
	empty, err := activationScript(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(empty, "})([], [])") {
		t.Fatalf("nil lists should encode as empty arrays: %s", empty)
	}
}

func TestAllocatorOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Capture
	cfg.ChromePath = "/usr/bin/chromium"
	opts := OptionsFromConfig(cfg)
	if opts.PageTimeout != 30*time.Second || !opts.Headless || opts.ExecPath != "/usr/bin/chromium" {
		t.Fatalf("unexpected options %+v", opts)
	}
	b := New(opts, nil)
	if got := len(b.allocatorOptions()); got <= 8 {
		t.Fatalf("expected identity flags appended, got %d options", got)
	}
}

package chrome

import (
	"sync"

	"github.com/chromedp/cdproto/network"

	"streamsync/internal/capture"
)

// recorder accumulates request/response events for one tab.
type recorder struct {
	mu        sync.Mutex
	exchanges []capture.Exchange
	byURL     map[string]int
	byRequest map[network.RequestID]string
}

func newRecorder() *recorder {
	return &recorder{
		byURL:     make(map[string]int),
		byRequest: make(map[network.RequestID]string),
	}
}

func (r *recorder) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		// A redirect reuses the request id; the previous hop got a response.
		if e.RedirectResponse != nil {
			if prev, ok := r.byRequest[e.RequestID]; ok {
				r.markLocked(prev)
			}
		}
		r.byRequest[e.RequestID] = e.Request.URL
		r.addLocked(e.Request.URL)
	case *network.EventResponseReceived:
		r.mu.Lock()
		defer r.mu.Unlock()
		if url, ok := r.byRequest[e.RequestID]; ok {
			r.markLocked(url)
		}
		if e.Response != nil && e.Response.URL != "" {
			r.addLocked(e.Response.URL)
			r.markLocked(e.Response.URL)
		}
	}
}

func (r *recorder) addLocked(url string) {
	if url == "" {
		return
	}
	if _, ok := r.byURL[url]; ok {
		return
	}
	r.byURL[url] = len(r.exchanges)
	r.exchanges = append(r.exchanges, capture.Exchange{URL: url})
}

func (r *recorder) markLocked(url string) {
	if idx, ok := r.byURL[url]; ok {
		r.exchanges[idx].HadResponse = true
	}
}

func (r *recorder) snapshot() []capture.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture.Exchange(nil), r.exchanges...)
}

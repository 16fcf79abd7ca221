package pipeline

import (
	"time"

	"streamsync/internal/catalog"
	"streamsync/internal/merge"
	"streamsync/internal/publish"
)

// Status is the per-channel outcome of a cycle.
type Status string

const (
	// StatusUpdated means fresh candidates were written.
	StatusUpdated Status = "updated"
	// StatusRetained means discovery failed and the previous file was kept.
	StatusRetained Status = "retained"
	// StatusFailed means discovery or the write failed and no usable file exists.
	StatusFailed Status = "failed"
	// StatusSkipped means the cycle was cancelled before the channel started.
	StatusSkipped Status = "skipped"
)

// ChannelResult reports one channel.
type ChannelResult struct {
	Group      string        `json:"group"`
	Name       string        `json:"name"`
	Mode       string        `json:"mode"`
	Status     Status        `json:"status"`
	Candidates int           `json:"candidates"`
	Primary    string        `json:"primary,omitempty"`
	Path       string        `json:"path,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Key returns "group/name".
func (r ChannelResult) Key() string {
	return r.Group + "/" + r.Name
}

// Report summarises one cycle.
type Report struct {
	CycleID      string                    `json:"cycle_id"`
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   time.Time                 `json:"finished_at"`
	Channels     []ChannelResult           `json:"channels"`
	Updated      int                       `json:"updated"`
	Retained     int                       `json:"retained"`
	Failed       int                       `json:"failed"`
	Skipped      int                       `json:"skipped"`
	Aggregates   []catalog.AggregateResult `json:"aggregates,omitempty"`
	Merge        *merge.Result             `json:"merge,omitempty"`
	MergeError   string                    `json:"merge_error,omitempty"`
	Publish      *publish.Result           `json:"publish,omitempty"`
	PublishError string                    `json:"publish_error,omitempty"`
	Cancelled    bool                      `json:"cancelled,omitempty"`
}

// Duration is the wall time of the cycle.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedChannels lists the keys of channels that did not update.
func (r Report) FailedChannels() []string {
	var keys []string
	for _, ch := range r.Channels {
		if ch.Status == StatusRetained || ch.Status == StatusFailed {
			keys = append(keys, ch.Key())
		}
	}
	return keys
}

func (r *Report) tally() {
	r.Updated, r.Retained, r.Failed, r.Skipped = 0, 0, 0, 0
	for _, ch := range r.Channels {
		switch ch.Status {
		case StatusUpdated:
			r.Updated++
		case StatusRetained:
			r.Retained++
		case StatusFailed:
			r.Failed++
		case StatusSkipped:
			r.Skipped++
		}
	}
}

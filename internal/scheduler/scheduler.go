// Package scheduler drives pipeline cycles: one immediately at start, then
// one per interval until the context is cancelled. Cycles never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"streamsync/internal/logging"
	"streamsync/internal/notifications"
	"streamsync/internal/pipeline"
)

// Runner executes one cycle.
type Runner interface {
	RunCycle(ctx context.Context) (pipeline.Report, error)
}

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Status is a point-in-time snapshot.
type Status struct {
	State        State            `json:"state"`
	Interval     time.Duration    `json:"interval"`
	Cycles       int              `json:"cycles"`
	SkippedTicks int              `json:"skipped_ticks"`
	Pending      bool             `json:"pending"`
	LastStarted  time.Time        `json:"last_started,omitempty"`
	LastFinished time.Time        `json:"last_finished,omitempty"`
	NextRun      time.Time        `json:"next_run,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	LastReport   *pipeline.Report `json:"last_report,omitempty"`
}

type outcome struct {
	report pipeline.Report
	err    error
}

// Scheduler runs cycles on a timer.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	notifier notifications.Service
	logger   *slog.Logger
	trigger  chan struct{}

	mu     sync.Mutex
	status Status
}

// New returns a Scheduler. Intervals below one second are raised to one
// second. notifier may be nil.
func New(runner Runner, interval time.Duration, notifier notifications.Service, logger *slog.Logger) *Scheduler {
	if interval < time.Second {
		interval = time.Second
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		trigger:  make(chan struct{}, 1),
		status:   Status{State: StateIdle, Interval: interval},
	}
}

// Trigger requests an immediate cycle. Requests made while one is already
// pending are coalesced; the return value reports whether this call queued one.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		s.update(func(st *Status) { st.Pending = true })
		return true
	default:
		return false
	}
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

// Run blocks until ctx is cancelled. The first cycle starts immediately. On
// cancellation the in-flight cycle is allowed to wind down before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	done := make(chan outcome, 1)
	running := false
	queued := false
	start := func(reason string) {
		running = true
		now := time.Now()
		s.update(func(st *Status) {
			st.State = StateRunning
			st.LastStarted = now
			st.Pending = queued
		})
		s.logger.Info("cycle starting", logging.String("reason", reason))
		go func() { done <- s.runSafely(ctx) }()
	}

	s.logger.Info("scheduler started", logging.Duration("interval", s.interval))
	start("startup")
	for {
		select {
		case <-ctx.Done():
			if running {
				s.logger.Info("waiting for in-flight cycle to finish")
				s.finish(<-done)
			}
			s.update(func(st *Status) {
				st.State = StateStopped
				st.NextRun = time.Time{}
				st.Pending = false
			})
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if running {
				s.update(func(st *Status) { st.SkippedTicks++ })
				s.logger.Info("tick skipped; previous cycle still running",
					logging.String(logging.FieldEventType, "tick_skipped"))
				continue
			}
			start("interval")
		case <-s.trigger:
			if running {
				queued = true
				s.update(func(st *Status) { st.Pending = true })
				continue
			}
			start("manual")
		case res := <-done:
			running = false
			s.finish(res)
			s.update(func(st *Status) {
				st.State = StateIdle
				st.NextRun = time.Now().Add(s.interval)
			})
			if queued && ctx.Err() == nil {
				queued = false
				s.drainTrigger()
				start("manual")
			}
		}
	}
}

// drainTrigger discards a buffered trigger that arrived while a run was
// already queued; the queued run covers it.
func (s *Scheduler) drainTrigger() {
	select {
	case <-s.trigger:
	default:
	}
}

func (s *Scheduler) finish(res outcome) {
	report := res.report
	s.update(func(st *Status) {
		st.Cycles++
		st.LastFinished = time.Now()
		st.LastReport = &report
		st.LastError = ""
		if res.err != nil {
			st.LastError = res.err.Error()
		}
	})
}

// runSafely converts a panic inside a cycle into an error so the next tick
// still runs.
func (s *Scheduler) runSafely(ctx context.Context) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("cycle panic: %v", r)
			logging.ErrorWithContext(s.logger, "cycle panicked", "cycle_panic",
				logging.Error(err),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this with the stack trace"),
			)
			out = outcome{err: err}
			if s.notifier != nil {
				_ = s.notifier.Publish(context.WithoutCancel(ctx), notifications.EventError, notifications.Payload{
					"context": "scheduled cycle",
					"error":   err,
				})
			}
		}
	}()
	report, err := s.runner.RunCycle(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("cycle returned error", logging.Error(err))
	}
	return outcome{report: report, err: err}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"streamsync/internal/catalog"
	"streamsync/internal/config"
	"streamsync/internal/logging"
	"streamsync/internal/notifications"
	"streamsync/internal/scheduler"
)

// ErrLocked is returned when another process holds the run lock.
var ErrLocked = errors.New("another streamsync instance is already running")

// AcquireLock takes the run lock at path without blocking.
func AcquireLock(path string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}

// Daemon runs the scheduler under the run lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	scheduler *scheduler.Scheduler
	store     *catalog.Store
	notifier  notifications.Service
	logPath   string
	lockPath  string

	lock *flock.Flock
	api  *apiServer

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                  `json:"running"`
	PID          int                   `json:"pid"`
	StartedAt    time.Time             `json:"started_at,omitempty"`
	LockFilePath string                `json:"lock_file"`
	LogPath      string                `json:"log_path,omitempty"`
	Scheduler    scheduler.Status      `json:"scheduler"`
	Channels     []catalog.ChannelFile `json:"channels"`
}

// New constructs a daemon. logPath may be empty.
func New(cfg *config.Config, sched *scheduler.Scheduler, store *catalog.Store, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil || sched == nil || store == nil {
		return nil, errors.New("daemon requires config, scheduler, and catalog store")
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		scheduler: sched,
		store:     store,
		notifier:  notifications.NewService(cfg),
		logPath:   logPath,
		lockPath:  cfg.LockPath(),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the run lock, starts the scheduler and the status API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	lock, err := AcquireLock(d.lockPath)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = lock.Unlock()
		return err
	}

	d.lock = lock
	d.cancel = cancel
	d.done = make(chan struct{})
	d.startedAt = time.Now()
	d.running.Store(true)
	go func() {
		defer close(d.done)
		_ = d.scheduler.Run(runCtx)
	}()

	d.logger.Info("streamsync daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("interval", d.scheduler.Status().Interval),
		logging.Int("channels", len(d.cfg.ChannelList())),
	)
	return nil
}

// Done is closed once the scheduler has returned. It is nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Stop cancels the scheduler, waits for the in-flight cycle and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	<-d.done
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("streamsync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// TriggerSync queues an immediate cycle.
func (d *Daemon) TriggerSync() bool {
	queued := d.scheduler.Trigger()
	d.logger.Info("manual sync requested", logging.Bool("queued", queued))
	return queued
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.startedAt,
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Scheduler:    d.scheduler.Status(),
		Channels:     d.store.Inventory(),
	}
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

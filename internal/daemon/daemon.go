package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"episodegen/internal/api"
	"episodegen/internal/config"
	"episodegen/internal/executor"
	"episodegen/internal/logging"
	"episodegen/internal/metrics"
	"episodegen/internal/notifications"
	"episodegen/internal/pipeline"
	"episodegen/internal/stage"
	"episodegen/internal/store"
)

const shutdownTimeout = 15 * time.Second

// Daemon owns the pipeline lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	pipeline *pipeline.Controller
	executor *executor.Local
	metrics  *metrics.Pipeline
	notifier notifications.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	loops   *errgroup.Group
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	RunsInFlight int
	EpisodeStats map[store.Status]int
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	st *store.Store,
	ctrl *pipeline.Controller,
	exec *executor.Local,
	m *metrics.Pipeline,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || st == nil || ctrl == nil || exec == nil {
		return nil, errors.New("daemon requires config, store, pipeline, and executor")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		pipeline: ctrl,
		executor: exec,
		metrics:  m,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, relaunches live runs, and begins serving.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another episodegen daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	if d.cfg.Pipeline.ResumeOnStart {
		resumed, err := d.pipeline.Resume(runCtx)
		if err != nil {
			logging.WarnWithContext(d.logger, "resume of live runs failed", "resume_failed",
				logging.String(logging.FieldErrorHint, "check database access"),
				logging.String(logging.FieldImpact, "episodes left active by a previous process stay active"),
				logging.Error(err),
			)
		} else if resumed > 0 {
			d.logger.Info("resumed live runs",
				logging.String(logging.FieldEventType, "runs_resumed"),
				logging.Int("count", resumed),
			)
		}
	}

	d.loops = &errgroup.Group{}
	if interval := d.cfg.HeartbeatInterval(); interval > 0 {
		d.loops.Go(func() error { return d.reclaimLoop(runCtx, interval) })
	}

	d.running.Store(true)
	d.logger.Info("episodegen daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
	)
	if unready := stage.Summarize(d.pipeline.HealthCheck(runCtx)); unready != "" {
		logging.WarnWithContext(d.logger, "stages not ready", "stage_unready",
			logging.String("stages", unready),
			logging.String(logging.FieldErrorHint, "run `episodegen store health` and check ffmpeg and API keys"),
			logging.String(logging.FieldImpact, "episodes will fail at the unready stage"),
		)
	}
	return nil
}

// reclaimLoop fails stale active runs every interval until ctx ends.
func (d *Daemon) reclaimLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.pipeline.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
				d.logger.Warn("stale run reclaim failed", logging.Error(err))
			}
		}
	}
}

// Stop cancels in-flight runs, stops serving, and releases the daemon lock.
// Cancelled runs stay active in the store and are resumed on the next start.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.loops != nil {
		_ = d.loops.Wait()
		d.loops = nil
	}
	d.api.stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.executor.Shutdown(ctx); err != nil {
		d.logger.Warn("runs did not stop before timeout", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("episodegen daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Address returns the API listener address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Debug("episode stats unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		RunsInFlight: d.executor.Running(),
		EpisodeStats: stats,
	}
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (api.DatabaseHealth, error) {
	health, err := d.store.CheckHealth(ctx)
	return api.FromDatabaseHealth(health), err
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, notifications.Notice{}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

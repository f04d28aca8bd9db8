package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
	"github.com/formemu/aditim-monitor-sub000/internal/scheduler"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

// Daemon owns the scheduler, the change hub, and the HTTP server, and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	hub      *broadcast.Hub
	sched    *scheduler.Service
	commands *api.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	DatabasePath string
	LockPath     string
	APIAddress   string
	Subscribers  int
	Sequence     uint64
}

// New constructs a daemon around an open store and hub.
func New(cfg *config.Config, st *store.Store, hub *broadcast.Hub, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || hub == nil {
		return nil, errors.New("daemon requires config, store, and broadcast hub")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	sched := scheduler.New(st, hub, logger)
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		hub:      hub,
		sched:    sched,
		commands: api.NewService(sched),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, repairs the queue if needed, and starts
// the HTTP server.
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
		return errors.New("another aditim daemon instance is already running")
	}

	check, err := d.sched.CheckQueue(ctx, true)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reconcile queue: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("aditim daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.Int("queue_size", check.Report.Size),
		logging.Bool("queue_repaired", check.Repaired),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts down the HTTP server, disconnects viewers, and releases the lock.
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
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
		)
	}
	d.running.Store(false)
	d.logger.Info("aditim daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the hub. The store is owned by the caller.
func (d *Daemon) Close() error {
	d.Stop()
	d.hub.Close()
	return nil
}

// Commands exposes the command surface served by the daemon.
func (d *Daemon) Commands() api.Commands {
	return d.commands
}

// Hub returns the change hub.
func (d *Daemon) Hub() *broadcast.Hub {
	return d.hub
}

// APIAddress returns the bound HTTP address, or "" before Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	d.mu.Lock()
	started := d.startedAt
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    started,
		DatabasePath: d.store.Path(),
		LockPath:     d.lockPath,
		APIAddress:   d.api.address(),
		Subscribers:  d.hub.Count(),
		Sequence:     d.hub.LastSequence(),
	}
}

// DaemonStatus combines the runtime status with task statistics.
func (d *Daemon) DaemonStatus(ctx context.Context) (api.DaemonStatus, error) {
	status := d.Status(ctx)
	stats, err := d.commands.Stats(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	out := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockPath:     status.LockPath,
		APIAddress:   status.APIAddress,
		Subscribers:  status.Subscribers,
		Sequence:     status.Sequence,
		Stats:        *stats,
	}
	if !status.StartedAt.IsZero() {
		out.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	return out, nil
}

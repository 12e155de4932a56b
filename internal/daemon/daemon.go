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

	"radarflow/internal/config"
	"radarflow/internal/logging"
	"radarflow/internal/state"
	"radarflow/internal/workflow"
)

const snapshotInterval = 5 * time.Second

// Daemon coordinates the pipeline daemons and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *state.Store
	workflow *workflow.Manager

	lockPath   string
	statusPath string
	lock       *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	Daemons      []workflow.DaemonStatus
	Counts       state.Counts
	StateDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *state.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		workflow:   wf,
		lockPath:   lockPath,
		statusPath: cfg.StatusPath(),
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workflow manager. The run
// keeps ctx's values but not its cancellation: only Stop ends it, so in-flight
// cycles get workflow.shutdown_timeout to finish after a signal.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another radarflow daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)

	d.wg.Add(1)
	go d.snapshotLoop(runCtx)

	d.logger.Info("radarflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("state_db", d.store.Path()),
	)
	return nil
}

// Wait blocks until the workflow lanes exit.
func (d *Daemon) Wait() {
	d.workflow.Wait()
}

// Stop stops the workflow and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.running.Store(false)
	d.writeSnapshot(context.Background())

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
			logging.String(logging.FieldImpact, "next start may report a running instance"),
		)
	}
	d.logger.Info("radarflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Manager exposes the workflow manager for restarts.
func (d *Daemon) Manager() *workflow.Manager { return d.workflow }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.startedAt,
		Daemons:      d.workflow.Status(),
		StateDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	counts, err := d.store.Counts(ctx)
	if err != nil {
		d.logger.Debug("status counts unavailable", logging.Error(err))
	} else {
		st.Counts = counts
	}
	return st
}

func (d *Daemon) snapshotLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	d.writeSnapshot(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.writeSnapshot(ctx)
		}
	}
}

func (d *Daemon) writeSnapshot(ctx context.Context) {
	if err := WriteSnapshot(d.statusPath, d.Status(ctx)); err != nil {
		d.logger.Debug("status snapshot write failed", logging.Error(err))
	}
}

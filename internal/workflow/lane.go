package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"radarflow/internal/logging"
	"radarflow/internal/metrics"
	"radarflow/internal/services"
)

// Daemon is one pipeline stage driven by a lane.
type Daemon interface {
	Name() string
	PollInterval() time.Duration
	RunCycle(ctx context.Context) error
}

// StatsProvider is implemented by daemons that expose cumulative counters.
type StatsProvider interface {
	StatsSnapshot() any
}

type lane struct {
	daemon       Daemon
	logger       *slog.Logger
	metrics      *metrics.Metrics
	errorBackoff time.Duration

	stop   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cycles    int64
	lastCycle time.Time
	lastErr   error
}

func newLane(d Daemon, logger *slog.Logger, m *metrics.Metrics, errorBackoff time.Duration) *lane {
	return &lane{
		daemon:       d,
		logger:       logging.NewComponentLogger(logger, "lane").With(logging.String(logging.FieldDaemon, d.Name())),
		metrics:      m,
		errorBackoff: errorBackoff,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (l *lane) start(parent context.Context) {
	ctx, cancel := context.WithCancel(services.WithDaemon(parent, l.daemon.Name()))
	l.cancel = cancel
	go l.run(ctx)
}

func (l *lane) run(ctx context.Context) {
	defer close(l.done)
	l.logger.Info("daemon started", logging.Duration("poll_interval", l.daemon.PollInterval()))
	defer l.logger.Info("daemon stopped")

	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		err := l.cycle(ctx)
		wait := l.daemon.PollInterval()
		if err != nil && ctx.Err() == nil {
			wait = l.errorBackoff
		}

		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (l *lane) cycle(ctx context.Context) (err error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, l.logger)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			logger.Debug("cycle panic stack", logging.String("stack", string(debug.Stack())))
		}
		elapsed := time.Since(started)
		l.metrics.ObserveCycle(l.daemon.Name(), elapsed, err)
		l.record(err)
		if err != nil && ctx.Err() == nil {
			logging.ErrorWithContext(logger, "daemon cycle failed", "cycle_failed",
				logging.Error(err),
				logging.String("error_kind", services.ErrorKind(err)),
				logging.Duration("retry_in", l.errorBackoff),
				logging.String(logging.FieldErrorHint, "check state store access and collaborator availability"),
			)
		}
	}()

	logger.Debug("cycle started")
	return l.daemon.RunCycle(ctx)
}

func (l *lane) record(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cycles++
	l.lastCycle = time.Now()
	l.lastErr = err
}

// shutdown asks the lane to finish its current cycle. If it has not exited
// within timeout the cycle context is cancelled.
func (l *lane) shutdown(timeout time.Duration) {
	close(l.stop)
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-l.done:
			l.cancel()
			return
		case <-timer.C:
			logging.WarnWithContext(l.logger, "daemon did not stop in time; cancelling cycle", "shutdown_timeout",
				logging.Duration("timeout", timeout),
				logging.String(logging.FieldErrorHint, "raise workflow.shutdown_timeout if cycles are long"),
				logging.String(logging.FieldImpact, "in-flight items are left for lease reclaim"),
			)
		}
	}
	l.cancel()
	<-l.done
}

func (l *lane) running() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

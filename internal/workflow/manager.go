package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/logging"
	"radarflow/internal/metrics"
)

// Daemon kinds, in start order.
const (
	KindDownload   = "download"
	KindProcessing = "processing"
	KindProducts   = "products"
)

var kindOrder = []string{KindDownload, KindProcessing, KindProducts}

// Factory builds a daemon from the current configuration. It is called on
// start and again on every restart of that daemon.
type Factory func(cfg *config.Config) (Daemon, error)

// Factories supplies a builder per daemon kind. A nil factory disables the kind.
type Factories struct {
	Download   Factory
	Processing Factory
	Products   Factory
}

func (f Factories) forKind(kind string) Factory {
	switch kind {
	case KindDownload:
		return f.Download
	case KindProcessing:
		return f.Processing
	case KindProducts:
		return f.Products
	}
	return nil
}

// Manager composes the pipeline daemons.
type Manager struct {
	factories    Factories
	logger       *slog.Logger
	metrics      *metrics.Metrics
	errorBackoff time.Duration

	restartMu sync.Mutex

	mu      sync.Mutex
	cfg     config.Config
	ctx     context.Context
	running bool
	lanes   map[string]*lane
	stopped map[string]*lane
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMetrics records cycle durations and errors on m.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithErrorBackoff overrides workflow.error_retry_interval.
func WithErrorBackoff(d time.Duration) ManagerOption {
	return func(mgr *Manager) {
		if d > 0 {
			mgr.errorBackoff = d
		}
	}
}

// NewManager constructs a manager. The configuration is copied; restarts
// apply overrides to the copy.
func NewManager(cfg *config.Config, factories Factories, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		factories:    factories,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		errorBackoff: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		cfg:          *cfg,
		lanes:        make(map[string]*lane),
		stopped:      make(map[string]*lane),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches every enabled daemon. It returns once the lanes are running;
// use Wait to block until they exit.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}

	started := make([]*lane, 0, len(kindOrder))
	for _, kind := range kindOrder {
		if !m.enabled(kind) {
			continue
		}
		l, err := m.buildLane(kind)
		if err != nil {
			for _, s := range started {
				s.shutdown(0)
			}
			m.lanes = make(map[string]*lane)
			return err
		}
		l.start(ctx)
		m.lanes[kind] = l
		started = append(started, l)
	}
	if len(started) == 0 {
		return errors.New("no daemons enabled")
	}
	m.ctx = ctx
	m.running = true
	m.logger.Info("workflow started", logging.Int("daemons", len(started)))
	return nil
}

// Wait blocks until every lane has exited.
func (m *Manager) Wait() {
	for {
		m.mu.Lock()
		var pending *lane
		for _, kind := range kindOrder {
			if l := m.lanes[kind]; l != nil && l.running() {
				pending = l
				break
			}
		}
		m.mu.Unlock()
		if pending == nil {
			return
		}
		<-pending.done
	}
}

// Stop signals every lane and waits for it, cancelling cycles that outlive
// workflow.shutdown_timeout.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	lanes := make([]*lane, 0, len(m.lanes))
	for _, kind := range kindOrder {
		if l := m.lanes[kind]; l != nil {
			lanes = append(lanes, l)
			m.stopped[kind] = l
		}
	}
	m.lanes = make(map[string]*lane)
	timeout := time.Duration(m.cfg.Workflow.ShutdownTimeout) * time.Second
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, l := range lanes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.shutdown(timeout)
		}()
	}
	wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) enabled(kind string) bool {
	if m.factories.forKind(kind) == nil {
		return false
	}
	switch kind {
	case KindDownload:
		return m.cfg.Download.Enabled
	case KindProcessing:
		return m.cfg.Processing.Enabled
	case KindProducts:
		return m.cfg.Products.Enabled
	}
	return false
}

func (m *Manager) buildLane(kind string) (*lane, error) {
	cfg := m.cfg
	d, err := m.factories.forKind(kind)(&cfg)
	if err != nil {
		return nil, fmt.Errorf("build %s daemon: %w", kind, err)
	}
	return newLane(d, m.logger, m.metrics, m.errorBackoff), nil
}

package workflow

import (
	"context"
	"fmt"

	"radarflow/internal/config"
	"radarflow/internal/logging"
)

// RestartDownload stops the download daemon, applies override to the download
// section, and relaunches it if it is enabled. Other daemons keep running.
func (m *Manager) RestartDownload(ctx context.Context, override func(*config.Download)) error {
	return m.restart(ctx, KindDownload, func(cfg *config.Config) {
		if override != nil {
			override(&cfg.Download)
		}
	})
}

// RestartProcessing is RestartDownload for the processing daemon.
func (m *Manager) RestartProcessing(ctx context.Context, override func(*config.Processing)) error {
	return m.restart(ctx, KindProcessing, func(cfg *config.Config) {
		if override != nil {
			override(&cfg.Processing)
		}
	})
}

// RestartProducts is RestartDownload for the product daemon.
func (m *Manager) RestartProducts(ctx context.Context, override func(*config.Products)) error {
	return m.restart(ctx, KindProducts, func(cfg *config.Config) {
		if override != nil {
			override(&cfg.Products)
		}
	})
}

func (m *Manager) restart(ctx context.Context, kind string, apply func(*config.Config)) error {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	m.mu.Lock()
	next := m.cfg
	apply(&next)
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("restart %s: %w", kind, err)
	}
	old := m.lanes[kind]
	delete(m.lanes, kind)
	m.mu.Unlock()

	if old != nil {
		go old.shutdown(0)
		select {
		case <-old.done:
		case <-ctx.Done():
			return fmt.Errorf("restart %s: %w", kind, ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = next
	if old != nil {
		m.stopped[kind] = old
	}
	if !m.running || !m.enabled(kind) {
		m.logger.Info("daemon reconfigured", logging.String(logging.FieldDaemon, kind), logging.Bool("launched", false))
		return nil
	}
	l, err := m.buildLane(kind)
	if err != nil {
		return err
	}
	l.start(m.ctx)
	m.lanes[kind] = l
	delete(m.stopped, kind)
	m.logger.Info("daemon restarted", logging.String(logging.FieldDaemon, kind))
	return nil
}

// Config returns a copy of the configuration currently applied.
func (m *Manager) Config() config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

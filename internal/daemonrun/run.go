package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/daemon"
	"radarflow/internal/deps"
	"radarflow/internal/download"
	"radarflow/internal/external"
	"radarflow/internal/logging"
	"radarflow/internal/metrics"
	"radarflow/internal/preflight"
	"radarflow/internal/processing"
	"radarflow/internal/product"
	"radarflow/internal/state"
	"radarflow/internal/transport"
	"radarflow/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the radarflow daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("radarflowd-%s.log", runID))

	logOpts := logging.FromConfig(cfg, logPath)
	if strings.TrimSpace(opts.LogLevel) != "" {
		logOpts.Level = opts.LogLevel
	}
	logOpts.Development = opts.Development
	logger, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update radarflow.log link: %v\n", err)
	}
	if removed := logging.PruneLogs(logger, cfg.Paths.LogDir, "radarflowd-*.log", logPath, cfg.Logging.RetentionDays); removed > 0 {
		logger.Info("pruned old logs", logging.Int("removed", removed))
	}
	logDependencySnapshot(logger, cfg)

	store, err := state.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}

	ftpClient := transport.NewFTPClient(cfg.FTP, cfg.Download.MaxConcurrent, logger)
	defer ftpClient.Close()

	if err := runPreflight(signalCtx, cfg, ftpClient, logger); err != nil {
		_ = store.Close()
		return err
	}

	m := metrics.New()
	if srv := metrics.NewServer(cfg.Metrics.Bind, m, logger); srv != nil {
		if err := srv.Start(signalCtx); err != nil {
			logging.WarnWithContext(logger, "metrics server unavailable", "metrics_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.bind"),
				logging.String(logging.FieldImpact, "prometheus cannot scrape this daemon"),
			)
		}
	}

	manager := workflow.NewManager(cfg, BuildFactories(store, ftpClient, logger, m), logger, workflow.WithMetrics(m))
	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("radarflow daemon shutting down")
	return nil
}

// BuildFactories wires the concrete daemons. Each factory reads the
// configuration it is handed so restarts pick up overrides.
func BuildFactories(store *state.Store, client transport.Client, logger *slog.Logger, m *metrics.Metrics) workflow.Factories {
	return workflow.Factories{
		Download: func(cfg *config.Config) (workflow.Daemon, error) {
			return download.New(cfg, store, client, logger, download.WithMetrics(m)), nil
		},
		Processing: func(cfg *config.Config) (workflow.Daemon, error) {
			decoder, err := external.NewCommandDecoder(cfg.Processing.DecodeCommand, cfg.ArtifactDir())
			if err != nil {
				return nil, err
			}
			return processing.New(cfg, store, decoder, logger, processing.WithMetrics(m)), nil
		},
		Products: func(cfg *config.Config) (workflow.Daemon, error) {
			renderer, err := external.NewCommandRenderer(cfg.Products.RenderCommand)
			if err != nil {
				return nil, err
			}
			return product.New(cfg, store, renderer, logger, product.WithMetrics(m)), nil
		},
	}
}

// runPreflight logs failed checks. Only an unusable data directory stops the
// daemon; everything else degrades a single daemon.
func runPreflight(ctx context.Context, cfg *config.Config, client preflight.Pinger, logger *slog.Logger) error {
	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg, client)) {
		if r.Name == "Data directory" {
			return fmt.Errorf("preflight: %s: %s", r.Name, r.Detail)
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run radarflow status for details"),
			logging.String(logging.FieldImpact, "affected daemon cycles may fail until resolved"),
		)
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "radarflow.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("ftp_host", cfg.FTP.Host),
		logging.Int("sources", len(cfg.Sources)),
		logging.Bool("metrics_enabled", strings.TrimSpace(cfg.Metrics.Bind) != ""),
	}
	for _, st := range deps.Check(cfg) {
		attrs = append(attrs, logging.Bool(strings.ToLower(st.Name)+"_available", st.Available))
	}
	logger.Info("dependency snapshot", attrs...)
}

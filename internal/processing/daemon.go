package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"radarflow/internal/config"
	"radarflow/internal/grammar"
	"radarflow/internal/logging"
	"radarflow/internal/metrics"
	"radarflow/internal/services"
	"radarflow/internal/state"
	"radarflow/internal/volume"
)

// Name identifies the processing daemon in logs, metrics, and status output.
const Name = "processing"

// Decoder turns the downloaded files of one volume into a merged artifact.
// It may skip individual unreadable files but must fail when nothing usable
// was produced.
type Decoder interface {
	DecodeAndMerge(ctx context.Context, v state.Volume, localPaths []string) (string, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, v state.Volume, localPaths []string) (string, error)

// DecodeAndMerge implements Decoder.
func (f DecoderFunc) DecodeAndMerge(ctx context.Context, v state.Volume, localPaths []string) (string, error) {
	return f(ctx, v, localPaths)
}

type source struct {
	name    string
	grammar *grammar.Grammar
}

// Daemon assembles complete volumes into artifacts.
type Daemon struct {
	cfg      config.Processing
	download config.Download
	store    *state.Store
	decoder  Decoder
	detector *volume.Detector
	logger   *slog.Logger
	metrics  *metrics.Metrics
	sources  []source
	sem      *semaphore.Weighted
	now      func() time.Time

	// start is the download start bound, resolved once in New.
	start     time.Time
	windowErr error

	mu    sync.Mutex
	stats Stats
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithMetrics records processing instruments on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithClock overrides the time source used for the incomplete-volume cutoff.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		if now != nil {
			d.now = now
		}
	}
}

// New builds a processing daemon.
func New(cfg *config.Config, store *state.Store, decoder Decoder, logger *slog.Logger, opts ...Option) *Daemon {
	width := cfg.Processing.MaxConcurrent
	if width <= 0 {
		width = 1
	}
	d := &Daemon{
		cfg:      cfg.Processing,
		download: cfg.Download,
		store:    store,
		decoder:  decoder,
		detector: volume.NewDetector(store, logger),
		logger:   logging.NewComponentLogger(logger, Name),
		sem:      semaphore.NewWeighted(int64(width)),
		now:      time.Now,
	}
	for _, src := range cfg.Sources {
		d.sources = append(d.sources, source{name: src.Name, grammar: grammar.New(src.VolumeTypes)})
	}
	for _, opt := range opts {
		opt(d)
	}
	d.start, _, d.windowErr = d.download.DownloadWindow(d.now())
	return d
}

// Name implements the workflow daemon contract.
func (d *Daemon) Name() string { return Name }

// PollInterval is the sleep between cycles.
func (d *Daemon) PollInterval() time.Duration { return d.cfg.PollDuration() }

// RunCycle performs one processing pass.
func (d *Daemon) RunCycle(ctx context.Context) error {
	_, err := d.Cycle(ctx)
	return err
}

// Cycle resets stuck volumes, refreshes completeness, then processes every
// eligible pending volume under the concurrency limit. Per-volume failures are
// recorded in the store and reported in the returned CycleReport; the error
// only covers problems that stopped the cycle itself.
func (d *Daemon) Cycle(ctx context.Context) (CycleReport, error) {
	started := d.now()
	logger := logging.WithContext(ctx, d.logger)
	var report CycleReport

	reset, err := d.store.ResetStuckVolumes(ctx, d.cfg.StuckTimeout())
	if err != nil {
		d.recordCycle(report, err)
		return report, err
	}
	report.Reset = len(reset)
	d.metrics.VolumesResetBy(len(reset))
	for _, id := range reset {
		logging.WarnWithContext(logger, "stuck volume returned to pending", "volume_stuck_reset",
			logging.String(logging.FieldVolumeID, id),
			logging.Duration("timeout", d.cfg.StuckTimeout()),
			logging.String(logging.FieldErrorHint, "a previous worker exceeded the lease; check decoder runtime"),
			logging.String(logging.FieldImpact, "volume will be processed again"),
		)
	}

	if err := d.refresh(ctx, &report); err != nil {
		d.recordCycle(report, err)
		return report, err
	}

	cutoff := d.now().Add(-d.cfg.IncompleteTimeout())
	pending, err := d.store.PendingVolumes(ctx, d.cfg.AllowIncomplete, cutoff)
	if err != nil {
		d.recordCycle(report, err)
		return report, err
	}
	report.Pending = len(pending)
	d.metrics.SetVolumesPending(len(pending))

	report.Results = d.processAll(ctx, pending)
	for _, res := range report.Results {
		switch res.Status {
		case state.StatusCompleted:
			report.Processed++
		case state.StatusFailed:
			report.Failed++
		}
	}

	d.recordCycle(report, nil)
	if report.Processed+report.Failed > 0 || report.Reset > 0 {
		logger.Info("processing cycle finished",
			logging.Int("processed", report.Processed),
			logging.Int("failed", report.Failed),
			logging.Int("reset", report.Reset),
			logging.Int("incomplete", report.Incomplete),
			logging.Duration("elapsed", d.now().Sub(started)),
		)
	}
	return report, nil
}

func (d *Daemon) refresh(ctx context.Context, report *CycleReport) error {
	if d.windowErr != nil {
		return services.Wrap(services.ErrConfiguration, Name, "refresh", "download window", d.windowErr)
	}
	for _, src := range d.sources {
		r, err := d.detector.Refresh(ctx, src.name, src.grammar, d.start)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", src.name, err)
		}
		report.Registered += r.Registered
		report.NewlyComplete += len(r.NewlyComplete)
		report.Incomplete += len(r.Incomplete)
	}
	return nil
}

func (d *Daemon) processAll(ctx context.Context, pending []state.Volume) []Result {
	results := make([]Result, 0, len(pending))
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, v := range pending {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer d.sem.Release(1)
			res := d.processOne(ctx, v)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Daemon) processOne(ctx context.Context, v state.Volume) Result {
	res := Result{VolumeID: v.VolumeID}
	ctx = services.WithVolumeID(ctx, v.VolumeID)
	logger := logging.WithContext(ctx, d.logger)

	claimed, err := d.store.ClaimVolume(ctx, v.VolumeID)
	if err != nil {
		res.Err = err
		return res
	}
	if !claimed {
		logger.Debug("volume claimed elsewhere")
		return res
	}
	res.Status = state.StatusProcessing

	started := time.Now()
	artifact, err := d.decode(ctx, v)
	res.Duration = time.Since(started)

	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the decode; the lease reclaims the volume later.
		res.Err = err
		return res
	}
	if err != nil {
		res.Status = state.StatusFailed
		res.Err = err
		if markErr := d.store.MarkVolumeFailed(ctx, v.VolumeID, err.Error()); markErr != nil {
			res.Err = errors.Join(err, markErr)
		}
		d.metrics.VolumeFailed()
		logging.WarnWithContext(logger, "volume processing failed", "volume_failed",
			logging.String("error_kind", services.ErrorKind(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the volume files or run 'radarflow retry volumes'"),
			logging.String(logging.FieldImpact, "no artifact or products for this volume"),
		)
		return res
	}

	if err := d.store.MarkVolumeCompleted(ctx, v.VolumeID, artifact); err != nil {
		res.Err = err
		return res
	}
	res.Status = state.StatusCompleted
	res.ArtifactPath = artifact
	d.metrics.VolumeProcessed(res.Duration)
	logger.Info("volume processed",
		logging.String("artifact", artifact),
		logging.Bool("complete", v.IsComplete),
		logging.Duration("elapsed", res.Duration),
	)
	return res
}

func (d *Daemon) decode(ctx context.Context, v state.Volume) (string, error) {
	files, err := d.store.VolumeFiles(ctx, v)
	if err != nil {
		return "", err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.LocalPath == "" {
			continue
		}
		if _, err := os.Stat(f.LocalPath); err != nil {
			d.logger.Debug("volume file missing on disk",
				logging.String(logging.FieldVolumeID, v.VolumeID),
				logging.String(logging.FieldFilename, f.Filename),
				logging.Error(err))
			continue
		}
		paths = append(paths, f.LocalPath)
	}
	if len(paths) == 0 {
		return "", services.Wrap(services.ErrNotFound, Name, "resolve files", "no local files found for volume", nil)
	}

	artifact, err := d.decoder.DecodeAndMerge(ctx, v, paths)
	if err != nil {
		return "", err
	}
	if artifact == "" {
		return "", services.Wrap(services.ErrDecode, Name, "decode", "decoder returned no artifact path", nil)
	}
	return artifact, nil
}

package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
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
	"radarflow/internal/transport"
)

// Name identifies the download daemon in logs, metrics, and status output.
const Name = "download"

var errSizeMismatch = errors.New("written size does not match file on disk")

// Callback runs after a download is recorded as completed.
type Callback func(ctx context.Context, d state.Download)

type source struct {
	name    string
	root    string
	grammar *grammar.Grammar
}

type candidate struct {
	source string
	entry  transport.Entry
	file   grammar.Filename
}

// Daemon discovers and downloads radar files for every configured source.
type Daemon struct {
	cfg      config.Download
	store    *state.Store
	client   transport.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
	localDir string
	sources  []source
	policy   RetryPolicy
	sem      *semaphore.Weighted
	now      func() time.Time

	// Window bounds resolved once at construction; an empty start_date
	// pins start to the hour the daemon was built.
	start     time.Time
	end       time.Time
	windowErr error

	onDownloaded Callback

	mu    sync.Mutex
	stats Stats
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithOnDownloaded registers a callback invoked after each completed download.
func WithOnDownloaded(fn Callback) Option {
	return func(d *Daemon) { d.onDownloaded = fn }
}

// WithRetryPolicy replaces the policy derived from configuration.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(d *Daemon) { d.policy = policy }
}

// WithMetrics records download instruments on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithClock overrides the time source. The default start date is taken from
// it once, when New runs.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		if now != nil {
			d.now = now
		}
	}
}

// New builds a download daemon. The grammar for each source is built once here.
func New(cfg *config.Config, store *state.Store, client transport.Client, logger *slog.Logger, opts ...Option) *Daemon {
	width := cfg.Download.MaxConcurrent
	if width <= 0 {
		width = 1
	}
	d := &Daemon{
		cfg:      cfg.Download,
		store:    store,
		client:   client,
		logger:   logging.NewComponentLogger(logger, Name),
		localDir: cfg.BUFRDir(),
		policy:   PolicyFromConfig(cfg.Download),
		sem:      semaphore.NewWeighted(int64(width)),
		now:      time.Now,
	}
	for _, src := range cfg.Sources {
		d.sources = append(d.sources, source{
			name:    src.Name,
			root:    transport.SourceRoot(cfg.FTP.BaseDir, src.Name),
			grammar: grammar.New(src.VolumeTypes),
		})
	}
	for _, opt := range opts {
		opt(d)
	}
	d.start, d.end, d.windowErr = d.cfg.DownloadWindow(d.now())
	return d
}

// Name implements the workflow daemon contract.
func (d *Daemon) Name() string { return Name }

// PollInterval is the sleep between cycles.
func (d *Daemon) PollInterval() time.Duration { return d.cfg.PollDuration() }

// RunCycle performs one discovery and download pass over every source. Per-file
// failures are recorded in the store and never abort the cycle; the returned
// error only reports sources that could not be scanned at all.
func (d *Daemon) RunCycle(ctx context.Context) error {
	_, err := d.Sync(ctx)
	return err
}

// Sync is RunCycle returning the per-file results.
func (d *Daemon) Sync(ctx context.Context) (CycleReport, error) {
	started := d.now()
	logger := logging.WithContext(ctx, d.logger)

	var (
		report     CycleReport
		candidates []candidate
		scanErrs   []error
	)
	for _, src := range d.sources {
		found, err := d.discover(ctx, src, &report)
		if err != nil {
			scanErrs = append(scanErrs, fmt.Errorf("source %s: %w", src.name, err))
			logging.WarnWithContext(logger, "source scan failed", "download_scan_failed",
				logging.String(logging.FieldSource, src.name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check FTP connectivity and base_dir"),
				logging.String(logging.FieldImpact, "no new files from this source this cycle"),
			)
			continue
		}
		candidates = append(candidates, found...)
	}

	results := d.fetchAll(ctx, candidates)
	for _, res := range results {
		report.add(res)
	}

	elapsed := d.now().Sub(started)
	d.recordCycle(report, elapsed, errors.Join(scanErrs...))
	if len(candidates) > 0 {
		logger.Info("download cycle finished",
			logging.Int("candidates", len(candidates)),
			logging.Int("downloaded", report.Downloaded),
			logging.Int("failed", report.Failed),
			logging.Int64("bytes", report.Bytes),
			logging.Duration("elapsed", elapsed),
		)
	} else {
		logger.Debug("download cycle found nothing new", logging.Int("skipped", report.Skipped))
	}
	return report, errors.Join(scanErrs...)
}

// ResumePoint returns max(start_date, newest completed download) for source and
// the configured end bound.
func (d *Daemon) ResumePoint(ctx context.Context, sourceName string) (time.Time, time.Time, error) {
	if d.windowErr != nil {
		return time.Time{}, time.Time{}, services.Wrap(services.ErrConfiguration, Name, "resume point", "", d.windowErr)
	}
	start, end := d.start, d.end
	latest, ok, err := d.store.LatestDownloadTime(ctx, sourceName)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if ok && latest.After(start) {
		start = latest
	}
	return start, end, nil
}

func (d *Daemon) discover(ctx context.Context, src source, report *CycleReport) ([]candidate, error) {
	resume, end, err := d.ResumePoint(ctx, src.name)
	if err != nil {
		return nil, err
	}
	d.setResumePoint(src.name, resume)
	logger := d.logger.With(logging.String(logging.FieldSource, src.name))

	if !end.IsZero() && resume.After(end) {
		logger.Debug("source reached end date", logging.Time("end_date", end))
		report.Finished = append(report.Finished, src.name)
		return nil, nil
	}

	entries, err := transport.Walk(ctx, d.client, src.root, resume, end)
	if err != nil {
		if !errors.Is(err, transport.ErrPartialListing) {
			return nil, err
		}
		logging.WarnWithContext(logger, "some remote directories could not be listed", "download_partial_listing",
			logging.Error(err),
			logging.String(logging.FieldImpact, "files in those directories are retried next cycle"),
		)
	}

	var out []candidate
	for _, entry := range entries {
		file, ok := src.grammar.Match(entry.Name)
		if !ok {
			report.Ignored++
			logger.Debug("file ignored by grammar", logging.String(logging.FieldFilename, entry.Name))
			continue
		}
		report.Discovered++
		done, err := d.alreadyDownloaded(ctx, file.Name)
		if err != nil {
			return nil, err
		}
		if done {
			report.Skipped++
			continue
		}
		out = append(out, candidate{source: src.name, entry: entry, file: file})
	}
	return out, nil
}

func (d *Daemon) alreadyDownloaded(ctx context.Context, filename string) (bool, error) {
	if !d.cfg.VerifyChecksums {
		return d.store.IsDownloaded(ctx, filename)
	}
	rec, err := d.store.GetDownload(ctx, filename)
	if err != nil || rec == nil || rec.Status != state.DownloadCompleted {
		return false, err
	}
	if rec.LocalPath == "" || rec.Checksum == "" {
		return false, nil
	}
	sum, err := fileChecksum(rec.LocalPath)
	if err != nil {
		d.logger.Debug("local copy unreadable, downloading again",
			logging.String(logging.FieldFilename, filename), logging.Error(err))
		return false, nil
	}
	return sum == rec.Checksum, nil
}

func (d *Daemon) fetchAll(ctx context.Context, candidates []candidate) []Result {
	results := make([]Result, len(candidates))
	var g errgroup.Group
	for i, c := range candidates {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(candidates); j++ {
				results[j] = Result{Filename: candidates[j].file.Name, Source: candidates[j].source, Err: err}
			}
			break
		}
		g.Go(func() error {
			defer d.sem.Release(1)
			results[i] = d.fetch(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// LocalPath is where a downloaded file is stored.
func (d *Daemon) LocalPath(f grammar.Filename) string {
	return filepath.Join(d.localDir, f.Source, f.Observed.Format("20060102"), f.Name)
}

func (d *Daemon) fetch(ctx context.Context, c candidate) Result {
	d.metrics.DownloadStarted()
	defer d.metrics.DownloadFinished()

	logger := d.logger.With(
		logging.String(logging.FieldSource, c.source),
		logging.String(logging.FieldFilename, c.file.Name),
	)
	local := d.LocalPath(c.file)
	part := local + ".part"
	res := Result{Filename: c.file.Name, Source: c.source}

	var written int64
	attempts, err := d.policy.Do(ctx, func(int) error {
		n, err := d.client.Download(ctx, c.entry.RemotePath, part)
		if err != nil {
			return err
		}
		info, err := os.Stat(part)
		if err != nil {
			return err
		}
		if info.Size() != n {
			return fmt.Errorf("%w: wrote %d bytes, file has %d", errSizeMismatch, n, info.Size())
		}
		written = n
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		d.metrics.DownloadRetry(c.source)
		logging.WarnWithContext(logger, "download attempt failed", "download_retry",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", d.policy.MaxAttempts),
			logging.Duration("retry_in", delay),
			logging.Error(err),
			logging.String(logging.FieldImpact, "download will be retried"),
		)
	})
	res.Attempts = attempts

	record := state.Download{
		Filename:   c.file.Name,
		RemotePath: c.entry.RemotePath,
		Source:     c.file.Source,
		Strategy:   c.file.Strategy,
		VolNr:      c.file.VolNr,
		FieldType:  c.file.Field,
		Observed:   c.file.Observed,
	}

	if err == nil {
		err = os.Rename(part, local)
	}
	if err == nil {
		record.LocalPath = local
		record.Size = written
		record.Checksum, err = fileChecksum(local)
	}

	switch {
	case err == nil:
		if err := d.store.MarkDownloaded(ctx, record); err != nil {
			res.Err = err
			return res
		}
		res.Status = state.DownloadCompleted
		res.Bytes = written
		d.metrics.Downloaded(c.source, written)
		logger.Debug("file downloaded", logging.Int64("bytes", written), logging.Int("attempts", attempts))
		if d.onDownloaded != nil {
			d.onDownloaded(ctx, record)
		}
	case ctx.Err() != nil:
		// Interrupted by shutdown; nothing is recorded so the next run retries.
		_ = os.Remove(part)
		res.Err = ctx.Err()
	default:
		_ = os.Remove(part)
		record.Status = state.DownloadFailed
		if errors.Is(err, errSizeMismatch) {
			record.Status = state.DownloadPartial
		}
		if recErr := d.store.RecordDownload(ctx, record); recErr != nil {
			err = errors.Join(err, recErr)
		}
		res.Status = record.Status
		res.Err = err
		d.metrics.DownloadFailure(c.source)
		logging.WarnWithContext(logger, "download failed", "download_failed",
			logging.Int("attempts", attempts),
			logging.String("status", string(record.Status)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'radarflow retry downloads' once the remote is healthy"),
			logging.String(logging.FieldImpact, "file recorded as failed"),
		)
	}
	return res
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package product

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/logging"
	"radarflow/internal/metrics"
	"radarflow/internal/services"
	"radarflow/internal/state"
)

// Name identifies the product daemon in logs, metrics, and status output.
const Name = "products"

// ColmaxField is the derived column-maximum field requested with include_colmax.
const ColmaxField = "COLMAX"

// Field is one field to render together with its resolved colour scale.
type Field struct {
	Name  string
	Style config.FieldStyle
}

// Request describes one render invocation.
type Request struct {
	Volume        state.Volume
	ArtifactPath  string
	ProductType   string
	OutputDir     string
	IncludeColmax bool
	Fields        []Field
}

// Renderer produces products from a merged artifact. Implementations are
// never called concurrently by the daemon.
type Renderer interface {
	Render(ctx context.Context, req Request) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, req Request) error

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, req Request) error { return f(ctx, req) }

// Daemon renders products for processed volumes, one at a time.
type Daemon struct {
	cfg      config.Products
	fields   *config.Config
	outDir   string
	store    *state.Store
	renderer Renderer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	stats Stats
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithMetrics records product instruments on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithClock overrides the time source used for stats.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		if now != nil {
			d.now = now
		}
	}
}

// New builds a product daemon for cfg.Products.ProductType.
func New(cfg *config.Config, store *state.Store, renderer Renderer, logger *slog.Logger, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:      cfg.Products,
		fields:   cfg,
		outDir:   cfg.ProductDir(),
		store:    store,
		renderer: renderer,
		logger:   logging.NewComponentLogger(logger, Name),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.stats.ProductType = d.cfg.ProductType
	return d
}

// Name implements the workflow daemon contract.
func (d *Daemon) Name() string { return Name }

// PollInterval is the sleep between cycles.
func (d *Daemon) PollInterval() time.Duration { return d.cfg.PollDuration() }

// ProductType is the product this daemon generates.
func (d *Daemon) ProductType() string { return d.cfg.ProductType }

// RunCycle performs one product pass.
func (d *Daemon) RunCycle(ctx context.Context) error {
	_, err := d.Cycle(ctx)
	return err
}

// Cycle resets stuck records for this product type, then renders every
// candidate in order. Per-product failures are recorded in the store; the
// returned error only covers problems that stopped the cycle.
func (d *Daemon) Cycle(ctx context.Context) (CycleReport, error) {
	ctx = services.WithProductType(ctx, d.cfg.ProductType)
	logger := logging.WithContext(ctx, d.logger)
	var report CycleReport

	reset, err := d.store.ResetStuckProducts(ctx, d.cfg.ProductType, d.cfg.StuckTimeout())
	if err != nil {
		d.recordCycle(report, err)
		return report, err
	}
	report.Reset = len(reset)
	for _, id := range reset {
		logging.WarnWithContext(logger, "stuck product returned to pending", "product_stuck_reset",
			logging.String(logging.FieldVolumeID, id),
			logging.Duration("timeout", d.cfg.StuckTimeout()),
			logging.String(logging.FieldErrorHint, "a previous render exceeded the lease; check renderer runtime"),
			logging.String(logging.FieldImpact, "product will be rendered again"),
		)
	}

	candidates, err := d.store.ProductCandidates(ctx, d.cfg.ProductType)
	if err != nil {
		d.recordCycle(report, err)
		return report, err
	}
	report.Candidates = len(candidates)

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if c.Product == nil {
			if err := d.store.RegisterProduct(ctx, c.Volume.VolumeID, d.cfg.ProductType); err != nil {
				report.Results = append(report.Results, Result{VolumeID: c.Volume.VolumeID, Err: err})
				continue
			}
			report.Registered++
		}
		res := d.generate(ctx, c.Volume)
		switch res.Status {
		case state.StatusCompleted:
			report.Generated++
		case state.StatusFailed:
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}

	d.recordCycle(report, nil)
	if report.Generated+report.Failed > 0 || report.Reset > 0 {
		logger.Info("product cycle finished",
			logging.Int("generated", report.Generated),
			logging.Int("failed", report.Failed),
			logging.Int("reset", report.Reset),
		)
	}
	return report, nil
}

func (d *Daemon) generate(ctx context.Context, v state.Volume) Result {
	res := Result{VolumeID: v.VolumeID}
	ctx = services.WithVolumeID(ctx, v.VolumeID)
	logger := logging.WithContext(ctx, d.logger)

	claimed, err := d.store.ClaimProduct(ctx, v.VolumeID, d.cfg.ProductType)
	if err != nil {
		res.Err = err
		return res
	}
	if !claimed {
		logger.Debug("product claimed elsewhere")
		return res
	}
	res.Status = state.StatusProcessing

	if v.ArtifactPath == "" {
		return d.fail(ctx, res, state.ErrorTypeNoArtifactPath,
			services.Wrap(services.ErrNotFound, Name, "resolve artifact", "volume has no artifact path", nil))
	}
	if _, err := os.Stat(v.ArtifactPath); err != nil {
		errType := state.ErrorTypeFileNotFound
		if !errors.Is(err, fs.ErrNotExist) {
			errType = services.ErrorKind(err)
		}
		return d.fail(ctx, res, errType,
			services.Wrap(services.ErrNotFound, Name, "resolve artifact", "artifact file missing: "+v.ArtifactPath, err))
	}

	req := Request{
		Volume:        v,
		ArtifactPath:  v.ArtifactPath,
		ProductType:   d.cfg.ProductType,
		OutputDir:     d.outputDir(v),
		IncludeColmax: d.cfg.IncludeColmax,
		Fields:        d.resolveFields(v),
	}
	started := time.Now()
	err = d.renderer.Render(ctx, req)
	res.Duration = time.Since(started)
	if err != nil && ctx.Err() != nil {
		// Shutdown interrupted the render; the lease reclaims the record later.
		res.Err = err
		return res
	}
	if err != nil {
		return d.fail(ctx, res, services.ErrorKind(err), err)
	}

	if err := d.store.MarkProductCompleted(ctx, v.VolumeID, d.cfg.ProductType); err != nil {
		res.Err = err
		return res
	}
	res.Status = state.StatusCompleted
	d.metrics.ProductGenerated(d.cfg.ProductType)
	logger.Info("product generated",
		logging.String("output_dir", req.OutputDir),
		logging.Duration("elapsed", res.Duration),
	)
	return res
}

func (d *Daemon) fail(ctx context.Context, res Result, errType string, err error) Result {
	res.Status = state.StatusFailed
	res.ErrorType = errType
	res.Err = err
	if markErr := d.store.MarkProductFailed(ctx, res.VolumeID, d.cfg.ProductType, err.Error(), errType); markErr != nil {
		res.Err = errors.Join(err, markErr)
	}
	d.metrics.ProductFailed(d.cfg.ProductType, errType)
	logging.WarnWithContext(logging.WithContext(ctx, d.logger), "product generation failed", "product_failed",
		logging.String("error_type", errType),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the artifact or run 'radarflow retry products'"),
		logging.String(logging.FieldImpact, "product missing for this volume"),
	)
	return res
}

func (d *Daemon) outputDir(v state.Volume) string {
	return filepath.Join(d.outDir, d.cfg.ProductType, v.Source, v.Observed.UTC().Format("20060102"))
}

// resolveFields maps the volume's downloaded fields onto style keys. Fields
// sharing a style key (DBZH and DBZV) render once. The unfiltered option
// selects the *_NOFILTERS scale for each key.
func (d *Daemon) resolveFields(v state.Volume) []Field {
	seen := make(map[string]struct{}, len(v.DownloadedFields)+1)
	fields := make([]Field, 0, len(v.DownloadedFields)+1)
	add := func(raw string) {
		key := config.StyleKey(raw)
		if _, ok := seen[key]; ok {
			return
		}
		style, ok := d.fields.FieldStyle(key, !d.cfg.Unfiltered)
		if !ok {
			d.logger.Debug("no style for field", logging.String("field", raw))
			return
		}
		seen[key] = struct{}{}
		fields = append(fields, Field{Name: key, Style: style})
	}
	for _, f := range v.DownloadedFields {
		add(f)
	}
	if d.cfg.IncludeColmax {
		add(ColmaxField)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

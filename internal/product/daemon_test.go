package product_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"radarflow/internal/config"
	"radarflow/internal/logging"
	"radarflow/internal/product"
	"radarflow/internal/services"
	"radarflow/internal/state"
	"radarflow/internal/testsupport"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type recordingRenderer struct {
	mu       sync.Mutex
	requests []product.Request
	errs     []error
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func (r *recordingRenderer) Render(_ context.Context, req product.Request) error {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxSeen {
		r.maxSeen = r.inFlight
	}
	r.requests = append(r.requests, req)
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()
	return err
}

func (r *recordingRenderer) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func artifact(t *testing.T, dir string, observed time.Time) string {
	t.Helper()
	path := filepath.Join(dir, observed.Format("20060102T150405")+".nc")
	testsupport.WriteFile(t, path, 32)
	return path
}

func TestUnfilteredOptionSelectsNoFilterStyles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Products.Unfiltered = true
	cfg.Fields["REFL_NOFILTERS"] = config.FieldStyle{VMin: -30, VMax: 80, Colormap: "raw"}
	store := testsupport.MustOpenStore(t, cfg)
	renderer := &recordingRenderer{}
	daemon := product.New(cfg, store, renderer, logging.NewNop())

	testsupport.ProcessedVolume(t, store, t0, artifact(t, cfg.ArtifactDir(), t0))
	if _, err := daemon.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if renderer.calls() != 1 {
		t.Fatalf("expected one render, got %d", renderer.calls())
	}
	fields := renderer.requests[0].Fields
	if len(fields) != 1 || fields[0].Name != "REFL" {
		t.Fatalf("expected one REFL field, got %+v", fields)
	}
	if fields[0].Style != cfg.Fields["REFL_NOFILTERS"] {
		t.Fatalf("style = %+v, want the unfiltered scale", fields[0].Style)
	}
}

func TestCycleGeneratesProduct(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Products.IncludeColmax = true
	store := testsupport.MustOpenStore(t, cfg)
	renderer := &recordingRenderer{}
	daemon := product.New(cfg, store, renderer, logging.NewNop())
	ctx := context.Background()

	v := testsupport.ProcessedVolume(t, store, t0, artifact(t, cfg.ArtifactDir(), t0))

	report, err := daemon.Cycle(ctx)
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if report.Candidates != 1 || report.Registered != 1 || report.Generated != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if renderer.calls() != 1 {
		t.Fatalf("expected one render, got %d", renderer.calls())
	}
	req := renderer.requests[0]
	if req.ArtifactPath != v.ArtifactPath || req.ProductType != cfg.Products.ProductType || !req.IncludeColmax {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.Fields) != 2 || req.Fields[0].Name != "COLMAX" || req.Fields[1].Name != "REFL" {
		t.Fatalf("expected COLMAX and REFL styles, got %+v", req.Fields)
	}
	want := filepath.Join(cfg.ProductDir(), cfg.Products.ProductType, "RMA1", "20250101")
	if req.OutputDir != want {
		t.Fatalf("output dir = %q, want %q", req.OutputDir, want)
	}

	p, _ := store.GetProduct(ctx, v.VolumeID, cfg.Products.ProductType)
	if p == nil || p.Status != state.StatusCompleted {
		t.Fatalf("unexpected product: %+v", p)
	}

	report, _ = daemon.Cycle(ctx)
	if report.Candidates != 0 || renderer.calls() != 1 {
		t.Fatalf("completed product must not be rendered again: %+v", report)
	}
	if stats := daemon.Stats(); stats.ProductsGenerated != 1 || stats.Cycles != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCycleMissingArtifactPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	renderer := &recordingRenderer{}
	daemon := product.New(cfg, store, renderer, logging.NewNop())
	ctx := context.Background()

	v := testsupport.ProcessedVolume(t, store, t0, "")

	report, err := daemon.Cycle(ctx)
	if err != nil || report.Failed != 1 {
		t.Fatalf("expected failure: %+v %v", report, err)
	}
	if renderer.calls() != 0 {
		t.Fatal("renderer must not run without an artifact")
	}
	p, _ := store.GetProduct(ctx, v.VolumeID, cfg.Products.ProductType)
	if p.Status != state.StatusFailed || p.ErrorType != state.ErrorTypeNoArtifactPath {
		t.Fatalf("unexpected product: %+v", p)
	}
}

func TestCycleArtifactMissingOnDisk(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	renderer := &recordingRenderer{}
	daemon := product.New(cfg, store, renderer, logging.NewNop())
	ctx := context.Background()

	v := testsupport.ProcessedVolume(t, store, t0, filepath.Join(cfg.ArtifactDir(), "gone.nc"))

	report, err := daemon.Cycle(ctx)
	if err != nil || report.Failed != 1 {
		t.Fatalf("expected failure: %+v %v", report, err)
	}
	if renderer.calls() != 0 {
		t.Fatal("renderer must not run for a missing artifact")
	}
	p, _ := store.GetProduct(ctx, v.VolumeID, cfg.Products.ProductType)
	if p.ErrorType != state.ErrorTypeFileNotFound {
		t.Fatalf("error type = %q, want %q", p.ErrorType, state.ErrorTypeFileNotFound)
	}
}

func TestCycleClassifiesRenderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "marked", err: services.Wrap(services.ErrRender, "renderer", "plot", "bad colormap", nil), want: "RENDER_ERROR"},
		{name: "timeout", err: services.Wrap(services.ErrTimeout, "renderer", "plot", "took too long", nil), want: "TIMEOUT"},
		{name: "plain", err: errors.New("boom"), want: "UNKNOWN_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			store := testsupport.MustOpenStore(t, cfg)
			renderer := &recordingRenderer{errs: []error{tc.err}}
			daemon := product.New(cfg, store, renderer, logging.NewNop())
			ctx := context.Background()

			v := testsupport.ProcessedVolume(t, store, t0, artifact(t, cfg.ArtifactDir(), t0))
			report, err := daemon.Cycle(ctx)
			if err != nil || report.Failed != 1 {
				t.Fatalf("expected failure: %+v %v", report, err)
			}
			p, _ := store.GetProduct(ctx, v.VolumeID, cfg.Products.ProductType)
			if p.Status != state.StatusFailed || p.ErrorType != tc.want {
				t.Fatalf("unexpected product: %+v", p)
			}

			// Failed products are candidates again on the next cycle.
			report, err = daemon.Cycle(ctx)
			if err != nil || report.Generated != 1 || report.Registered != 0 {
				t.Fatalf("expected retry to succeed: %+v %v", report, err)
			}
		})
	}
}

func TestCycleRendersSequentially(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	renderer := &recordingRenderer{delay: 5 * time.Millisecond}
	daemon := product.New(cfg, store, renderer, logging.NewNop())

	for i := 0; i < 4; i++ {
		obs := t0.Add(time.Duration(i) * 5 * time.Minute)
		testsupport.ProcessedVolume(t, store, obs, artifact(t, cfg.ArtifactDir(), obs))
	}

	report, err := daemon.Cycle(context.Background())
	if err != nil || report.Generated != 4 {
		t.Fatalf("expected 4 products: %+v %v", report, err)
	}
	if renderer.maxSeen != 1 {
		t.Fatalf("renderer ran concurrently: %d", renderer.maxSeen)
	}
	for i := 1; i < len(renderer.requests); i++ {
		if renderer.requests[i].Volume.Observed.Before(renderer.requests[i-1].Volume.Observed) {
			t.Fatal("candidates must be rendered oldest first")
		}
	}
}

func TestProductTypesAreIndependent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	v := testsupport.ProcessedVolume(t, store, t0, artifact(t, cfg.ArtifactDir(), t0))

	image := product.New(cfg, store, &recordingRenderer{}, logging.NewNop())
	other := *cfg
	other.Products.ProductType = "geotiff"
	geotiff := product.New(&other, store, &recordingRenderer{errs: []error{errors.New("no gdal")}}, logging.NewNop())

	if _, err := image.Cycle(ctx); err != nil {
		t.Fatalf("image cycle: %v", err)
	}
	if _, err := geotiff.Cycle(ctx); err != nil {
		t.Fatalf("geotiff cycle: %v", err)
	}

	img, _ := store.GetProduct(ctx, v.VolumeID, "image")
	tif, _ := store.GetProduct(ctx, v.VolumeID, "geotiff")
	if img.Status != state.StatusCompleted || tif.Status != state.StatusFailed {
		t.Fatalf("unexpected statuses: image=%s geotiff=%s", img.Status, tif.Status)
	}
}

func TestCycleResetsOnlyOwnStuckProducts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Products.StuckTimeoutMinutes = 10
	clock := testsupport.NewClock(t0)
	store := testsupport.MustOpenStore(t, cfg, state.WithClock(clock.Now))
	renderer := &recordingRenderer{}
	daemon := product.New(cfg, store, renderer, logging.NewNop())
	ctx := context.Background()

	v := testsupport.ProcessedVolume(t, store, t0, artifact(t, cfg.ArtifactDir(), t0))
	for _, pt := range []string{"image", "geotiff"} {
		if err := store.RegisterProduct(ctx, v.VolumeID, pt); err != nil {
			t.Fatalf("RegisterProduct: %v", err)
		}
		if ok, err := store.ClaimProduct(ctx, v.VolumeID, pt); err != nil || !ok {
			t.Fatalf("ClaimProduct: %v %v", ok, err)
		}
	}

	clock.Advance(11 * time.Minute)
	report, err := daemon.Cycle(ctx)
	if err != nil || report.Reset != 1 || report.Generated != 1 {
		t.Fatalf("expected reset and render: %+v %v", report, err)
	}
	tif, _ := store.GetProduct(ctx, v.VolumeID, "geotiff")
	if tif.Status != state.StatusProcessing {
		t.Fatalf("other product type must stay processing, got %s", tif.Status)
	}
}

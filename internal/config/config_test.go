package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"radarflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantBase := filepath.Join(tempHome, ".local", "share", "radarflow")
	if cfg.Paths.BaseDir != wantBase {
		t.Fatalf("unexpected base dir: got %q want %q", cfg.Paths.BaseDir, wantBase)
	}
	if cfg.StatePath() != filepath.Join(wantBase, "state.db") {
		t.Fatalf("unexpected state path: %q", cfg.StatePath())
	}
	if cfg.BUFRDir() != filepath.Join(wantBase, "bufr") {
		t.Fatalf("unexpected bufr dir: %q", cfg.BUFRDir())
	}
	if cfg.ArtifactDir() != filepath.Join(wantBase, "netcdf") {
		t.Fatalf("unexpected artifact dir: %q", cfg.ArtifactDir())
	}
	if cfg.ProductDir() != filepath.Join(wantBase, "products") {
		t.Fatalf("unexpected product dir: %q", cfg.ProductDir())
	}
	if cfg.Download.MaxRetries != 3 || cfg.Download.RetryBaseDelayMS != 1000 || cfg.Download.RetryMaxDelayMS != 30000 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Download)
	}
	if cfg.Processing.MaxConcurrent != 2 || cfg.Processing.IncompleteTimeoutHours != 24 {
		t.Fatalf("unexpected processing defaults: %+v", cfg.Processing)
	}
	if cfg.Products.ProductType != "image" {
		t.Fatalf("unexpected product type: %q", cfg.Products.ProductType)
	}
	if cfg.Processing.AllowIncomplete {
		t.Fatal("expected allow_incomplete disabled by default")
	}
}

func TestLoadCustomConfigDecodesGrammar(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
base_dir = "~/radar"

[ftp]
host = "ftp.example.org"
base_dir = "L2/"

[[sources]]
name = "RMA1"
[sources.volume_types."0315"]
"01" = ["dbzh", " DBZV "]
"02" = ["VRAD"]

[download]
max_concurrent = 7
start_date = "2025-01-01T12:00:00Z"
end_date = "2025-01-02"

[processing]
allow_incomplete = true
incomplete_timeout_hours = 6

[fields.REFL]
vmin = -10
vmax = 60
cmap = "viridis"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.BaseDir != filepath.Join(tempHome, "radar") {
		t.Fatalf("unexpected base dir: %q", cfg.Paths.BaseDir)
	}
	if cfg.FTP.BaseDir != "/L2" {
		t.Fatalf("expected normalized ftp base dir, got %q", cfg.FTP.BaseDir)
	}
	src, ok := cfg.Source("rma1")
	if !ok {
		t.Fatal("expected source lookup to be case-insensitive")
	}
	fields := src.VolumeTypes["0315"]["01"]
	if strings.Join(fields, ",") != "DBZH,DBZV" {
		t.Fatalf("expected normalized field names, got %v", fields)
	}
	if cfg.Download.MaxConcurrent != 7 {
		t.Fatalf("unexpected max concurrent: %d", cfg.Download.MaxConcurrent)
	}
	if !cfg.Download.Enabled {
		t.Fatal("expected omitted enabled flag to keep default")
	}
	start, end, err := cfg.Download.DownloadWindow(time.Now())
	if err != nil {
		t.Fatalf("DownloadWindow: %v", err)
	}
	if !start.Equal(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start: %v", start)
	}
	if !end.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end: %v", end)
	}

	style, ok := cfg.FieldStyle("DBZH", true)
	if !ok || style.VMin != -10 || style.Colormap != "viridis" {
		t.Fatalf("expected overridden REFL style via DBZH alias, got %+v ok=%v", style, ok)
	}
	unfiltered, ok := cfg.FieldStyle("DBZH", false)
	if !ok || unfiltered.VMin != -20 {
		t.Fatalf("expected default unfiltered style, got %+v ok=%v", unfiltered, ok)
	}
	if _, ok := cfg.FieldStyle("NOPE", true); ok {
		t.Fatal("expected unknown field to have no style")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "zero download concurrency",
			mutate: func(c *config.Config) { c.Download.MaxConcurrent = 0 },
			want:   "download.max_concurrent",
		},
		{
			name:   "max delay below base",
			mutate: func(c *config.Config) { c.Download.RetryMaxDelayMS = 10 },
			want:   "retry_max_delay_ms",
		},
		{
			name:   "end before start",
			mutate: func(c *config.Config) { c.Download.StartDate = "2025-01-02"; c.Download.EndDate = "2025-01-01" },
			want:   "end_date",
		},
		{
			name: "empty field list",
			mutate: func(c *config.Config) {
				c.Sources = []config.Source{{Name: "RMA1", VolumeTypes: map[string]map[string][]string{"0315": {"01": nil}}}}
			},
			want: "no field types",
		},
		{
			name: "source with underscore",
			mutate: func(c *config.Config) {
				c.Sources = []config.Source{{Name: "RMA_1", VolumeTypes: map[string]map[string][]string{"0315": {"01": {"DBZH"}}}}}
			},
			want: "underscores",
		},
		{
			name:   "negative ftp pacing",
			mutate: func(c *config.Config) { c.FTP.RequestsPerSecond = -1 },
			want:   "requests_per_second",
		},
		{
			name:   "bad log format",
			mutate: func(c *config.Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
		{
			name:   "inverted field style",
			mutate: func(c *config.Config) { c.Fields["REFL"] = config.FieldStyle{VMin: 10, VMax: 0} },
			want:   "fields.REFL",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(tempHome, "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Name != "RMA1" {
		t.Fatalf("unexpected sample sources: %+v", cfg.Sources)
	}
	if len(cfg.Processing.DecodeCommand) == 0 || len(cfg.Products.RenderCommand) == 0 {
		t.Fatal("expected sample collaborator commands")
	}
	if cfg.FTP.RequestsPerSecond != 5 {
		t.Fatalf("expected sample ftp pacing, got %v", cfg.FTP.RequestsPerSecond)
	}
}

func TestEnsureDirectoriesCreatesLayout(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.BaseDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.BUFRDir(), cfg.ArtifactDir(), cfg.ProductDir(), cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

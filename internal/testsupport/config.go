package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"radarflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// ScenarioGrammar is the single-volume grammar most tests use.
func ScenarioGrammar() map[string]map[string][]string {
	return map[string]map[string][]string{
		"0315": {"01": {"DBZH", "DBZV"}},
	}
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defines one source, RMA1, using ScenarioGrammar and applies any provided
// options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BaseDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.FTP.Host = "127.0.0.1"
	cfgVal.Sources = []config.Source{{Name: "RMA1", VolumeTypes: ScenarioGrammar()}}
	cfgVal.Download.StartDate = "2025-01-01T00:00:00Z"
	cfgVal.Download.RetryBaseDelayMS = 1
	cfgVal.Download.RetryMaxDelayMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithSource replaces the configured sources with a single named source.
func WithSource(name string, grammar map[string]map[string][]string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources = []config.Source{{Name: name, VolumeTypes: grammar}}
	}
}

// WithStartDate sets the download start bound.
func WithStartDate(value string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Download.StartDate = value
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. Each stub exits 0 without output.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.BaseDir)
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	BaseDir string `toml:"base_dir"`
	LogDir  string `toml:"log_dir"`
}

// FTP contains connection settings for the remote radar archive.
type FTP struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	BaseDir        string `toml:"base_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DisableEPSV    bool   `toml:"disable_epsv"`

	// RequestsPerSecond paces LIST and RETR commands across all connections.
	// Zero disables pacing.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Source describes one radar and the volume types accepted from it.
//
// VolumeTypes maps strategy code -> volume number -> field types, e.g.
//
//	[sources.volume_types."0315"]
//	"01" = ["DBZH", "DBZV"]
type Source struct {
	Name        string                         `toml:"name"`
	VolumeTypes map[string]map[string][]string `toml:"volume_types"`
}

// Download contains configuration for the download daemon.
type Download struct {
	Enabled          bool   `toml:"enabled"`
	PollInterval     int    `toml:"poll_interval"`
	MaxConcurrent    int    `toml:"max_concurrent"`
	MaxRetries       int    `toml:"max_retries"`
	RetryBaseDelayMS int    `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int    `toml:"retry_max_delay_ms"`
	StartDate        string `toml:"start_date"`
	EndDate          string `toml:"end_date"`
	VerifyChecksums  bool   `toml:"verify_checksums"`
}

// Processing contains configuration for the processing daemon.
type Processing struct {
	Enabled                bool     `toml:"enabled"`
	PollInterval           int      `toml:"poll_interval"`
	MaxConcurrent          int      `toml:"max_concurrent"`
	StuckTimeoutMinutes    int      `toml:"stuck_timeout_minutes"`
	AllowIncomplete        bool     `toml:"allow_incomplete"`
	IncompleteTimeoutHours int      `toml:"incomplete_timeout_hours"`
	DecodeCommand          []string `toml:"decode_command"`
}

// Products contains configuration for the product daemon.
type Products struct {
	Enabled             bool     `toml:"enabled"`
	PollInterval        int      `toml:"poll_interval"`
	ProductType         string   `toml:"product_type"`
	StuckTimeoutMinutes int      `toml:"stuck_timeout_minutes"`
	RenderCommand       []string `toml:"render_command"`
	IncludeColmax       bool     `toml:"include_colmax"`
	// Unfiltered renders with the *_NOFILTERS styles.
	Unfiltered bool `toml:"unfiltered"`
}

// Workflow contains shared loop timing.
type Workflow struct {
	ErrorRetryInterval int `toml:"error_retry_interval"`
	ShutdownTimeout    int `toml:"shutdown_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics contains the Prometheus endpoint configuration. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Config encapsulates all configuration values for radarflow.
//
// Configuration sections by subsystem:
//   - Paths: shared base directory and log directory
//   - FTP: remote archive connection
//   - Sources: radars and their volume-type grammar
//   - Download, Processing, Products: per-daemon settings
//   - Fields: typed render style table
//   - Workflow: loop retry and shutdown timing
//   - Logging, Metrics: observability
type Config struct {
	Paths      Paths                 `toml:"paths"`
	FTP        FTP                   `toml:"ftp"`
	Sources    []Source              `toml:"sources"`
	Download   Download              `toml:"download"`
	Processing Processing            `toml:"processing"`
	Products   Products              `toml:"products"`
	Fields     map[string]FieldStyle `toml:"fields"`
	Workflow   Workflow              `toml:"workflow"`
	Logging    Logging               `toml:"logging"`
	Metrics    Metrics               `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("radarflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// BUFRDir is where downloaded raw files are stored.
func (c *Config) BUFRDir() string { return filepath.Join(c.Paths.BaseDir, "bufr") }

// ArtifactDir is where decoded volume artifacts are written.
func (c *Config) ArtifactDir() string { return filepath.Join(c.Paths.BaseDir, "netcdf") }

// ProductDir is where rendered products are written.
func (c *Config) ProductDir() string { return filepath.Join(c.Paths.BaseDir, "products") }

// StatePath is the shared state database.
func (c *Config) StatePath() string { return filepath.Join(c.Paths.BaseDir, "state.db") }

// LockPath is the single-instance daemon lock file.
func (c *Config) LockPath() string { return filepath.Join(c.Paths.BaseDir, "radarflowd.lock") }

// StatusPath is the status snapshot written by a running daemon.
func (c *Config) StatusPath() string { return filepath.Join(c.Paths.BaseDir, "status.json") }

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.BaseDir, c.BUFRDir(), c.ArtifactDir(), c.ProductDir(), c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Source returns the configured source with the given name.
func (c *Config) Source(name string) (Source, bool) {
	for _, src := range c.Sources {
		if strings.EqualFold(src.Name, name) {
			return src, true
		}
	}
	return Source{}, false
}

// DownloadWindow resolves the configured start and end bounds. An empty start date
// means "now, truncated to the hour"; a zero end time means unbounded. Daemons
// resolve the window once at construction and keep it.
func (d Download) DownloadWindow(now time.Time) (time.Time, time.Time, error) {
	start := now.UTC().Truncate(time.Hour)
	if strings.TrimSpace(d.StartDate) != "" {
		parsed, err := ParseDate(d.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("download.start_date: %w", err)
		}
		start = parsed
	}
	var end time.Time
	if strings.TrimSpace(d.EndDate) != "" {
		parsed, err := ParseDate(d.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("download.end_date: %w", err)
		}
		end = parsed
	}
	return start, end, nil
}

// PollDuration returns the download poll interval.
func (d Download) PollDuration() time.Duration {
	return time.Duration(d.PollInterval) * time.Second
}

// PollDuration returns the processing poll interval.
func (p Processing) PollDuration() time.Duration {
	return time.Duration(p.PollInterval) * time.Second
}

// StuckTimeout is the lease after which a processing volume is reclaimed.
func (p Processing) StuckTimeout() time.Duration {
	return time.Duration(p.StuckTimeoutMinutes) * time.Minute
}

// IncompleteTimeout is the age after which an incomplete volume may be processed.
func (p Processing) IncompleteTimeout() time.Duration {
	return time.Duration(p.IncompleteTimeoutHours) * time.Hour
}

// PollDuration returns the product poll interval.
func (p Products) PollDuration() time.Duration {
	return time.Duration(p.PollInterval) * time.Second
}

// StuckTimeout is the lease after which a processing product record is reclaimed.
func (p Products) StuckTimeout() time.Duration {
	return time.Duration(p.StuckTimeoutMinutes) * time.Minute
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses a configured date bound. Values without a zone are UTC.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

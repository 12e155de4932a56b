package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateFTP(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateProducts(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name must be set", i)
		}
		if strings.Contains(src.Name, "_") {
			return fmt.Errorf("sources[%d].name %q must not contain underscores", i, src.Name)
		}
		key := strings.ToUpper(src.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("sources: duplicate source %q", src.Name)
		}
		seen[key] = struct{}{}
		if len(src.VolumeTypes) == 0 {
			return fmt.Errorf("sources[%d] (%s): volume_types must not be empty", i, src.Name)
		}
		for strategy, volumes := range src.VolumeTypes {
			if strategy == "" {
				return fmt.Errorf("sources[%d] (%s): empty strategy code", i, src.Name)
			}
			if len(volumes) == 0 {
				return fmt.Errorf("sources[%d] (%s): strategy %s has no volumes", i, src.Name, strategy)
			}
			for volNr, fields := range volumes {
				if volNr == "" {
					return fmt.Errorf("sources[%d] (%s): strategy %s has an empty volume number", i, src.Name, strategy)
				}
				if len(fields) == 0 {
					return fmt.Errorf("sources[%d] (%s): volume %s/%s has no field types", i, src.Name, strategy, volNr)
				}
			}
		}
	}
	return nil
}

func (c *Config) validateFTP() error {
	if !c.Download.Enabled {
		return nil
	}
	if c.FTP.Port < 0 || c.FTP.Port > 65535 {
		return errors.New("ftp.port must be between 0 and 65535")
	}
	if c.FTP.TimeoutSeconds < 0 {
		return errors.New("ftp.timeout_seconds must be non-negative")
	}
	if c.FTP.RequestsPerSecond < 0 {
		return errors.New("ftp.requests_per_second must be non-negative")
	}
	return nil
}

func (c *Config) validateDownload() error {
	d := c.Download
	if d.PollInterval <= 0 {
		return errors.New("download.poll_interval must be positive")
	}
	if d.MaxConcurrent <= 0 {
		return errors.New("download.max_concurrent must be positive")
	}
	if d.MaxRetries <= 0 {
		return errors.New("download.max_retries must be positive")
	}
	if d.RetryBaseDelayMS < 0 || d.RetryMaxDelayMS < 0 {
		return errors.New("download retry delays must be non-negative")
	}
	if d.RetryMaxDelayMS < d.RetryBaseDelayMS {
		return errors.New("download.retry_max_delay_ms must be >= retry_base_delay_ms")
	}
	start, end, err := d.DownloadWindow(time.Now())
	if err != nil {
		return err
	}
	if !end.IsZero() && strings.TrimSpace(d.StartDate) != "" && end.Before(start) {
		return errors.New("download.end_date must not be before download.start_date")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	p := c.Processing
	if p.PollInterval <= 0 {
		return errors.New("processing.poll_interval must be positive")
	}
	if p.MaxConcurrent <= 0 {
		return errors.New("processing.max_concurrent must be positive")
	}
	if p.StuckTimeoutMinutes <= 0 {
		return errors.New("processing.stuck_timeout_minutes must be positive")
	}
	if p.AllowIncomplete && p.IncompleteTimeoutHours < 0 {
		return errors.New("processing.incomplete_timeout_hours must be non-negative")
	}
	return nil
}

func (c *Config) validateProducts() error {
	p := c.Products
	if p.PollInterval <= 0 {
		return errors.New("products.poll_interval must be positive")
	}
	if p.StuckTimeoutMinutes <= 0 {
		return errors.New("products.stuck_timeout_minutes must be positive")
	}
	for name, style := range c.Fields {
		if style.VMax < style.VMin {
			return fmt.Errorf("fields.%s: vmax must be >= vmin", name)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.ShutdownTimeout < 0 {
		return errors.New("workflow.shutdown_timeout must be non-negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFTP()
	c.normalizeSources()
	c.normalizeProducts()
	c.normalizeLogging()
	c.Fields = mergeFieldStyles(c.Fields)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFTP() {
	c.FTP.Host = strings.TrimSpace(c.FTP.Host)
	if c.FTP.User == "" {
		if value, ok := os.LookupEnv("RADARFLOW_FTP_USER"); ok {
			c.FTP.User = value
		}
	}
	if c.FTP.Password == "" {
		if value, ok := os.LookupEnv("RADARFLOW_FTP_PASSWORD"); ok {
			c.FTP.Password = value
		}
	}
	c.FTP.BaseDir = strings.TrimSpace(c.FTP.BaseDir)
	if c.FTP.BaseDir == "" {
		c.FTP.BaseDir = defaultFTPBaseDir
	}
	if !strings.HasPrefix(c.FTP.BaseDir, "/") {
		c.FTP.BaseDir = "/" + c.FTP.BaseDir
	}
	c.FTP.BaseDir = strings.TrimRight(c.FTP.BaseDir, "/")
	if c.FTP.Port == 0 {
		c.FTP.Port = defaultFTPPort
	}
}

// normalizeSources upper-cases field names and trims codes so grammar lookups
// are exact.
func (c *Config) normalizeSources() {
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		normalized := make(map[string]map[string][]string, len(src.VolumeTypes))
		for strategy, volumes := range src.VolumeTypes {
			strategy = strings.TrimSpace(strategy)
			inner := make(map[string][]string, len(volumes))
			for volNr, fields := range volumes {
				cleaned := make([]string, 0, len(fields))
				for _, field := range fields {
					if f := strings.ToUpper(strings.TrimSpace(field)); f != "" {
						cleaned = append(cleaned, f)
					}
				}
				inner[strings.TrimSpace(volNr)] = cleaned
			}
			normalized[strategy] = inner
		}
		src.VolumeTypes = normalized
	}
}

func (c *Config) normalizeProducts() {
	c.Products.ProductType = strings.TrimSpace(c.Products.ProductType)
	if c.Products.ProductType == "" {
		c.Products.ProductType = defaultProductType
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

package config

const (
	defaultConfigPath = "~/.config/radarflow/config.toml"

	defaultBaseDir       = "~/.local/share/radarflow"
	defaultLogDir        = "~/.local/share/radarflow/logs"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultRetentionDays = 30

	defaultFTPPort           = 21
	defaultFTPBaseDir        = "/L2"
	defaultFTPTimeoutSeconds = 30

	defaultDownloadPollInterval   = 60
	defaultDownloadMaxConcurrent  = 5
	defaultDownloadMaxRetries     = 3
	defaultDownloadBaseDelayMS    = 1000
	defaultDownloadMaxDelayMS     = 30000
	defaultProcessingPollInterval = 30
	defaultProcessingConcurrent   = 2
	defaultStuckTimeoutMinutes    = 60
	defaultIncompleteTimeoutHours = 24
	defaultProductPollInterval    = 30
	defaultProductType            = "image"

	defaultErrorRetryInterval = 10
	defaultShutdownTimeout    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir: defaultBaseDir,
			LogDir:  defaultLogDir,
		},
		FTP: FTP{
			Port:           defaultFTPPort,
			BaseDir:        defaultFTPBaseDir,
			TimeoutSeconds: defaultFTPTimeoutSeconds,
		},
		Download: Download{
			Enabled:          true,
			PollInterval:     defaultDownloadPollInterval,
			MaxConcurrent:    defaultDownloadMaxConcurrent,
			MaxRetries:       defaultDownloadMaxRetries,
			RetryBaseDelayMS: defaultDownloadBaseDelayMS,
			RetryMaxDelayMS:  defaultDownloadMaxDelayMS,
		},
		Processing: Processing{
			Enabled:                true,
			PollInterval:           defaultProcessingPollInterval,
			MaxConcurrent:          defaultProcessingConcurrent,
			StuckTimeoutMinutes:    defaultStuckTimeoutMinutes,
			IncompleteTimeoutHours: defaultIncompleteTimeoutHours,
		},
		Products: Products{
			Enabled:             true,
			PollInterval:        defaultProductPollInterval,
			ProductType:         defaultProductType,
			StuckTimeoutMinutes: defaultStuckTimeoutMinutes,
		},
		Fields: DefaultFieldStyles(),
		Workflow: Workflow{
			ErrorRetryInterval: defaultErrorRetryInterval,
			ShutdownTimeout:    defaultShutdownTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetentionDays,
		},
	}
}

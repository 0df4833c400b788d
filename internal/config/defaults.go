package config

import "os"

const (
	defaultIndexPrefix    = "pbench"
	defaultBatchSize      = 500
	defaultWorkers        = 4
	defaultMaxRetries     = 5
	defaultNotifyTimeout  = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultStoreFileName  = "pbench-index.db"
	defaultIndexerLogName = "pbench-index.log"
)

// Default returns a Config populated with repository defaults. The three
// archive roots have no default and must come from the configuration file.
func Default() Config {
	return Config{
		Paths: Paths{
			Tmp: os.TempDir(),
		},
		Indexing: Indexing{
			Prefix:     defaultIndexPrefix,
			BatchSize:  defaultBatchSize,
			Workers:    defaultWorkers,
			MaxRetries: defaultMaxRetries,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// LogFileName is the file created under paths.log_dir when file logging is enabled.
func LogFileName() string {
	return defaultIndexerLogName
}

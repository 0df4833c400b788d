package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvConfigPath names the environment variable consulted when no --config flag is given.
const EnvConfigPath = "_PBENCH_SERVER_CONFIG"

var (
	// ErrMissing marks a configuration file that was not specified, does not
	// exist, or cannot be parsed.
	ErrMissing = errors.New("configuration file error")
	// ErrInvalid marks a configuration that parsed but holds absent or
	// malformed required keys.
	ErrInvalid = errors.New("bad configuration")
)

// Paths contains the filesystem roots the indexer operates on.
type Paths struct {
	Archive    string `toml:"archive"`
	Incoming   string `toml:"incoming"`
	Quarantine string `toml:"quarantine"`
	Tmp        string `toml:"tmp"`
	LogDir     string `toml:"log_dir"`
}

// Store contains configuration for the SQLite-backed search backend.
type Store struct {
	Path string `toml:"path"`
}

// Indexing contains configuration for bulk document submission.
type Indexing struct {
	Prefix           string `toml:"prefix"`
	BatchSize        int    `toml:"batch_size"`
	Workers          int    `toml:"workers"`
	MaxRetries       int    `toml:"max_retries"`
	ToolDataFollowup bool   `toml:"tool_data_followup"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the indexer.
//
// Configuration sections by subsystem:
//   - Paths: archive, incoming, quarantine, and temporary roots
//   - Store: backend database location
//   - Indexing: index prefix, batching, concurrency, and retry policy
//   - Notifications: ntfy push of the end-of-run report
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Indexing      Indexing      `toml:"indexing"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// ResolvePath picks the configuration file path from the flag value, falling
// back to the _PBENCH_SERVER_CONFIG environment variable.
func ResolvePath(flagValue string) string {
	if path := strings.TrimSpace(flagValue); path != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

// Load parses and validates the configuration file at path. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: no config file specified; set %s or use --config <file>", ErrMissing, EnvConfigPath)
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissing, err)
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file %s does not exist", ErrMissing, resolved)
		}
		return nil, fmt.Errorf("%w: open config: %w", ErrMissing, err)
	}
	defer file.Close()

	cfg := Default()
	decoder := toml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config %s: %w", ErrMissing, resolved, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &cfg, nil
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

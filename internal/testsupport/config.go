package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"pbench/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose archive, incoming, quarantine, and tmp
// roots are fresh directories under t.TempDir. Options run after the
// directories exist.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	// Resolve symlinked temp dirs (macOS /var) so gate checks compare real paths.
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		base = resolved
	}
	cfgVal := config.Default()
	cfgVal.Paths.Archive = filepath.Join(base, "archive")
	cfgVal.Paths.Incoming = filepath.Join(base, "incoming")
	cfgVal.Paths.Quarantine = filepath.Join(base, "quarantine")
	cfgVal.Paths.Tmp = filepath.Join(base, "tmp")
	cfgVal.Store.Path = filepath.Join(base, "store", "index.db")
	cfgVal.Indexing.Workers = 2
	cfgVal.Indexing.MaxRetries = 1

	for _, dir := range []string{cfgVal.Paths.Archive, cfgVal.Paths.Incoming, cfgVal.Paths.Quarantine, cfgVal.Paths.Tmp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithPrefix overrides the index prefix.
func WithPrefix(prefix string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Indexing.Prefix = prefix
	}
}

// WithBatchSize overrides the bulk request size.
func WithBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Indexing.BatchSize = size
	}
}

// WithToolDataFollowup routes successful run-data indexing to TO-INDEX-TOOL.
func WithToolDataFollowup() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Indexing.ToolDataFollowup = true
	}
}

// WithNtfyTopic sets the ntfy topic used for end-of-run notifications.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithLogDir enables file logging under a temp log directory.
func WithLogDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.LogDir = filepath.Join(b.baseDir, "logs")
	}
}

// WithoutRoot removes one of the archive roots from disk, for environment
// validation failures. name is "archive", "incoming", or "quarantine".
func WithoutRoot(name string) ConfigOption {
	return func(b *configBuilder) {
		if err := os.RemoveAll(filepath.Join(b.baseDir, name)); err != nil {
			b.t.Fatalf("remove %s: %v", name, err)
		}
	}
}

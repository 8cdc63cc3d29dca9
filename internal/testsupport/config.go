package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"frontier/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose store lives in a unique temp directory.
// File logging is disabled and the worker delay is zero.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Store.Path = filepath.Join(base, "state", "frontier.db")
	cfgVal.Store.LockTimeoutSeconds = 5
	cfgVal.Logging.Dir = ""
	cfgVal.Worker.ItemDelaySeconds = 0

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

// WithNode sets the node id and node count.
func WithNode(id, total int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Node.ID = id
		b.cfg.Node.TotalNodes = total
	}
}

// WithTimings sets the lease timeout and heartbeat interval in seconds.
func WithTimings(leaseTimeoutSeconds, heartbeatIntervalSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Lease.TimeoutSeconds = leaseTimeoutSeconds
		b.cfg.Heartbeat.IntervalSeconds = heartbeatIntervalSeconds
	}
}

// WithStorePath points the config at an existing (shared) database path.
func WithStorePath(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Path = path
	}
}

// WithStubScript writes an executable shell script named name with body and
// prepends its directory to PATH for the duration of the test.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\n" + body + "\n")
		if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
			b.t.Fatalf("write stub %s: %v", name, err)
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(filepath.Dir(cfg.Store.Path))
}

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"frontier/internal/config"
	"frontier/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("NO_COLOR", "1")
	for _, key := range []string{"FRONTIER_NODE_ID", "FRONTIER_TOTAL_NODES", "FRONTIER_STORE_PATH"} {
		t.Setenv(key, "")
	}

	configPath := filepath.Join(base, "frontier.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	flags := []string{}
	if env != nil && env.configPath != "" {
		flags = append(flags, "--config", env.configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[node]
id = %d
total_nodes = %d

[lease]
timeout_seconds = %d

[heartbeat]
interval_seconds = %d

[store]
path = %q
lock_timeout_seconds = %d

[worker]
item_delay_seconds = 0
max_items = %d
progress_every = 1

[discovery]
max_items_per_source = %d

[logging]
format = "console"
level = "info"
dir = ""
`,
		cfg.Node.ID, cfg.Node.TotalNodes,
		cfg.Lease.TimeoutSeconds,
		cfg.Heartbeat.IntervalSeconds,
		cfg.Store.Path, cfg.Store.LockTimeoutSeconds,
		cfg.Worker.MaxItems,
		cfg.Discovery.MaxItemsPerSource,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

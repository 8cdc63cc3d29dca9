package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"frontier/internal/config"
	"frontier/internal/frontier"
	"frontier/internal/logging"
	"frontier/internal/metrics"
	"frontier/internal/node"
)

type commandContext struct {
	configFlag *string
	nodeFlag   *int

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, nodeFlag *int) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		nodeFlag:   nodeFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.nodeFlag != nil && *c.nodeFlag != 0 {
			cfg.Node.ID = *c.nodeFlag
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// session bundles what a command needs to act as the configured node.
type session struct {
	cfg      *config.Config
	node     *node.Node
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collectors
}

// withNode opens the store as the configured node, runs fn, and tears
// everything down afterwards. Logs go to the command's stderr.
func (c *commandContext) withNode(cmd *cobra.Command, fn func(*session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Console:  cmd.ErrOrStderr(),
		FilePath: cfg.LogPath(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog() //nolint:errcheck

	registry := prometheus.NewRegistry()
	collectors, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, err := frontier.Open(cfg)
	if err != nil {
		return fmt.Errorf("open frontier store: %w", err)
	}
	n, err := node.New(cfg, store, logger, node.WithMetrics(collectors))
	if err != nil {
		_ = store.Close()
		return err
	}
	defer n.Close()

	return fn(&session{
		cfg:      cfg,
		node:     n,
		logger:   logger,
		registry: registry,
		metrics:  collectors,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateNode(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNode() error {
	if c.Node.TotalNodes < 1 {
		return errors.New("node.total_nodes must be at least 1")
	}
	if c.Node.ID < 1 || c.Node.ID > c.Node.TotalNodes {
		return fmt.Errorf("node.id must be between 1 and node.total_nodes (%d), got %d", c.Node.TotalNodes, c.Node.ID)
	}
	return nil
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"lease.timeout_seconds":      c.Lease.TimeoutSeconds,
		"heartbeat.interval_seconds": c.Heartbeat.IntervalSeconds,
		"store.lock_timeout_seconds": c.Store.LockTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Lease.TimeoutSeconds <= 2*c.Heartbeat.IntervalSeconds {
		return errors.New("lease.timeout_seconds must be greater than twice heartbeat.interval_seconds")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.ItemDelaySeconds < 0 {
		return errors.New("worker.item_delay_seconds must be >= 0")
	}
	if c.Worker.MaxItems < 0 {
		return errors.New("worker.max_items must be >= 0 (0 means unlimited)")
	}
	if c.Worker.ProgressEvery < 1 {
		return errors.New("worker.progress_every must be >= 1")
	}
	if c.Discovery.MaxItemsPerSource < 0 {
		return errors.New("discovery.max_items_per_source must be >= 0 (0 means unlimited)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// validateStore checks the nearest existing ancestor of the store directory
// so a fresh install (directory not yet created) still validates.
func (c *Config) validateStore() error {
	dir := filepath.Dir(c.Store.Path)
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("store.path parent %q is not a directory", dir)
			}
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("store.path directory %q is not writable: %w", dir, err)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

package lease

import (
	"time"

	"frontier/internal/config"
)

// Settings is the immutable claim policy for one node.
type Settings struct {
	NodeID            int
	TotalNodes        int
	LeaseTimeout      time.Duration
	HeartbeatInterval time.Duration
}

// SettingsFromConfig extracts the lease policy from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		NodeID:            cfg.Node.ID,
		TotalNodes:        cfg.Node.TotalNodes,
		LeaseTimeout:      cfg.LeaseTimeout(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	}
}

// DeadAfter is how long a node may go without a heartbeat before its
// claims are considered abandoned.
func (s Settings) DeadAfter() time.Duration {
	return 2 * s.HeartbeatInterval
}

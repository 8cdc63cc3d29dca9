package config

const (
	defaultNodeID              = 1
	defaultTotalNodes          = 1
	defaultLeaseTimeoutSeconds = 3600
	defaultHeartbeatInterval   = 60
	defaultStorePath           = "~/.local/share/frontier/frontier.db"
	defaultLockTimeoutSeconds  = 10
	defaultItemDelaySeconds    = 20
	defaultProgressEvery       = 1
	defaultMaxItemsPerSource   = 5
	defaultLogDir              = "~/.local/share/frontier/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	envNodeID                  = "FRONTIER_NODE_ID"
	envTotalNodes              = "FRONTIER_TOTAL_NODES"
	envStorePath               = "FRONTIER_STORE_PATH"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Node: Node{
			ID:         defaultNodeID,
			TotalNodes: defaultTotalNodes,
		},
		Lease: Lease{
			TimeoutSeconds: defaultLeaseTimeoutSeconds,
		},
		Heartbeat: Heartbeat{
			IntervalSeconds: defaultHeartbeatInterval,
		},
		Store: Store{
			Path:               defaultStorePath,
			LockTimeoutSeconds: defaultLockTimeoutSeconds,
		},
		Worker: Worker{
			ItemDelaySeconds: defaultItemDelaySeconds,
			ProgressEvery:    defaultProgressEvery,
		},
		Discovery: Discovery{
			MaxItemsPerSource: defaultMaxItemsPerSource,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Dir:    defaultLogDir,
		},
	}
}

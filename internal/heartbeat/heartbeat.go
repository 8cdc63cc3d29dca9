package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"frontier/internal/config"
	"frontier/internal/frontier"
	"frontier/internal/lease"
	"frontier/internal/logging"
	"frontier/internal/metrics"
)

// Settings is the immutable heartbeat policy for one node.
type Settings struct {
	NodeID       int
	InstanceID   string
	Interval     time.Duration
	LeaseTimeout time.Duration
}

// SettingsFromConfig extracts the heartbeat policy from cfg.
func SettingsFromConfig(cfg *config.Config, instanceID string) Settings {
	return Settings{
		NodeID:       cfg.Node.ID,
		InstanceID:   instanceID,
		Interval:     cfg.HeartbeatInterval(),
		LeaseTimeout: cfg.LeaseTimeout(),
	}
}

// Release is one claim returned to pending by a beat.
type Release struct {
	Identifier    string
	PreviousOwner int
	Reason        string
	ClaimAge      time.Duration
}

// Report summarizes one beat.
type Report struct {
	At        time.Time
	DeadNodes []int
	Released  []Release
}

// Monitor runs heartbeat cycles for one node.
type Monitor struct {
	store    *frontier.Store
	settings Settings
	logger   *slog.Logger
	metrics  *metrics.Collectors
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(c *metrics.Collectors) Option {
	return func(m *Monitor) { m.metrics = c }
}

// NewMonitor creates a new monitor.
func NewMonitor(store *frontier.Store, settings Settings, opts ...Option) *Monitor {
	m := &Monitor{store: store, settings: settings}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "heartbeat").With(logging.NodeID(settings.NodeID))
	return m
}

// Beat runs one heartbeat cycle.
func (m *Monitor) Beat(ctx context.Context) (Report, error) {
	var report Report
	err := m.store.Update(ctx, func(tx *frontier.Tx) error {
		now := tx.Now()
		report = Report{At: now}

		if err := tx.TouchNode(ctx, m.settings.NodeID, m.settings.InstanceID); err != nil {
			return err
		}

		nodes, err := tx.Nodes(ctx)
		if err != nil {
			return err
		}
		cutoff := now.Add(-2 * m.settings.Interval)
		dead := make(map[int]struct{})
		for _, node := range nodes {
			if node.LastActive.Before(cutoff) {
				dead[node.NodeID] = struct{}{}
				report.DeadNodes = append(report.DeadNodes, node.NodeID)
			}
		}

		claimed, err := tx.ItemsByStatus(ctx, frontier.StatusClaimed)
		if err != nil {
			return err
		}
		for _, item := range claimed {
			age := item.ClaimAge(now)
			reason := ""
			if _, ok := dead[item.OwnerNode]; ok {
				reason = lease.ReasonOwnerDead
			} else if age > m.settings.LeaseTimeout {
				reason = lease.ReasonLeaseExpired
			}
			if reason == "" {
				continue
			}
			if err := tx.Release(ctx, item.Identifier); err != nil {
				return err
			}
			report.Released = append(report.Released, Release{
				Identifier:    item.Identifier,
				PreviousOwner: item.OwnerNode,
				Reason:        reason,
				ClaimAge:      age,
			})
		}

		for _, id := range report.DeadNodes {
			if err := tx.DeleteNode(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	for _, id := range report.DeadNodes {
		m.logger.Info("dead node pruned", logging.Int("dead_node", id))
	}
	for _, rel := range report.Released {
		m.metrics.ObserveReclaim(rel.Reason)
		logging.WarnWithContext(m.logger, "stale claim recovered", "stale_claim_recovered",
			logging.Identifier(rel.Identifier),
			logging.Int("previous_owner", rel.PreviousOwner),
			logging.String("reason", rel.Reason),
			logging.Duration("claim_age", rel.ClaimAge),
			logging.String(logging.FieldErrorHint, "check whether the previous owner crashed or stalled"),
			logging.String(logging.FieldImpact, "item returns to pending and will be fetched again"),
		)
	}
	return report, nil
}

// Run beats immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.settings.Interval
	if interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}

	m.beatOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.beatOnce(ctx)
		}
	}
}

func (m *Monitor) beatOnce(ctx context.Context) {
	if _, err := m.Beat(ctx); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			m.logger.Info("heartbeat cancelled during shutdown")
			return
		}
		m.metrics.HeartbeatFailed()
		logging.WarnWithContext(m.logger, "heartbeat failed", "heartbeat_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the store path is reachable and writable"),
			logging.String(logging.FieldImpact, "other nodes may treat this node as dead until the next successful beat"),
		)
	}
}

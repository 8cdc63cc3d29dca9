package heartbeat_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"frontier/internal/frontier"
	"frontier/internal/heartbeat"
	"frontier/internal/lease"
	"frontier/internal/metrics"
	"frontier/internal/testsupport"
)

const (
	interval     = 300 * time.Second
	leaseTimeout = 3600 * time.Second
)

func settings(node int) heartbeat.Settings {
	return heartbeat.Settings{NodeID: node, InstanceID: "test", Interval: interval, LeaseTimeout: leaseTimeout}
}

func leaseSettings(node int) lease.Settings {
	return lease.Settings{NodeID: node, TotalNodes: 2, LeaseTimeout: leaseTimeout, HeartbeatInterval: interval}
}

func TestBeatReclaimsClaimsOfDeadNode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock(0)
	store := testsupport.MustOpenStore(t, cfg, frontier.WithClock(clock))
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	collectors, err := metrics.New(reg)
	require.NoError(t, err)

	self := heartbeat.NewMonitor(store, settings(1), heartbeat.WithMetrics(collectors))
	peer := heartbeat.NewMonitor(store, settings(2))

	_, err = peer.Beat(ctx)
	require.NoError(t, err)
	result, err := lease.NewManager(store, leaseSettings(2)).Claim(ctx, "item-x", 2)
	require.NoError(t, err)
	require.Equal(t, lease.Claimed, result)

	clock.Set(600)
	report, err := self.Beat(ctx)
	require.NoError(t, err)
	require.Empty(t, report.DeadNodes)
	require.Empty(t, report.Released)
	require.Contains(t, testsupport.MustSnapshot(t, store).InFlight, "item-x")

	clock.Set(601)
	report, err = self.Beat(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{2}, report.DeadNodes)
	require.Len(t, report.Released, 1)
	require.Equal(t, heartbeat.Release{
		Identifier:    "item-x",
		PreviousOwner: 2,
		Reason:        lease.ReasonOwnerDead,
		ClaimAge:      601 * time.Second,
	}, report.Released[0])

	state := testsupport.MustSnapshot(t, store)
	require.NotContains(t, state.InFlight, "item-x")
	require.NotContains(t, state.Completed, "item-x")
	require.NotContains(t, state.Failed, "item-x")
	require.Equal(t, map[string]frontier.NodeState{"1": {LastActive: 601}}, state.Nodes)
	require.Equal(t, int64(601), state.LastUpdated)

	require.Equal(t, 1.0, counterValue(t, reg, "frontier_reclaimed_total", map[string]string{"reason": lease.ReasonOwnerDead}))
}

func TestBeatReleasesExpiredLeaseOfLiveNode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock(0)
	store := testsupport.MustOpenStore(t, cfg, frontier.WithClock(clock))
	ctx := context.Background()

	self := heartbeat.NewMonitor(store, settings(1))
	peer := heartbeat.NewMonitor(store, settings(2))

	_, err := lease.NewManager(store, leaseSettings(2)).Claim(ctx, "item-y", 2)
	require.NoError(t, err)

	// The peer is still heartbeating but has held the claim past the timeout.
	clock.Set(3500)
	report, err := peer.Beat(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Released)

	clock.Set(3700)
	report, err = self.Beat(ctx)
	require.NoError(t, err)
	require.Empty(t, report.DeadNodes)
	require.Len(t, report.Released, 1)
	require.Equal(t, lease.ReasonLeaseExpired, report.Released[0].Reason)

	state := testsupport.MustSnapshot(t, store)
	require.Empty(t, state.InFlight)
	require.Len(t, state.Nodes, 2)
}

func TestBeatLeavesFreshClaimsAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock(0)
	store := testsupport.MustOpenStore(t, cfg, frontier.WithClock(clock))
	ctx := context.Background()

	self := heartbeat.NewMonitor(store, settings(1))
	_, err := self.Beat(ctx)
	require.NoError(t, err)
	_, err = lease.NewManager(store, leaseSettings(1)).Claim(ctx, "mine", 1)
	require.NoError(t, err)

	clock.Set(200)
	report, err := self.Beat(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Released)
	require.Equal(t, 1, testsupport.MustSnapshot(t, store).InFlight["mine"].NodeID)
}

func TestRunBeatsImmediatelyAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	monitor := heartbeat.NewMonitor(store, heartbeat.Settings{
		NodeID:       3,
		InstanceID:   "run",
		Interval:     20 * time.Millisecond,
		LeaseTimeout: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		state, err := store.Snapshot(context.Background())
		if err != nil {
			return false
		}
		_, ok := state.Nodes["3"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunSurvivesStoreFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	require.NoError(t, store.Close())

	reg := prometheus.NewRegistry()
	collectors, err := metrics.New(reg)
	require.NoError(t, err)

	monitor := heartbeat.NewMonitor(store, heartbeat.Settings{
		NodeID:       1,
		Interval:     10 * time.Millisecond,
		LeaseTimeout: time.Hour,
	}, heartbeat.WithMetrics(collectors))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, monitor.Run(ctx))

	failures, err := testutil.GatherAndCount(reg, "frontier_heartbeat_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, failures)
	require.GreaterOrEqual(t, counterValue(t, reg, "frontier_heartbeat_failures_total", nil), 2.0)
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	monitor := heartbeat.NewMonitor(store, heartbeat.Settings{NodeID: 1})
	require.Error(t, monitor.Run(context.Background()))
}

// counterValue sums the gathered counter samples named name whose labels
// include every pair in labels.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchesLabels(metric, labels) {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}

func matchesLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok {
			if pair.GetValue() != want {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}
